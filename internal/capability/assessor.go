// Package capability turns a device telemetry snapshot into processing
// decisions: a 0..100 capability score, a quality recommendation, a
// suitability verdict and a concurrency limit. Everything in this
// package is a pure function of the snapshot; no I/O, no state. The
// thresholds are policy constants, not tunables.
package capability

import (
	"github.com/convertd/convertd/internal/device"
	"github.com/convertd/convertd/internal/media"
)

// Level tiers the overall capability score.
type Level string

const (
	LevelExcellent Level = "excellent"
	LevelGood      Level = "good"
	LevelAdequate  Level = "adequate"
	LevelLimited   Level = "limited"
	LevelPoor      Level = "poor"
)

const gib = 1 << 30

// Assessment is derived from a snapshot on demand, never persisted.
type Assessment struct {
	Score                     float64
	Level                     Level
	CanHandle4K               bool
	RecommendedConcurrentJobs int

	MemoryWarning  bool
	ThermalWarning bool
	BatteryWarning bool
}

// Assess computes the weighted capability score and its derived fields.
//
// The score blends four inputs: 40% benchmark, a 20-point RAM tier, a
// 20-point processor tier and a 10-point battery tier, minus eight
// points per thermal throttle level. Clamped to [0,100].
func Assess(snap device.Snapshot) Assessment {
	var a Assessment

	score := snap.BenchmarkScore * 0.40

	switch {
	case snap.MemoryAvailable >= 8*gib:
		score += 20
	case snap.MemoryAvailable >= 4*gib:
		score += 15
	case snap.MemoryAvailable >= 2*gib:
		score += 10
		a.MemoryWarning = true
	default:
		score += 5
		a.MemoryWarning = true
	}

	cpuScore := float64(snap.CPUCores) * 2.5
	if cpuScore > 20 {
		cpuScore = 20
	}
	freqScore := snap.CPUFrequencyMHz / 160
	if freqScore > 10 {
		freqScore = 10
	}
	score += cpuScore + freqScore + (100-snap.CPUUsagePercent)/10

	throttle := snap.Thermal.ThrottleLevel()
	score -= float64(throttle) * 8
	if throttle >= 2 {
		a.ThermalWarning = true
	}

	switch {
	case snap.BatteryLevel >= 0.5:
		score += 10
	case snap.BatteryLevel >= 0.3:
		score += 7
	case snap.BatteryLevel >= 0.2:
		score += 5
		a.BatteryWarning = true
	default:
		score += 2
		a.BatteryWarning = true
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	a.Score = score
	a.Level = levelForScore(score)

	a.CanHandle4K = score >= 80 &&
		snap.MemoryAvailable >= 6*gib &&
		snap.Thermal == device.ThermalNormal &&
		snap.BenchmarkScore >= 85

	switch {
	case score >= 90 && snap.MemoryAvailable >= 8*gib:
		a.RecommendedConcurrentJobs = 4
	case score >= 75 && snap.MemoryAvailable >= 6*gib:
		a.RecommendedConcurrentJobs = 3
	case score >= 60 && snap.MemoryAvailable >= 4*gib:
		a.RecommendedConcurrentJobs = 2
	default:
		a.RecommendedConcurrentJobs = 1
	}

	return a
}

func levelForScore(score float64) Level {
	switch {
	case score >= 90:
		return LevelExcellent
	case score >= 75:
		return LevelGood
	case score >= 60:
		return LevelAdequate
	case score >= 40:
		return LevelLimited
	default:
		return LevelPoor
	}
}

// EstimateMaxConcurrentJobs tiers like Assess but sheds a slot when the
// device is throttling and another when running low on unplugged
// battery; the reductions stack and never go below one.
func EstimateMaxConcurrentJobs(snap device.Snapshot) int {
	a := Assess(snap)
	jobs := a.RecommendedConcurrentJobs

	if snap.Thermal != device.ThermalNormal {
		jobs--
	}
	if snap.BatteryLevel < 0.30 && !snap.Charging {
		jobs--
	}
	if jobs < 1 {
		jobs = 1
	}
	return jobs
}

// Suitability is the admission verdict for starting a conversion.
// Suitable is true iff Blockers is empty; warnings never block.
type Suitability struct {
	Suitable bool
	Blockers []string
	Warnings []string
}

// SuitableForConversion is the admission veto, distinct from quality
// selection. It gates whether a conversion start is attempted at all.
func SuitableForConversion(snap device.Snapshot) Suitability {
	a := Assess(snap)
	var s Suitability

	if snap.BatteryLevel < 0.10 && !snap.Charging {
		s.Blockers = append(s.Blockers, "battery critically low and not charging")
	}
	if snap.Thermal >= device.ThermalCritical {
		s.Blockers = append(s.Blockers, "device is overheating ("+snap.Thermal.String()+")")
	}
	if snap.StorageAvailable < 2*gib {
		s.Blockers = append(s.Blockers, "less than 2GB of free storage")
	}
	if snap.MemoryAvailable < 1*gib {
		s.Blockers = append(s.Blockers, "less than 1GB of available memory")
	}
	if a.Score < 25 {
		s.Blockers = append(s.Blockers, "device capability score too low for conversion")
	}

	if snap.BatteryLevel < 0.30 && !snap.Charging {
		s.Warnings = append(s.Warnings, "battery low; consider plugging in")
	}
	if snap.Thermal == device.ThermalSevere || snap.Thermal == device.ThermalModerate {
		s.Warnings = append(s.Warnings, "device is running hot; conversion may be slow")
	}
	if snap.StorageAvailable < 10*gib {
		s.Warnings = append(s.Warnings, "free storage below 10GB")
	}
	if snap.MemoryAvailable < 2*gib {
		s.Warnings = append(s.Warnings, "available memory below 2GB")
	}
	if a.Score < 40 {
		s.Warnings = append(s.Warnings, "low device capability; expect reduced quality")
	}

	s.Suitable = len(s.Blockers) == 0
	return s
}

// BlockerKind maps the first blocker in a suitability verdict onto the
// error taxonomy so admission failures carry a classified kind.
func BlockerKind(snap device.Snapshot) media.ErrorKind {
	switch {
	case snap.BatteryLevel < 0.10 && !snap.Charging:
		return media.KindLowBattery
	case snap.Thermal >= device.ThermalCritical:
		return media.KindDeviceOverheating
	case snap.StorageAvailable < 2*gib:
		return media.KindInsufficientStorage
	default:
		return media.KindInvalidOperation
	}
}
