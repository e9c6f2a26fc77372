package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convertd/convertd/internal/device"
	"github.com/convertd/convertd/internal/media"
)

// midSnapshot scores around 70 so single-factor deltas are visible
// without hitting the 100-point clamp.
func midSnapshot() device.Snapshot {
	return device.Snapshot{
		BatteryLevel:     0.9,
		Charging:         true,
		Thermal:          device.ThermalNormal,
		MemoryAvailable:  4 * gib,
		StorageAvailable: 50 * gib,
		CPUCores:         4,
		CPUFrequencyMHz:  1600,
		CPUUsagePercent:  50,
		BenchmarkScore:   50,
	}
}

// healthySnapshot is a charged, cool, well-provisioned device.
func healthySnapshot() device.Snapshot {
	return device.Snapshot{
		BatteryLevel:     0.9,
		Charging:         true,
		Thermal:          device.ThermalNormal,
		MemoryAvailable:  8 * gib,
		MemoryTotal:      16 * gib,
		StorageAvailable: 50 * gib,
		CPUCores:         8,
		CPUFrequencyMHz:  2400,
		CPUUsagePercent:  10,
		BenchmarkScore:   95,
	}
}

func TestAssess_HighEndDevice(t *testing.T) {
	a := Assess(healthySnapshot())

	assert.GreaterOrEqual(t, a.Score, 90.0)
	assert.Equal(t, LevelExcellent, a.Level)
	assert.True(t, a.CanHandle4K)
	assert.Equal(t, 4, a.RecommendedConcurrentJobs)
	assert.False(t, a.MemoryWarning)
	assert.False(t, a.ThermalWarning)
	assert.False(t, a.BatteryWarning)
}

func TestAssess_ScoreAlwaysInRange(t *testing.T) {
	snaps := []device.Snapshot{
		{},
		healthySnapshot(),
		{Thermal: device.ThermalEmergency, CPUUsagePercent: 100},
		{BenchmarkScore: 100, MemoryAvailable: 64 * gib, CPUCores: 32, CPUFrequencyMHz: 5000, BatteryLevel: 1, Charging: true},
		{BenchmarkScore: 50, BatteryLevel: 0.05, Thermal: device.ThermalCritical, CPUUsagePercent: 95},
	}

	for _, snap := range snaps {
		a := Assess(snap)
		assert.GreaterOrEqual(t, a.Score, 0.0)
		assert.LessOrEqual(t, a.Score, 100.0)
	}
}

func TestAssess_MemoryTiers(t *testing.T) {
	base := healthySnapshot()

	tests := []struct {
		name  string
		avail uint64
		warn  bool
	}{
		{"8GB no warning", 8 * gib, false},
		{"4GB no warning", 4 * gib, false},
		{"2GB warns", 2 * gib, true},
		{"below 2GB warns", 1 * gib, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := base
			snap.MemoryAvailable = tt.avail
			assert.Equal(t, tt.warn, Assess(snap).MemoryWarning)
		})
	}
}

func TestAssess_ThermalPenalty(t *testing.T) {
	cool := midSnapshot()
	hot := cool
	hot.Thermal = device.ThermalModerate

	coolScore := Assess(cool).Score
	hotScore := Assess(hot).Score

	assert.InDelta(t, 16, coolScore-hotScore, 0.001, "moderate throttle costs two levels at 8 points each")
	assert.True(t, Assess(hot).ThermalWarning)
	assert.False(t, Assess(cool).ThermalWarning)
}

func TestAssess_BatteryTiers(t *testing.T) {
	base := midSnapshot()

	tests := []struct {
		level float64
		bonus float64
		warn  bool
	}{
		{0.9, 10, false},
		{0.5, 10, false},
		{0.35, 7, false},
		{0.25, 5, true},
		{0.1, 2, true},
	}

	floor := base
	floor.BatteryLevel = 0.1
	floorScore := Assess(floor).Score

	for _, tt := range tests {
		snap := base
		snap.BatteryLevel = tt.level
		a := Assess(snap)
		assert.InDelta(t, tt.bonus-2, a.Score-floorScore, 0.001, "battery %.2f", tt.level)
		assert.Equal(t, tt.warn, a.BatteryWarning, "battery %.2f", tt.level)
	}
}

func TestAssess_CanHandle4KRequiresAll(t *testing.T) {
	t.Run("hot device cannot do 4K", func(t *testing.T) {
		snap := healthySnapshot()
		snap.Thermal = device.ThermalLight
		assert.False(t, Assess(snap).CanHandle4K)
	})

	t.Run("low benchmark cannot do 4K", func(t *testing.T) {
		snap := healthySnapshot()
		snap.BenchmarkScore = 80
		assert.False(t, Assess(snap).CanHandle4K)
	})

	t.Run("tight memory cannot do 4K", func(t *testing.T) {
		snap := healthySnapshot()
		snap.MemoryAvailable = 4 * gib
		assert.False(t, Assess(snap).CanHandle4K)
	})
}

func TestLevelForScore(t *testing.T) {
	assert.Equal(t, LevelExcellent, levelForScore(90))
	assert.Equal(t, LevelGood, levelForScore(75))
	assert.Equal(t, LevelAdequate, levelForScore(60))
	assert.Equal(t, LevelLimited, levelForScore(40))
	assert.Equal(t, LevelPoor, levelForScore(39.9))
}

func TestSuitableForConversion(t *testing.T) {
	t.Run("healthy device is suitable", func(t *testing.T) {
		s := SuitableForConversion(healthySnapshot())
		assert.True(t, s.Suitable)
		assert.Empty(t, s.Blockers)
	})

	t.Run("critically low unplugged battery blocks", func(t *testing.T) {
		snap := device.Snapshot{
			BatteryLevel:     0.05,
			Charging:         false,
			Thermal:          device.ThermalNormal,
			MemoryAvailable:  4 * gib,
			StorageAvailable: 20 * gib,
			BenchmarkScore:   70,
			CPUCores:         4,
			CPUFrequencyMHz:  2000,
		}
		s := SuitableForConversion(snap)
		require.False(t, s.Suitable)
		assert.Contains(t, s.Blockers[0], "battery")
	})

	t.Run("same battery level while charging does not block", func(t *testing.T) {
		snap := healthySnapshot()
		snap.BatteryLevel = 0.05
		snap.Charging = true
		assert.True(t, SuitableForConversion(snap).Suitable)
	})

	t.Run("overheating blocks", func(t *testing.T) {
		snap := healthySnapshot()
		snap.Thermal = device.ThermalCritical
		s := SuitableForConversion(snap)
		require.False(t, s.Suitable)
		assert.Contains(t, s.Blockers[0], "overheating")
	})

	t.Run("tight storage blocks", func(t *testing.T) {
		snap := healthySnapshot()
		snap.StorageAvailable = 1 * gib
		assert.False(t, SuitableForConversion(snap).Suitable)
	})

	t.Run("warnings accumulate without blocking", func(t *testing.T) {
		snap := healthySnapshot()
		snap.StorageAvailable = 5 * gib
		snap.Thermal = device.ThermalModerate
		s := SuitableForConversion(snap)
		assert.True(t, s.Suitable)
		assert.GreaterOrEqual(t, len(s.Warnings), 2)
	})
}

func TestBlockerKind(t *testing.T) {
	snap := healthySnapshot()
	snap.BatteryLevel = 0.05
	snap.Charging = false
	assert.Equal(t, media.KindLowBattery, BlockerKind(snap))

	snap = healthySnapshot()
	snap.Thermal = device.ThermalEmergency
	assert.Equal(t, media.KindDeviceOverheating, BlockerKind(snap))

	snap = healthySnapshot()
	snap.StorageAvailable = 0
	assert.Equal(t, media.KindInsufficientStorage, BlockerKind(snap))
}

func TestEstimateMaxConcurrentJobs(t *testing.T) {
	t.Run("healthy device keeps full allocation", func(t *testing.T) {
		assert.Equal(t, 4, EstimateMaxConcurrentJobs(healthySnapshot()))
	})

	t.Run("throttling sheds one slot", func(t *testing.T) {
		snap := healthySnapshot()
		snap.Thermal = device.ThermalLight
		assert.Equal(t, 3, EstimateMaxConcurrentJobs(snap))
	})

	t.Run("reductions stack", func(t *testing.T) {
		snap := healthySnapshot()
		snap.Thermal = device.ThermalLight
		snap.BatteryLevel = 0.2
		snap.Charging = false
		assert.Equal(t, 2, EstimateMaxConcurrentJobs(snap))
	})

	t.Run("never below one", func(t *testing.T) {
		snap := device.Snapshot{
			BatteryLevel: 0.1,
			Thermal:      device.ThermalSevere,
		}
		assert.Equal(t, 1, EstimateMaxConcurrentJobs(snap))
	})
}
