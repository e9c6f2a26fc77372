// Package device collects point-in-time telemetry about the host the
// conversion controller runs on: battery, thermal state, memory, storage
// and CPU. Snapshots feed the capability assessor and are always best
// effort; metrics that cannot be read fall back to conservative defaults
// rather than failing the capture.
package device

import "time"

// ThermalLevel describes how hard the host is throttling.
type ThermalLevel int

const (
	ThermalNormal ThermalLevel = iota
	ThermalLight
	ThermalModerate
	ThermalSevere
	ThermalCritical
	ThermalEmergency
)

var thermalNames = map[ThermalLevel]string{
	ThermalNormal:    "normal",
	ThermalLight:     "light",
	ThermalModerate:  "moderate",
	ThermalSevere:    "severe",
	ThermalCritical:  "critical",
	ThermalEmergency: "emergency",
}

func (t ThermalLevel) String() string {
	if name, ok := thermalNames[t]; ok {
		return name
	}
	return "unknown"
}

// ThrottleLevel maps the thermal state onto the 0..5 throttle scale used
// by the capability scorer.
func (t ThermalLevel) ThrottleLevel() int {
	if t < ThermalNormal {
		return 0
	}
	if t > ThermalEmergency {
		return int(ThermalEmergency)
	}
	return int(t)
}

// Snapshot is a single observation of the host. All byte quantities are
// absolute, BatteryLevel is a fraction in [0,1].
type Snapshot struct {
	CapturedAt time.Time

	BatteryLevel float64
	Charging     bool

	Thermal      ThermalLevel
	TemperatureC float64

	MemoryAvailable uint64
	MemoryUsed      uint64
	MemoryTotal     uint64

	StorageAvailable uint64
	StorageUsed      uint64
	StorageTotal     uint64

	CPUCores        int
	CPUFrequencyMHz float64
	CPUUsagePercent float64

	// BenchmarkScore is a 0..100 estimate of raw video-processing
	// throughput, derived from core count and clock speed unless
	// overridden by configuration.
	BenchmarkScore float64
}
