package capability

import (
	"fmt"

	"github.com/convertd/convertd/internal/device"
)

// AdviceSeverity orders advisories for the periodic monitor.
type AdviceSeverity string

const (
	SeverityOK       AdviceSeverity = "ok"
	SeverityWarning  AdviceSeverity = "warning"
	SeverityCritical AdviceSeverity = "critical"
)

// Advice is a threshold-based advisory used by the periodic monitoring
// cycle. Advisories recommend action but never block or cancel sessions.
type Advice struct {
	Severity   AdviceSeverity
	Suggestion string
}

// StorageAdvice flags the free-space position of the output filesystem.
func StorageAdvice(snap device.Snapshot) Advice {
	switch {
	case snap.StorageAvailable < 2*gib:
		return Advice{
			Severity:   SeverityCritical,
			Suggestion: fmt.Sprintf("only %.1fGB free; free up space before converting", float64(snap.StorageAvailable)/gib),
		}
	case snap.StorageAvailable < 10*gib:
		return Advice{
			Severity:   SeverityWarning,
			Suggestion: fmt.Sprintf("%.1fGB free; large conversions may not fit", float64(snap.StorageAvailable)/gib),
		}
	default:
		return Advice{Severity: SeverityOK, Suggestion: "sufficient free storage"}
	}
}

// ShouldPauseForBattery recommends pausing active sessions when the
// battery is nearly flat and nothing is charging it.
func ShouldPauseForBattery(snap device.Snapshot) bool {
	return snap.BatteryLevel < 0.15 && !snap.Charging
}

// ShouldPauseForThermal recommends pausing once throttling reaches the
// severe tier.
func ShouldPauseForThermal(snap device.Snapshot) bool {
	return snap.Thermal >= device.ThermalSevere
}
