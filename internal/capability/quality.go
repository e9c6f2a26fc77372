package capability

import (
	"github.com/convertd/convertd/internal/device"
	"github.com/convertd/convertd/internal/media"
)

// QualityRecommendation pairs the highest quality the device should
// attempt with the quality it should default to, plus a confidence in
// the pairing. Recommended never exceeds Max.
type QualityRecommendation struct {
	Max         media.QualityTier
	Recommended media.QualityTier
	Confidence  int
	Reasons     []string
}

// RecommendQuality maps the capability score to a base (max,
// recommended) pair and then only ever downgrades it for live
// conditions: heat first, then unplugged low battery, then tight
// memory. Confidence starts at 100 and is floored at 50.
func RecommendQuality(snap device.Snapshot) QualityRecommendation {
	a := Assess(snap)

	var rec QualityRecommendation
	rec.Confidence = 100

	switch {
	case a.CanHandle4K:
		rec.Max, rec.Recommended = media.Quality4K, media.Quality1080p
	case a.Score >= 75:
		rec.Max, rec.Recommended = media.Quality1080p, media.Quality720p
	case a.Score >= 60:
		rec.Max, rec.Recommended = media.Quality720p, media.Quality480p
	case a.Score >= 35:
		rec.Max, rec.Recommended = media.Quality480p, media.QualityLow
	default:
		rec.Max, rec.Recommended = media.QualityLow, media.QualityLow
	}

	if snap.Thermal == device.ThermalModerate || snap.Thermal == device.ThermalSevere {
		rec.Max = rec.Max.StepDown()
		rec.Recommended = rec.Recommended.StepDown()
		rec.Confidence -= 15
		rec.Reasons = append(rec.Reasons, "reduced for elevated device temperature")
	}

	if snap.BatteryLevel < 0.3 && !snap.Charging {
		rec.Recommended = rec.Recommended.StepDown()
		rec.Confidence -= 10
		rec.Reasons = append(rec.Reasons, "reduced for low battery on unplugged device")
	}

	if snap.MemoryAvailable < 3*gib {
		rec.Max = rec.Max.Min(media.Quality1080p)
		rec.Recommended = rec.Recommended.StepDown()
		rec.Confidence -= 10
		rec.Reasons = append(rec.Reasons, "reduced for limited available memory")
	}

	if rec.Confidence < 50 {
		rec.Confidence = 50
	}
	rec.Recommended = rec.Recommended.Min(rec.Max)
	return rec
}
