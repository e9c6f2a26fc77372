package session

import (
	"context"
	"time"

	"github.com/convertd/convertd/internal/capability"
	"github.com/convertd/convertd/internal/engine"
	"github.com/convertd/convertd/internal/media"
)

// QualityProfile is the caller-facing description of a quality tier.
type QualityProfile struct {
	Tier             media.QualityTier
	Name             string
	Width            int
	Height           int
	VideoBitrateKbps int
	AudioBitrateKbps int
}

// Preset bundles a quality and format for common conversion goals.
type Preset struct {
	Name        string
	Description string
	Quality     media.QualityTier
	Format      media.ContainerFormat
	TwoPass     bool
}

// QualityProfiles lists all tiers with their encoder settings.
func QualityProfiles() []QualityProfile {
	tiers := media.QualityTiers()
	out := make([]QualityProfile, 0, len(tiers))
	for _, tier := range tiers {
		p := engine.ParamsForQuality(tier)
		out = append(out, QualityProfile{
			Tier:             tier,
			Name:             tier.String(),
			Width:            p.Width,
			Height:           p.Height,
			VideoBitrateKbps: p.VideoBitrateKbps,
			AudioBitrateKbps: p.AudioBitrateKbps,
		})
	}
	return out
}

// ConversionPresets returns the built-in presets.
func ConversionPresets() []Preset {
	return []Preset{
		{Name: "archive", Description: "high quality two-pass encode for long-term storage", Quality: media.Quality1080p, Format: media.FormatMKV, TwoPass: true},
		{Name: "share", Description: "broadly compatible single-pass encode", Quality: media.Quality720p, Format: media.FormatMP4},
		{Name: "web", Description: "small webm suited to embedding", Quality: media.Quality480p, Format: media.FormatWebM},
		{Name: "preview", Description: "fast low-quality proof", Quality: media.QualityLow, Format: media.FormatMP4},
	}
}

// SupportedFormats lists the container formats conversions can target.
func SupportedFormats() []media.ContainerFormat {
	return media.ContainerFormats()
}

// speedFactors map the capability level to an expected realtime
// multiple for a software encode.
var speedFactors = map[capability.Level]float64{
	capability.LevelExcellent: 2.0,
	capability.LevelGood:      1.5,
	capability.LevelAdequate:  1.0,
	capability.LevelLimited:   0.6,
	capability.LevelPoor:      0.3,
}

// EstimateProcessingTime predicts the wall time of a conversion from
// the input duration and the current capability assessment.
func (c *Controller) EstimateProcessingTime(ctx context.Context, inputDuration time.Duration, quality media.QualityTier) time.Duration {
	snap := c.telemetry.Snapshot(ctx)
	a := capability.Assess(snap)

	factor := speedFactors[a.Level]
	if factor <= 0 {
		factor = 0.3
	}

	// Higher tiers push more pixels; scale the factor down for them.
	switch quality {
	case media.Quality4K:
		factor *= 0.4
	case media.Quality1080p:
		factor *= 0.7
	}

	return time.Duration(float64(inputDuration) / factor)
}

// EstimateOutputSize predicts the output size in bytes from the target
// bitrates and input duration.
func EstimateOutputSize(inputDuration time.Duration, quality media.QualityTier) int64 {
	p := engine.ParamsForQuality(quality)
	totalKbps := p.VideoBitrateKbps + p.AudioBitrateKbps
	return int64(float64(totalKbps) / 8 * 1000 * inputDuration.Seconds())
}

// estimateOutputFromInput bounds the output size when only the input
// file size is known. Transcodes to a lower tier rarely grow a file;
// same-tier re-encodes are assumed to stay within the input size.
func estimateOutputFromInput(inputSize int64, quality media.QualityTier) int64 {
	p := engine.ParamsForQuality(quality)
	topParams := engine.ParamsForQuality(media.Quality4K)

	frac := float64(p.VideoBitrateKbps+p.AudioBitrateKbps) /
		float64(topParams.VideoBitrateKbps+topParams.AudioBitrateKbps)
	estimated := int64(float64(inputSize) * frac)
	if estimated > inputSize {
		estimated = inputSize
	}
	return estimated
}
