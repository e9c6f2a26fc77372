// Package media defines the shared vocabulary for conversion work: quality
// tiers, container formats, and the error taxonomy used across the controller
// surface.
package media

import "fmt"

// QualityTier is an ordered quality level. Higher values mean higher quality.
type QualityTier int

const (
	QualityLow QualityTier = iota
	Quality480p
	Quality720p
	Quality1080p
	Quality4K
)

// qualityNames maps tiers to their canonical names.
var qualityNames = map[QualityTier]string{
	QualityLow:   "low",
	Quality480p:  "480p",
	Quality720p:  "720p",
	Quality1080p: "1080p",
	Quality4K:    "4k",
}

// String returns the canonical name of the tier.
func (q QualityTier) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return "unknown"
}

// Valid returns true if the tier is one of the defined values.
func (q QualityTier) Valid() bool {
	_, ok := qualityNames[q]
	return ok
}

// StepDown returns the next lower tier, clamped at QualityLow.
func (q QualityTier) StepDown() QualityTier {
	if q <= QualityLow {
		return QualityLow
	}
	return q - 1
}

// Min returns the lower of two tiers.
func (q QualityTier) Min(other QualityTier) QualityTier {
	if other < q {
		return other
	}
	return q
}

// ParseQualityTier parses a tier name such as "720p" or "4k".
func ParseQualityTier(s string) (QualityTier, error) {
	for tier, name := range qualityNames {
		if name == s {
			return tier, nil
		}
	}
	return QualityLow, fmt.Errorf("unknown quality tier: %q", s)
}

// QualityTiers returns all tiers from lowest to highest.
func QualityTiers() []QualityTier {
	return []QualityTier{QualityLow, Quality480p, Quality720p, Quality1080p, Quality4K}
}
