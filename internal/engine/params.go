package engine

import "github.com/convertd/convertd/internal/media"

// EncodingParams maps a quality tier onto concrete encoder settings.
// The table is shared by all backends; backends differ only in how they
// package these into their native invocation.
type EncodingParams struct {
	Width            int
	Height           int
	VideoBitrateKbps int
	AudioBitrateKbps int
	FrameRate        int
	Profile          string
}

var encodingTable = map[media.QualityTier]EncodingParams{
	media.Quality4K:    {Width: 3840, Height: 2160, VideoBitrateKbps: 16000, AudioBitrateKbps: 192, FrameRate: 30, Profile: "high"},
	media.Quality1080p: {Width: 1920, Height: 1080, VideoBitrateKbps: 8000, AudioBitrateKbps: 192, FrameRate: 30, Profile: "high"},
	media.Quality720p:  {Width: 1280, Height: 720, VideoBitrateKbps: 4000, AudioBitrateKbps: 128, FrameRate: 30, Profile: "main"},
	media.Quality480p:  {Width: 854, Height: 480, VideoBitrateKbps: 1800, AudioBitrateKbps: 128, FrameRate: 30, Profile: "main"},
	media.QualityLow:   {Width: 640, Height: 360, VideoBitrateKbps: 800, AudioBitrateKbps: 96, FrameRate: 24, Profile: "baseline"},
}

// ParamsForQuality returns the encoder settings for a tier. Unknown
// tiers fall back to the low profile.
func ParamsForQuality(q media.QualityTier) EncodingParams {
	if p, ok := encodingTable[q]; ok {
		return p
	}
	return encodingTable[media.QualityLow]
}

// codecsFor returns the software encoder pair for a container. The
// WebM muxer only accepts VP8/VP9/AV1 video and Vorbis/Opus audio, so
// it gets VP9 and Opus; every other container takes H.264 and AAC.
func codecsFor(f media.ContainerFormat) (video, audio string) {
	if f == media.FormatWebM {
		return "libvpx-vp9", "libopus"
	}
	return "libx264", "aac"
}
