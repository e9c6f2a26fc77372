// Package engine abstracts the codec backend a conversion runs on.
// Three implementations exist: a CLI backend driving an ffmpeg process,
// a hardware backend using platform transform encoders, and an
// unavailable backend selected when probing finds neither. The session
// controller only ever talks to the Engine and Handle interfaces.
package engine

import (
	"context"
	"time"

	"github.com/convertd/convertd/internal/media"
)

// Kind identifies a backend implementation.
type Kind string

const (
	KindCLI         Kind = "cli"
	KindHardware    Kind = "hardware"
	KindUnavailable Kind = "unavailable"
)

// Engine starts conversions and answers capability queries. Analyze and
// Start may block; both honour context cancellation.
type Engine interface {
	Analyze(ctx context.Context, path string) (*MediaInfo, error)
	Start(ctx context.Context, inv Invocation) (Handle, error)
	Capabilities() Capabilities
}

// Handle controls a single running conversion. Events is closed after
// the terminal event has been delivered; no event follows a Completed
// or Failed event.
type Handle interface {
	Events() <-chan Event
	Pause() error
	Resume() error
	Cancel() error
	Stats() *ProcessStats
}

// Capabilities describes what a backend can do.
type Capabilities struct {
	Kind                Kind
	SupportsPause       bool
	SupportsTwoPass     bool
	HardwareAccelerated bool
	Formats             []media.ContainerFormat
	VideoEncoders       []string
	Accelerators        []string
}

// Invocation carries everything a backend needs to run one conversion.
type Invocation struct {
	SessionID  string
	InputPath  string
	OutputPath string
	Params     EncodingParams
	Container  media.ContainerFormat
	TwoPass    bool

	// InputDuration is the probed duration of the input, used as the
	// denominator for progress percentages across all backends.
	InputDuration time.Duration
}

// EventKind discriminates engine events.
type EventKind int

const (
	EventProgress EventKind = iota
	EventCompleted
	EventFailed
)

// Event is emitted by a running handle. Progress events carry Progress;
// Completed carries Result; Failed carries Err.
type Event struct {
	Kind     EventKind
	Progress Progress
	Err      error
	Result   *Result
}

// Progress is backend-normalized: percentage uses the input duration as
// denominator so numbers are comparable across backends.
type Progress struct {
	Percentage        float64
	ProcessedDuration time.Duration
	TotalDuration     time.Duration
	Speed             float64
	Phase             string
}

// Result describes a finished conversion.
type Result struct {
	OutputPath      string
	OutputSizeBytes int64
	Elapsed         time.Duration
	FramesProcessed int64
	AverageSpeed    float64
}

// MediaInfo is the probed shape of an input file.
type MediaInfo struct {
	Path          string
	Container     string
	Duration      time.Duration
	SizeBytes     int64
	VideoCodec    string
	Width         int
	Height        int
	Framerate     float64
	BitrateBps    int
	AudioCodec    string
	AudioChannels int
	HasVideo      bool
}
