package session

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/convertd/convertd/internal/media"
)

// Request is the immutable conversion order a session is created from.
type Request struct {
	InputPath     string
	OutputPath    string
	TargetQuality media.QualityTier
	TargetFormat  media.ContainerFormat
	TwoPass       bool
}

// Progress tracks how far a running conversion has come.
type Progress struct {
	Percentage         float64
	ProcessedDuration  time.Duration
	TotalDuration      time.Duration
	Phase              string
	Speed              float64
	EstimatedRemaining time.Duration
}

// Statistics aggregates resource usage over a session's run.
type Statistics struct {
	StartedAt       time.Time
	EndedAt         time.Time
	BytesProcessed  int64
	FramesProcessed int64
	AverageSpeed    float64
	PeakMemoryBytes uint64
	CPUPercent      float64
}

// Result describes a completed conversion.
type Result struct {
	OutputPath       string
	OutputSizeBytes  int64
	CompressionRatio float64
}

// Session is the central record. The controller is its only writer;
// everything handed to callers is a copy.
type Session struct {
	ID        string
	Request   Request
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time

	Progress   Progress
	Statistics Statistics
	Error      *media.Error
	Result     *Result

	// InputSizeBytes and InputDuration are filled at validation time
	// from the probe.
	InputSizeBytes int64
	InputDuration  time.Duration
}

// NewSession mints a session in the created state.
func NewSession(req Request) *Session {
	now := time.Now()
	return &Session{
		ID:        ulid.Make().String(),
		Request:   req,
		State:     StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy safe to hand outside the registry.
func (s *Session) Clone() *Session {
	out := *s
	if s.Error != nil {
		errCopy := *s.Error
		out.Error = &errCopy
	}
	if s.Result != nil {
		resCopy := *s.Result
		out.Result = &resCopy
	}
	return &out
}
