package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/convertd/convertd/internal/capability"
	"github.com/convertd/convertd/internal/device"
	"github.com/convertd/convertd/internal/engine"
	"github.com/convertd/convertd/internal/events"
	"github.com/convertd/convertd/internal/media"
)

// Storage is the slice of the file system the controller needs for
// request validation.
type Storage interface {
	Exists(path string) bool
	Size(path string) (int64, error)
	EnsureDir(path string) error
	FreeSpace(path string) (uint64, error)
}

// ValidationResult reports request problems without failing; invalid
// requests are described, not rejected with an error.
type ValidationResult struct {
	IsValid  bool
	Errors   []string
	Warnings []string
}

// ControllerOptions tune admission and lifecycle behaviour.
type ControllerOptions struct {
	// MaxSessions caps concurrent active sessions on top of the
	// device-derived limit. Zero means device-derived only.
	MaxSessions int

	// MinFreeSpaceBytes fails validation when the output filesystem has
	// less free space than this, regardless of the estimated output
	// size. Zero disables the floor.
	MinFreeSpaceBytes int64
}

// Controller drives sessions through the engine. It is the sole writer
// of session records; engine callbacks only ever reach sessions through
// the registry's serialized updates.
type Controller struct {
	registry  *Registry
	engine    engine.Engine
	telemetry device.Telemetry
	bus       *events.Bus
	store     Storage
	logger    *slog.Logger
	opts      ControllerOptions

	mu      sync.Mutex
	handles map[string]engine.Handle
}

func NewController(
	registry *Registry,
	eng engine.Engine,
	telemetry device.Telemetry,
	bus *events.Bus,
	store Storage,
	logger *slog.Logger,
	opts ControllerOptions,
) *Controller {
	return &Controller{
		registry:  registry,
		engine:    eng,
		telemetry: telemetry,
		bus:       bus,
		store:     store,
		logger:    logger.With("component", "session"),
		opts:      opts,
		handles:   make(map[string]engine.Handle),
	}
}

// CreateSession registers a new session in the created state. Creation
// never fails; bad requests surface later through validation.
func (c *Controller) CreateSession(req Request) *Session {
	s := NewSession(req)
	c.registry.Put(s)

	c.logger.Info("session created",
		"session_id", s.ID,
		"input", req.InputPath,
		"quality", req.TargetQuality.String(),
		"format", string(req.TargetFormat))

	c.publishStateChange(s.ID, StateCreated)
	return s.Clone()
}

// ValidateRequest checks a request without touching any session. It
// never returns an error; problems are reported in the result.
func (c *Controller) ValidateRequest(ctx context.Context, req Request) ValidationResult {
	var res ValidationResult

	if req.InputPath == "" {
		res.Errors = append(res.Errors, "input path is empty")
	} else if !c.store.Exists(req.InputPath) {
		res.Errors = append(res.Errors, "input file does not exist: "+req.InputPath)
	}

	if req.OutputPath == "" {
		res.Errors = append(res.Errors, "output path is empty")
	} else if err := c.store.EnsureDir(filepath.Dir(req.OutputPath)); err != nil {
		res.Errors = append(res.Errors, "output location not writable: "+err.Error())
	}

	if !req.TargetQuality.Valid() {
		res.Errors = append(res.Errors, "unknown target quality")
	}
	if !req.TargetFormat.Valid() {
		res.Errors = append(res.Errors, "unsupported target format")
	} else if !slices.Contains(c.engine.Capabilities().Formats, req.TargetFormat) {
		res.Errors = append(res.Errors, fmt.Sprintf(
			"target format %s not supported by the %s backend", req.TargetFormat, c.engine.Capabilities().Kind))
	}

	if req.OutputPath != "" && c.opts.MinFreeSpaceBytes > 0 {
		if free, err := c.store.FreeSpace(filepath.Dir(req.OutputPath)); err == nil && free < uint64(c.opts.MinFreeSpaceBytes) {
			res.Errors = append(res.Errors, fmt.Sprintf(
				"free space below configured minimum of %d bytes", c.opts.MinFreeSpaceBytes))
		}
	}

	// Free-space check against the estimated output size. A statable
	// input lets us bound the estimate by duration; otherwise warn.
	if req.InputPath != "" && req.OutputPath != "" && req.TargetQuality.Valid() {
		if size, err := c.store.Size(req.InputPath); err == nil {
			estimated := estimateOutputFromInput(size, req.TargetQuality)
			if free, err := c.store.FreeSpace(filepath.Dir(req.OutputPath)); err == nil {
				if uint64(estimated) > free {
					res.Errors = append(res.Errors, fmt.Sprintf(
						"insufficient free space: need about %d bytes, have %d", estimated, free))
				} else if uint64(estimated*2) > free {
					res.Warnings = append(res.Warnings, "free space is tight for this conversion")
				}
			}
		}
	}

	snap := c.telemetry.Snapshot(ctx)
	rec := capability.RecommendQuality(snap)
	if req.TargetQuality > rec.Max {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"requested quality %s exceeds device maximum %s", req.TargetQuality, rec.Max))
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

// ValidateSession probes the input and moves the session from created
// to validated. Wrong-state calls are an error at the call site.
func (c *Controller) ValidateSession(ctx context.Context, id string) (ValidationResult, error) {
	s, err := c.registry.Get(id)
	if err != nil {
		return ValidationResult{}, err
	}
	if s.State != StateCreated {
		return ValidationResult{}, media.NewError(media.KindInvalidOperation,
			"cannot validate session in state "+s.State.String())
	}

	res := c.ValidateRequest(ctx, s.Request)
	if !res.IsValid {
		return res, nil
	}

	info, err := c.engine.Analyze(ctx, s.Request.InputPath)
	if err != nil {
		res.IsValid = false
		res.Errors = append(res.Errors, "could not analyze input: "+err.Error())
		return res, nil
	}

	if err := c.registry.Update(id, func(s *Session) {
		s.State = StateValidated
		s.InputSizeBytes = info.SizeBytes
		s.InputDuration = info.Duration
		s.UpdatedAt = time.Now()
	}); err != nil {
		return res, err
	}

	c.publishStateChange(id, StateValidated)
	return res, nil
}

// StartConversion admits and launches a validated session. Admission
// failures come back as classified errors: device vetoes carry their
// blocker kind, and hitting the concurrency gate returns a retryable
// error with the session left untouched.
func (c *Controller) StartConversion(ctx context.Context, id string) error {
	s, err := c.registry.Get(id)
	if err != nil {
		return err
	}
	if s.State != StateCreated && s.State != StateValidated {
		return media.NewError(media.KindInvalidOperation,
			"cannot start conversion from state "+s.State.String())
	}

	if s.State == StateCreated {
		res, err := c.ValidateSession(ctx, id)
		if err != nil {
			return err
		}
		if !res.IsValid {
			return media.NewError(media.KindValidationError, res.Errors[0])
		}
		s, _ = c.registry.Get(id)
	}

	snap := c.telemetry.Snapshot(ctx)
	if verdict := capability.SuitableForConversion(snap); !verdict.Suitable {
		return media.NewError(capability.BlockerKind(snap), verdict.Blockers[0])
	}

	limit := capability.EstimateMaxConcurrentJobs(snap)
	if c.opts.MaxSessions > 0 && c.opts.MaxSessions < limit {
		limit = c.opts.MaxSessions
	}
	if c.registry.CountActive() >= limit {
		return &media.Error{
			Kind:      media.KindInvalidOperation,
			Message:   fmt.Sprintf("concurrency limit reached (%d active)", limit),
			Retryable: true,
		}
	}

	if err := c.transition(id, StateQueued); err != nil {
		return err
	}

	inv := engine.Invocation{
		SessionID:     id,
		InputPath:     s.Request.InputPath,
		OutputPath:    s.Request.OutputPath,
		Params:        engine.ParamsForQuality(s.Request.TargetQuality),
		Container:     s.Request.TargetFormat,
		TwoPass:       s.Request.TwoPass && c.engine.Capabilities().SupportsTwoPass,
		InputDuration: s.InputDuration,
	}

	handle, err := c.engine.Start(ctx, inv)
	if err != nil {
		c.failSession(id, media.WrapError(media.KindEncodingError, "starting backend", err))
		return err
	}

	c.mu.Lock()
	c.handles[id] = handle
	c.mu.Unlock()

	if err := c.registry.Update(id, func(s *Session) {
		s.State = StateProcessing
		s.Statistics.StartedAt = time.Now()
		s.Progress.Phase = "converting"
		s.UpdatedAt = time.Now()
	}); err != nil {
		return err
	}
	c.publishStateChange(id, StateProcessing)

	go c.consume(id, handle)
	return nil
}

// PauseConversion suspends a processing session. Backends without pause
// support report INVALID_OPERATION and the session keeps running.
func (c *Controller) PauseConversion(id string) error {
	s, err := c.registry.Get(id)
	if err != nil {
		return err
	}
	if s.State != StateProcessing {
		return media.NewError(media.KindInvalidOperation,
			"cannot pause session in state "+s.State.String())
	}

	handle := c.handle(id)
	if handle == nil {
		return media.NewError(media.KindInvalidOperation, "no running backend for session")
	}
	if err := handle.Pause(); err != nil {
		return err
	}
	return c.transition(id, StatePaused)
}

// ResumeConversion continues a paused session.
func (c *Controller) ResumeConversion(id string) error {
	s, err := c.registry.Get(id)
	if err != nil {
		return err
	}
	if s.State != StatePaused {
		return media.NewError(media.KindInvalidOperation,
			"cannot resume session in state "+s.State.String())
	}

	handle := c.handle(id)
	if handle == nil {
		return media.NewError(media.KindInvalidOperation, "no running backend for session")
	}
	if err := handle.Resume(); err != nil {
		return err
	}
	return c.transition(id, StateProcessing)
}

// CancelConversion aborts a session. The registry is marked cancelled
// first so late backend events are discarded, then the backend is
// signalled. Cancelling a terminal session is a no-op.
func (c *Controller) CancelConversion(id string) error {
	s, err := c.registry.Get(id)
	if err != nil {
		return err
	}
	if s.State.IsTerminal() {
		return nil
	}

	if err := c.registry.Update(id, func(s *Session) {
		s.State = StateCancelled
		s.Statistics.EndedAt = time.Now()
		s.UpdatedAt = time.Now()
	}); err != nil {
		return err
	}

	if handle := c.handle(id); handle != nil {
		if err := handle.Cancel(); err != nil {
			c.logger.Warn("backend cancel failed", "session_id", id, "error", err)
		}
	}
	c.dropHandle(id)

	c.logger.Info("session cancelled", "session_id", id)
	c.bus.Publish(events.Event{Type: events.TypeCancelled, SessionID: id})
	c.publishStateChange(id, StateCancelled)
	return nil
}

// GetSessionStatus returns a copy of the session record.
func (c *Controller) GetSessionStatus(id string) (*Session, error) {
	return c.registry.Get(id)
}

// ListSessions returns copies of every known session.
func (c *Controller) ListSessions() []*Session {
	return c.registry.List()
}

// Cleanup evicts a session. A live session is cancelled first so the
// backend is torn down before the record goes.
func (c *Controller) Cleanup(id string) error {
	s, err := c.registry.Get(id)
	if err != nil {
		return err
	}
	if !s.State.IsTerminal() {
		if err := c.CancelConversion(id); err != nil {
			return err
		}
	}
	c.registry.Delete(id)
	c.dropHandle(id)
	return nil
}

// CleanupAll evicts every known session, cancelling live ones, and
// returns how many went.
func (c *Controller) CleanupAll() int {
	n := 0
	for _, s := range c.registry.List() {
		if err := c.Cleanup(s.ID); err != nil {
			c.logger.Warn("cleanup failed", "session_id", s.ID, "error", err)
			continue
		}
		n++
	}
	return n
}

// consume folds engine events into the registry until the handle's
// channel closes. Events for sessions that are no longer live are
// discarded by id and state, never applied.
func (c *Controller) consume(id string, handle engine.Handle) {
	for evt := range handle.Events() {
		switch evt.Kind {
		case engine.EventProgress:
			c.applyProgress(id, handle, evt.Progress)
		case engine.EventCompleted:
			c.completeSession(id, handle, evt)
		case engine.EventFailed:
			c.failSession(id, evt.Err)
		}
	}
	c.dropHandle(id)
}

func (c *Controller) applyProgress(id string, handle engine.Handle, p engine.Progress) {
	var applied bool
	var out Progress

	err := c.registry.Update(id, func(s *Session) {
		if s.State != StateProcessing && s.State != StatePaused {
			return
		}
		// Progress never goes backwards for a session.
		if p.Percentage < s.Progress.Percentage {
			return
		}

		s.Progress.Percentage = p.Percentage
		s.Progress.ProcessedDuration = p.ProcessedDuration
		s.Progress.TotalDuration = p.TotalDuration
		s.Progress.Speed = p.Speed
		if p.Phase != "" && p.Phase != s.Progress.Phase {
			s.Progress.Phase = p.Phase
			c.bus.Publish(events.Event{
				Type:      events.TypePhaseChange,
				SessionID: id,
				Payload:   p.Phase,
			})
		}
		s.Progress.EstimatedRemaining = estimateRemaining(p)

		if stats := handle.Stats(); stats != nil {
			s.Statistics.BytesProcessed = stats.OutputBytes
			s.Statistics.CPUPercent = stats.CPUPercent
			if stats.PeakRSSBytes > s.Statistics.PeakMemoryBytes {
				s.Statistics.PeakMemoryBytes = stats.PeakRSSBytes
			}
		}
		s.UpdatedAt = time.Now()

		applied = true
		out = s.Progress
	})
	if err != nil || !applied {
		return
	}

	c.bus.Publish(events.Event{
		Type:      events.TypeProgress,
		SessionID: id,
		Payload: events.ProgressPayload{
			Percentage:         out.Percentage,
			ProcessedDuration:  out.ProcessedDuration,
			TotalDuration:      out.TotalDuration,
			Phase:              out.Phase,
			Speed:              out.Speed,
			EstimatedRemaining: out.EstimatedRemaining,
		},
	})
}

func (c *Controller) completeSession(id string, handle engine.Handle, evt engine.Event) {
	var applied bool

	err := c.registry.Update(id, func(s *Session) {
		if !s.State.CanTransitionTo(StateCompleted) {
			return
		}
		s.State = StateCompleted
		s.Progress.Percentage = 100
		s.Progress.Phase = "completed"
		s.Progress.EstimatedRemaining = 0
		s.Statistics.EndedAt = time.Now()

		if evt.Result != nil {
			result := &Result{
				OutputPath:      evt.Result.OutputPath,
				OutputSizeBytes: evt.Result.OutputSizeBytes,
			}
			if evt.Result.OutputSizeBytes > 0 && s.InputSizeBytes > 0 {
				result.CompressionRatio = float64(s.InputSizeBytes) / float64(evt.Result.OutputSizeBytes)
			}
			s.Result = result
			s.Statistics.FramesProcessed = evt.Result.FramesProcessed
			s.Statistics.AverageSpeed = evt.Result.AverageSpeed
			s.Statistics.BytesProcessed = evt.Result.OutputSizeBytes
		}
		if stats := handle.Stats(); stats != nil && stats.PeakRSSBytes > s.Statistics.PeakMemoryBytes {
			s.Statistics.PeakMemoryBytes = stats.PeakRSSBytes
		}
		s.UpdatedAt = time.Now()
		applied = true
	})
	if err != nil || !applied {
		return
	}

	c.logger.Info("session completed", "session_id", id)
	c.bus.Publish(events.Event{Type: events.TypeCompleted, SessionID: id})
	c.publishStateChange(id, StateCompleted)
}

func (c *Controller) failSession(id string, cause error) {
	kind := media.KindOf(cause)
	if kind == "" {
		kind = media.KindUnknown
	}

	var applied bool
	err := c.registry.Update(id, func(s *Session) {
		if !s.State.CanTransitionTo(StateFailed) {
			return
		}
		s.State = StateFailed
		s.Error = &media.Error{Kind: kind, Message: cause.Error()}
		s.Statistics.EndedAt = time.Now()
		s.UpdatedAt = time.Now()
		applied = true
	})
	if err != nil || !applied {
		return
	}

	c.logger.Warn("session failed", "session_id", id, "kind", string(kind), "error", cause)
	c.bus.Publish(events.Event{
		Type:      events.TypeFailed,
		SessionID: id,
		Payload:   events.FailurePayload{Kind: string(kind), Message: cause.Error()},
	})
	c.publishStateChange(id, StateFailed)
}

func (c *Controller) transition(id string, next State) error {
	var rejected error
	err := c.registry.Update(id, func(s *Session) {
		if !s.State.CanTransitionTo(next) {
			rejected = media.NewError(media.KindInvalidOperation,
				fmt.Sprintf("illegal transition %s -> %s", s.State, next))
			return
		}
		s.State = next
		s.UpdatedAt = time.Now()
	})
	if err != nil {
		return err
	}
	if rejected != nil {
		return rejected
	}
	c.publishStateChange(id, next)
	return nil
}

func (c *Controller) publishStateChange(id string, state State) {
	c.bus.Publish(events.Event{
		Type:      events.TypeStateChange,
		SessionID: id,
		Payload:   state.String(),
	})
}

func (c *Controller) handle(id string) engine.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handles[id]
}

func (c *Controller) dropHandle(id string) {
	c.mu.Lock()
	delete(c.handles, id)
	c.mu.Unlock()
}

func estimateRemaining(p engine.Progress) time.Duration {
	if p.Speed <= 0 || p.TotalDuration <= 0 {
		return 0
	}
	left := p.TotalDuration - p.ProcessedDuration
	if left < 0 {
		return 0
	}
	return time.Duration(float64(left) / p.Speed)
}
