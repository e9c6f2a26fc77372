package engine

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/convertd/convertd/internal/util"
)

// SelectorOptions configure backend probing.
type SelectorOptions struct {
	FFmpegPath  string
	FFprobePath string

	// PreferHardware probes for a hardware encoder before settling on
	// the CLI backend.
	PreferHardware bool

	// HWAccelPriority orders which accelerators to try first.
	HWAccelPriority []string
}

// Selector probes available backends once and caches the winner for the
// process lifetime. Probe order: hardware (if preferred), then CLI,
// then the unavailable fallback. A failed probe is retried once before
// moving on.
type Selector struct {
	opts   SelectorOptions
	logger *slog.Logger

	once   sync.Once
	engine Engine
}

func NewSelector(logger *slog.Logger, opts SelectorOptions) *Selector {
	return &Selector{
		opts:   opts,
		logger: logger.With("component", "engine"),
	}
}

// Engine returns the selected backend, probing on first call. Selection
// never fails; when nothing works the unavailable backend is returned
// and the probe failure is logged.
func (s *Selector) Engine(ctx context.Context) Engine {
	s.once.Do(func() {
		s.engine = s.probe(ctx)
	})
	return s.engine
}

func (s *Selector) probe(ctx context.Context) Engine {
	ffmpeg := resolveBinary(s.opts.FFmpegPath, "CONVERTD_FFMPEG_BINARY", "ffmpeg")
	ffprobe := resolveBinary(s.opts.FFprobePath, "CONVERTD_FFPROBE_BINARY", "ffprobe")

	if ffmpeg == "" {
		s.logger.Error("no ffmpeg binary found; conversions unavailable")
		return NewUnavailableEngine()
	}

	if s.opts.PreferHardware {
		for attempt := 0; attempt < 2; attempt++ {
			hw, err := DetectHardwareEngine(ctx, ffmpeg, ffprobe, s.opts.HWAccelPriority, s.logger)
			if err == nil {
				return hw
			}
			if attempt == 1 {
				s.logger.Warn("hardware probe failed, falling back to cli backend", "error", err)
			}
		}
	}

	return NewCLIEngine(ffmpeg, ffprobe, s.logger)
}

// resolveBinary finds a binary by explicit path, then environment
// override or PATH lookup. Returns "" when nothing resolves.
func resolveBinary(configured, envVar, name string) string {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured
		}
	}
	path, err := util.FindBinary(name, envVar)
	if err != nil {
		return ""
	}
	return path
}
