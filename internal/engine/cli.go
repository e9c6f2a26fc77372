package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/convertd/convertd/internal/media"
)

// CLIEngine drives conversions through an external ffmpeg binary. It is
// cross-platform, reports progress by parsing stderr stats lines, and
// supports two-pass encodes and signal-based pause where the platform
// allows it.
type CLIEngine struct {
	ffmpegPath string
	prober     *Prober
	logger     *slog.Logger
}

func NewCLIEngine(ffmpegPath, ffprobePath string, logger *slog.Logger) *CLIEngine {
	return &CLIEngine{
		ffmpegPath: ffmpegPath,
		prober:     NewProber(ffprobePath),
		logger:     logger.With("component", "engine", "backend", KindCLI),
	}
}

func (e *CLIEngine) Analyze(ctx context.Context, path string) (*MediaInfo, error) {
	return e.prober.Probe(ctx, path)
}

func (e *CLIEngine) Capabilities() Capabilities {
	return Capabilities{
		Kind:            KindCLI,
		SupportsPause:   signalPauseSupported,
		SupportsTwoPass: true,
		Formats:         media.ContainerFormats(),
		VideoEncoders:   []string{"libx264", "libx265", "libvpx-vp9"},
	}
}

// Start launches the conversion and returns a handle streaming events.
// The events channel is closed after the terminal event.
func (e *CLIEngine) Start(ctx context.Context, inv Invocation) (Handle, error) {
	h := &cliHandle{
		engine: e,
		inv:    inv,
		events: make(chan Event, 16),
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancelRun = cancel

	args := e.buildArgs(inv, 0)
	cmd := exec.CommandContext(runCtx, e.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, media.WrapError(media.KindEncodingError, "getting stderr pipe", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, media.WrapError(media.KindEncodingError, "starting ffmpeg", err)
	}

	h.mu.Lock()
	h.cmd = cmd
	h.monitor = NewProcessMonitor(cmd.Process.Pid, inv.OutputPath)
	h.monitor.Start()
	h.started = time.Now()
	h.mu.Unlock()

	e.logger.Info("conversion started",
		"session_id", inv.SessionID,
		"input", inv.InputPath,
		"output", inv.OutputPath,
		"two_pass", inv.TwoPass,
		"pid", cmd.Process.Pid)

	go h.run(runCtx, stderr)
	return h, nil
}

// buildArgs assembles the ffmpeg invocation for one pass. Pass 0 means
// single pass; 1 and 2 are the analysis and encode halves of a two-pass
// run.
func (e *CLIEngine) buildArgs(inv Invocation, pass int) []string {
	p := inv.Params

	vcodec, acodec := codecsFor(inv.Container)

	args := []string{"-loglevel", "error", "-hide_banner", "-stats", "-y"}
	args = append(args, "-i", inv.InputPath)
	args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", p.Width, p.Height))
	args = append(args, "-c:v", vcodec)
	if vcodec == "libx264" {
		// H.264 profiles do not apply to VP9.
		args = append(args, "-profile:v", p.Profile)
	}
	args = append(args,
		"-b:v", fmt.Sprintf("%dk", p.VideoBitrateKbps),
		"-r", strconv.Itoa(p.FrameRate),
	)

	switch pass {
	case 1:
		// First pass analyses only; audio is skipped and output discarded.
		args = append(args, "-pass", "1", "-an", "-f", "null", os.DevNull)
		return args
	case 2:
		args = append(args, "-pass", "2")
	}

	args = append(args,
		"-c:a", acodec,
		"-b:a", fmt.Sprintf("%dk", p.AudioBitrateKbps),
		"-f", inv.Container.MuxerName(),
		inv.OutputPath,
	)
	return args
}

type cliHandle struct {
	engine *CLIEngine
	inv    Invocation
	events chan Event

	mu        sync.RWMutex
	cmd       *exec.Cmd
	monitor   *ProcessMonitor
	started   time.Time
	paused    bool
	cancelled bool
	cancelRun context.CancelFunc

	lastFrame int64
	lastSpeed float64
}

func (h *cliHandle) Events() <-chan Event { return h.events }

func (h *cliHandle) Stats() *ProcessStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.monitor == nil {
		return nil
	}
	stats := h.monitor.Stats()
	return &stats
}

func (h *cliHandle) Pause() error {
	if !signalPauseSupported {
		return media.NewError(media.KindInvalidOperation, "pause not supported on this platform")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil || h.cmd.Process == nil {
		return media.NewError(media.KindInvalidOperation, "process not running")
	}
	if h.paused {
		return nil
	}
	if err := h.cmd.Process.Signal(suspendSignal); err != nil {
		return media.WrapError(media.KindEncodingError, "suspending process", err)
	}
	h.paused = true
	return nil
}

func (h *cliHandle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil || h.cmd.Process == nil {
		return media.NewError(media.KindInvalidOperation, "process not running")
	}
	if !h.paused {
		return nil
	}
	if err := h.cmd.Process.Signal(resumeSignal); err != nil {
		return media.WrapError(media.KindEncodingError, "resuming process", err)
	}
	h.paused = false
	return nil
}

func (h *cliHandle) Cancel() error {
	h.mu.Lock()
	h.cancelled = true
	paused := h.paused
	cmd := h.cmd
	h.mu.Unlock()

	// A stopped process never sees the kill; continue it first.
	if paused && cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(resumeSignal)
	}
	h.cancelRun()
	return nil
}

// run drives one or two ffmpeg passes and emits the terminal event.
func (h *cliHandle) run(ctx context.Context, stderr io.ReadCloser) {
	defer close(h.events)

	var waitErr error
	if h.inv.TwoPass {
		waitErr = h.runTwoPass(ctx, stderr)
	} else {
		h.parseProgress(stderr, "converting", 0, 100)
		waitErr = h.wait()
	}

	h.mu.Lock()
	monitor := h.monitor
	cancelled := h.cancelled
	started := h.started
	h.mu.Unlock()

	if monitor != nil {
		monitor.Stop()
	}

	if cancelled {
		// The controller already marked the session; no event needed.
		return
	}

	if waitErr != nil {
		h.engine.logger.Warn("conversion failed",
			"session_id", h.inv.SessionID, "error", waitErr)
		h.events <- Event{Kind: EventFailed, Err: media.WrapError(media.KindEncodingError, "ffmpeg exited with error", waitErr)}
		return
	}

	result := &Result{
		OutputPath:      h.inv.OutputPath,
		Elapsed:         time.Since(started),
		FramesProcessed: h.lastFrame,
		AverageSpeed:    h.lastSpeed,
	}
	if fi, err := os.Stat(h.inv.OutputPath); err == nil {
		result.OutputSizeBytes = fi.Size()
	}

	h.events <- Event{
		Kind: EventCompleted,
		Progress: Progress{
			Percentage:        100,
			ProcessedDuration: h.inv.InputDuration,
			TotalDuration:     h.inv.InputDuration,
			Speed:             h.lastSpeed,
			Phase:             "completed",
		},
		Result: result,
	}
}

// runTwoPass finishes the already-started analysis pass, then launches
// the encode pass. The first pass maps to 0..40% of overall progress,
// the second to 40..100%.
func (h *cliHandle) runTwoPass(ctx context.Context, firstStderr io.ReadCloser) error {
	h.parseProgress(firstStderr, "analyzing", 0, 40)
	if err := h.wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	args := h.engine.buildArgs(h.inv, 2)
	cmd := exec.CommandContext(ctx, h.engine.ffmpegPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	h.mu.Lock()
	if h.monitor != nil {
		h.monitor.Stop()
	}
	h.cmd = cmd
	h.monitor = NewProcessMonitor(cmd.Process.Pid, h.inv.OutputPath)
	h.monitor.Start()
	h.mu.Unlock()

	h.parseProgress(stderr, "converting", 40, 100)
	return h.wait()
}

func (h *cliHandle) wait() error {
	h.mu.RLock()
	cmd := h.cmd
	h.mu.RUnlock()
	if cmd == nil {
		return fmt.Errorf("command not started")
	}
	return cmd.Wait()
}

var (
	frameRe = regexp.MustCompile(`frame=\s*(\d+)`)
	timeRe  = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
	speedRe = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// parseProgress reads ffmpeg stats lines from stderr, translates the
// elapsed time against the input duration, scales into [lo,hi] and
// emits progress events. Percentages never go backwards.
func (h *cliHandle) parseProgress(r io.Reader, phase string, lo, hi float64) {
	scanner := bufio.NewScanner(r)
	scanner.Split(scanStatsLines)

	var lastPct float64 = lo
	for scanner.Scan() {
		line := scanner.Text()

		var processed time.Duration
		if m := timeRe.FindStringSubmatch(line); len(m) > 4 {
			hours, _ := strconv.Atoi(m[1])
			mins, _ := strconv.Atoi(m[2])
			secs, _ := strconv.Atoi(m[3])
			centis, _ := strconv.Atoi(m[4])
			processed = time.Duration(hours)*time.Hour +
				time.Duration(mins)*time.Minute +
				time.Duration(secs)*time.Second +
				time.Duration(centis)*10*time.Millisecond
		} else {
			continue
		}

		if m := frameRe.FindStringSubmatch(line); len(m) > 1 {
			h.lastFrame, _ = strconv.ParseInt(m[1], 10, 64)
		}
		if m := speedRe.FindStringSubmatch(line); len(m) > 1 {
			h.lastSpeed, _ = strconv.ParseFloat(m[1], 64)
		}

		pct := lo
		if h.inv.InputDuration > 0 {
			frac := float64(processed) / float64(h.inv.InputDuration)
			if frac > 1 {
				frac = 1
			}
			pct = lo + frac*(hi-lo)
		}
		if pct < lastPct {
			pct = lastPct
		}
		lastPct = pct

		evt := Event{
			Kind: EventProgress,
			Progress: Progress{
				Percentage:        pct,
				ProcessedDuration: processed,
				TotalDuration:     h.inv.InputDuration,
				Speed:             h.lastSpeed,
				Phase:             phase,
			},
		}
		select {
		case h.events <- evt:
		default:
			// Slow consumer; drop the tick rather than stall the parser.
		}
	}
}

// scanStatsLines splits on both \n and \r since ffmpeg rewrites its
// stats line in place with carriage returns.
func scanStatsLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := strings.IndexAny(string(data), "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
