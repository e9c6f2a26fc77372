package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/convertd/convertd/internal/media"
)

// hwEncoderTable maps accelerator names to h264 encoders, in probe
// priority order.
var hwEncoderTable = []struct {
	Accel   string
	Encoder string
}{
	{"cuda", "h264_nvenc"},
	{"qsv", "h264_qsv"},
	{"vaapi", "h264_vaapi"},
	{"videotoolbox", "h264_videotoolbox"},
}

// HardwareEngine uses a platform transform encoder through ffmpeg's
// hardware paths. Faster and cooler than software encodes, but the
// encoder cannot be suspended mid-transform, so pause is unsupported.
type HardwareEngine struct {
	ffmpegPath string
	prober     *Prober
	accel      string
	encoder    string
	logger     *slog.Logger
}

// DetectHardwareEngine probes for a working hardware encoder and
// returns an engine bound to the first one that passes a smoke encode.
// Returns an error when no accelerator works.
func DetectHardwareEngine(ctx context.Context, ffmpegPath, ffprobePath string, priority []string, logger *slog.Logger) (*HardwareEngine, error) {
	log := logger.With("component", "engine", "backend", KindHardware)

	candidates := hwEncoderTable
	if len(priority) > 0 {
		candidates = orderByPriority(priority)
	}

	for _, c := range candidates {
		if !smokeEncode(ctx, ffmpegPath, c.Accel, c.Encoder) {
			continue
		}
		log.Info("hardware encoder detected", "accelerator", c.Accel, "encoder", c.Encoder)
		return &HardwareEngine{
			ffmpegPath: ffmpegPath,
			prober:     NewProber(ffprobePath),
			accel:      c.Accel,
			encoder:    c.Encoder,
			logger:     log,
		}, nil
	}
	return nil, fmt.Errorf("no working hardware accelerator found")
}

func orderByPriority(priority []string) []struct{ Accel, Encoder string } {
	var out []struct{ Accel, Encoder string }
	for _, want := range priority {
		for _, c := range hwEncoderTable {
			if c.Accel == want {
				out = append(out, struct{ Accel, Encoder string }{c.Accel, c.Encoder})
			}
		}
	}
	return out
}

// smokeEncode runs a tiny synthetic encode to verify the accelerator
// actually works, not just that ffmpeg lists it.
func smokeEncode(ctx context.Context, ffmpegPath, accel, encoder string) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-hide_banner",
		"-hwaccel", accel,
		"-f", "lavfi", "-i", "nullsrc=s=320x240:d=0.1",
		"-c:v", encoder,
		"-t", "0.01",
		"-f", "null", "-")
	return cmd.Run() == nil
}

func (e *HardwareEngine) Analyze(ctx context.Context, path string) (*MediaInfo, error) {
	return e.prober.Probe(ctx, path)
}

func (e *HardwareEngine) Capabilities() Capabilities {
	return Capabilities{
		Kind:                KindHardware,
		SupportsPause:       false,
		SupportsTwoPass:     false,
		HardwareAccelerated: true,
		// The detected encoders are H.264 only, which the WebM muxer
		// rejects, so WebM is not offered on this backend.
		Formats:       []media.ContainerFormat{media.FormatMP4, media.FormatMKV, media.FormatMOV},
		VideoEncoders: []string{e.encoder},
		Accelerators:  []string{e.accel},
	}
}

func (e *HardwareEngine) Start(ctx context.Context, inv Invocation) (Handle, error) {
	if inv.Container == media.FormatWebM {
		return nil, media.NewError(media.KindInvalidOperation,
			"webm output requires a VP9 encoder, not available on the hardware backend")
	}

	p := inv.Params

	args := []string{"-loglevel", "error", "-hide_banner", "-stats", "-y"}
	args = append(args, "-hwaccel", e.accel)
	args = append(args, "-i", inv.InputPath)
	args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", p.Width, p.Height))
	args = append(args,
		"-c:v", e.encoder,
		"-b:v", fmt.Sprintf("%dk", p.VideoBitrateKbps),
		"-r", strconv.Itoa(p.FrameRate),
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", p.AudioBitrateKbps),
		"-f", inv.Container.MuxerName(),
		inv.OutputPath,
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(runCtx, e.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, media.WrapError(media.KindEncodingError, "getting stderr pipe", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, media.WrapError(media.KindEncodingError, "starting hardware encode", err)
	}

	h := &hwHandle{
		engine:    e,
		inv:       inv,
		events:    make(chan Event, 16),
		cmd:       cmd,
		monitor:   NewProcessMonitor(cmd.Process.Pid, inv.OutputPath),
		started:   time.Now(),
		cancelRun: cancel,
	}
	h.monitor.Start()

	e.logger.Info("hardware conversion started",
		"session_id", inv.SessionID,
		"encoder", e.encoder,
		"pid", cmd.Process.Pid)

	go h.run(stderr)
	return h, nil
}

type hwHandle struct {
	engine  *HardwareEngine
	inv     Invocation
	events  chan Event
	cmd     *exec.Cmd
	monitor *ProcessMonitor
	started time.Time

	mu        sync.Mutex
	cancelled bool
	cancelRun context.CancelFunc

	lastFrame int64
	lastSpeed float64
}

func (h *hwHandle) Events() <-chan Event { return h.events }

func (h *hwHandle) Pause() error {
	return media.NewError(media.KindInvalidOperation, "hardware backend does not support pause")
}

func (h *hwHandle) Resume() error {
	return media.NewError(media.KindInvalidOperation, "hardware backend does not support pause")
}

func (h *hwHandle) Cancel() error {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
	h.cancelRun()
	return nil
}

func (h *hwHandle) Stats() *ProcessStats {
	stats := h.monitor.Stats()
	return &stats
}

func (h *hwHandle) run(stderr io.ReadCloser) {
	defer close(h.events)

	h.consumeProgress(stderr)
	waitErr := h.cmd.Wait()
	h.monitor.Stop()

	h.mu.Lock()
	cancelled := h.cancelled
	h.mu.Unlock()
	if cancelled {
		return
	}

	if waitErr != nil {
		h.events <- Event{Kind: EventFailed, Err: media.WrapError(media.KindEncodingError, "hardware encode failed", waitErr)}
		return
	}

	result := &Result{
		OutputPath:      h.inv.OutputPath,
		Elapsed:         time.Since(h.started),
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

func (h *hwHandle) consumeProgress(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Split(scanStatsLines)

	var lastPct float64
	for scanner.Scan() {
		line := scanner.Text()

		m := timeRe.FindStringSubmatch(line)
		if len(m) <= 4 {
			continue
		}
		hours, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		secs, _ := strconv.Atoi(m[3])
		centis, _ := strconv.Atoi(m[4])
		processed := time.Duration(hours)*time.Hour +
			time.Duration(mins)*time.Minute +
			time.Duration(secs)*time.Second +
			time.Duration(centis)*10*time.Millisecond

		if fm := frameRe.FindStringSubmatch(line); len(fm) > 1 {
			h.lastFrame, _ = strconv.ParseInt(fm[1], 10, 64)
		}
		if sm := speedRe.FindStringSubmatch(line); len(sm) > 1 {
			h.lastSpeed, _ = strconv.ParseFloat(sm[1], 64)
		}

		var pct float64
		if h.inv.InputDuration > 0 {
			frac := float64(processed) / float64(h.inv.InputDuration)
			if frac > 1 {
				frac = 1
			}
			pct = frac * 100
		}
		if pct < lastPct {
			pct = lastPct
		}
		lastPct = pct

		select {
		case h.events <- Event{
			Kind: EventProgress,
			Progress: Progress{
				Percentage:        pct,
				ProcessedDuration: processed,
				TotalDuration:     h.inv.InputDuration,
				Speed:             h.lastSpeed,
				Phase:             "converting",
			},
		}:
		default:
		}
	}
}
