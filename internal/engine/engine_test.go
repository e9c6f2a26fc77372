package engine

import (
	"bufio"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convertd/convertd/internal/media"
)

func TestParamsForQuality(t *testing.T) {
	tests := []struct {
		tier    media.QualityTier
		width   int
		vKbps   int
		profile string
	}{
		{media.Quality4K, 3840, 16000, "high"},
		{media.Quality1080p, 1920, 8000, "high"},
		{media.Quality720p, 1280, 4000, "main"},
		{media.Quality480p, 854, 1800, "main"},
		{media.QualityLow, 640, 800, "baseline"},
	}

	for _, tt := range tests {
		t.Run(tt.tier.String(), func(t *testing.T) {
			p := ParamsForQuality(tt.tier)
			assert.Equal(t, tt.width, p.Width)
			assert.Equal(t, tt.vKbps, p.VideoBitrateKbps)
			assert.Equal(t, tt.profile, p.Profile)
		})
	}

	t.Run("unknown tier falls back to low", func(t *testing.T) {
		assert.Equal(t, ParamsForQuality(media.QualityLow), ParamsForQuality(media.QualityTier(42)))
	})
}

func testInvocation() Invocation {
	return Invocation{
		SessionID:     "01HXY0000000000000000000TEST",
		InputPath:     "/media/in.mkv",
		OutputPath:    "/media/out.mp4",
		Params:        ParamsForQuality(media.Quality720p),
		Container:     media.FormatMP4,
		InputDuration: 2 * time.Minute,
	}
}

func TestCLIEngine_BuildArgs(t *testing.T) {
	e := NewCLIEngine("ffmpeg", "ffprobe", slog.New(slog.DiscardHandler))

	t.Run("single pass", func(t *testing.T) {
		args := strings.Join(e.buildArgs(testInvocation(), 0), " ")
		assert.Contains(t, args, "-i /media/in.mkv")
		assert.Contains(t, args, "scale=1280:720")
		assert.Contains(t, args, "-b:v 4000k")
		assert.Contains(t, args, "-b:a 128k")
		assert.Contains(t, args, "-profile:v main")
		assert.Contains(t, args, "-f mp4")
		assert.True(t, strings.HasSuffix(args, "/media/out.mp4"))
		assert.NotContains(t, args, "-pass")
	})

	t.Run("first pass discards output and audio", func(t *testing.T) {
		args := strings.Join(e.buildArgs(testInvocation(), 1), " ")
		assert.Contains(t, args, "-pass 1")
		assert.Contains(t, args, "-an")
		assert.Contains(t, args, "-f null")
		assert.NotContains(t, args, "/media/out.mp4")
	})

	t.Run("second pass writes real output", func(t *testing.T) {
		args := strings.Join(e.buildArgs(testInvocation(), 2), " ")
		assert.Contains(t, args, "-pass 2")
		assert.True(t, strings.HasSuffix(args, "/media/out.mp4"))
	})

	t.Run("mkv container selects matroska muxer", func(t *testing.T) {
		inv := testInvocation()
		inv.Container = media.FormatMKV
		args := strings.Join(e.buildArgs(inv, 0), " ")
		assert.Contains(t, args, "-f matroska")
	})

	t.Run("webm container selects vp9 and opus", func(t *testing.T) {
		inv := testInvocation()
		inv.Container = media.FormatWebM
		inv.OutputPath = "/media/out.webm"
		args := strings.Join(e.buildArgs(inv, 0), " ")
		assert.Contains(t, args, "-c:v libvpx-vp9")
		assert.Contains(t, args, "-c:a libopus")
		assert.Contains(t, args, "-f webm")
		assert.NotContains(t, args, "libx264")
		assert.NotContains(t, args, "-profile:v", "h264 profiles do not apply to vp9")
	})
}

func TestHardwareEngine_RejectsWebM(t *testing.T) {
	e := &HardwareEngine{
		ffmpegPath: "ffmpeg",
		encoder:    "h264_nvenc",
		accel:      "cuda",
		logger:     slog.New(slog.DiscardHandler),
	}

	assert.NotContains(t, e.Capabilities().Formats, media.FormatWebM)

	inv := testInvocation()
	inv.Container = media.FormatWebM
	inv.OutputPath = "/media/out.webm"
	_, err := e.Start(context.Background(), inv)
	assert.True(t, media.IsKind(err, media.KindInvalidOperation))
}

func TestCLIHandle_ParseProgress(t *testing.T) {
	h := &cliHandle{
		inv:    testInvocation(),
		events: make(chan Event, 64),
	}

	stderr := strings.NewReader(
		"frame=  240 fps= 48 q=28.0 size=    1024KiB time=00:00:30.00 bitrate= 279.6kbits/s speed=1.95x\r" +
			"frame=  480 fps= 50 q=28.0 size=    2048KiB time=00:01:00.00 bitrate= 279.6kbits/s speed=2.01x\r" +
			"frame=  960 fps= 50 q=28.0 size=    4096KiB time=00:02:00.00 bitrate= 279.6kbits/s speed=2.00x\n")

	h.parseProgress(stderr, "converting", 0, 100)
	close(h.events)

	var progress []Progress
	for evt := range h.events {
		require.Equal(t, EventProgress, evt.Kind)
		progress = append(progress, evt.Progress)
	}

	require.Len(t, progress, 3)
	assert.InDelta(t, 25, progress[0].Percentage, 0.1)
	assert.InDelta(t, 50, progress[1].Percentage, 0.1)
	assert.InDelta(t, 100, progress[2].Percentage, 0.1)
	assert.Equal(t, 30*time.Second, progress[0].ProcessedDuration)
	assert.Equal(t, 2*time.Minute, progress[0].TotalDuration)
	assert.InDelta(t, 1.95, progress[0].Speed, 0.001)
	assert.Equal(t, "converting", progress[0].Phase)
	assert.Equal(t, int64(960), h.lastFrame)
}

func TestCLIHandle_ParseProgress_Monotone(t *testing.T) {
	h := &cliHandle{
		inv:    testInvocation(),
		events: make(chan Event, 64),
	}

	// Timestamps that jump backwards must not lower the percentage.
	stderr := strings.NewReader(
		"frame=1 time=00:01:00.00 speed=1.0x\n" +
			"frame=2 time=00:00:30.00 speed=1.0x\n" +
			"frame=3 time=00:01:30.00 speed=1.0x\n")

	h.parseProgress(stderr, "converting", 0, 100)
	close(h.events)

	var last float64
	for evt := range h.events {
		assert.GreaterOrEqual(t, evt.Progress.Percentage, last)
		last = evt.Progress.Percentage
	}
}

func TestCLIHandle_ParseProgress_ScalesIntoWindow(t *testing.T) {
	h := &cliHandle{
		inv:    testInvocation(),
		events: make(chan Event, 64),
	}

	// Full input duration during the analysis pass maps to the window
	// ceiling, not 100%.
	stderr := strings.NewReader("frame=1 time=00:02:00.00 speed=3.0x\n")
	h.parseProgress(stderr, "analyzing", 0, 40)
	close(h.events)

	evt := <-h.events
	assert.InDelta(t, 40, evt.Progress.Percentage, 0.1)
	assert.Equal(t, "analyzing", evt.Progress.Phase)
}

func TestUnavailableEngine(t *testing.T) {
	e := NewUnavailableEngine()
	ctx := context.Background()

	_, analyzeErr := e.Analyze(ctx, "/in.mkv")
	_, startErr := e.Start(ctx, testInvocation())

	for _, err := range []error{analyzeErr, startErr} {
		require.Error(t, err)
		assert.True(t, media.IsKind(err, media.KindInvalidOperation))
		assert.Contains(t, err.Error(), "native module not found")
	}

	caps := e.Capabilities()
	assert.Equal(t, KindUnavailable, caps.Kind)
	assert.False(t, caps.SupportsPause)
	assert.Empty(t, caps.Formats)
}

func TestHWHandle_PauseUnsupported(t *testing.T) {
	h := &hwHandle{}
	assert.True(t, media.IsKind(h.Pause(), media.KindInvalidOperation))
	assert.True(t, media.IsKind(h.Resume(), media.KindInvalidOperation))
}

func TestParseFramerate(t *testing.T) {
	assert.InDelta(t, 29.97, parseFramerate("30000/1001"), 0.001)
	assert.Equal(t, 25.0, parseFramerate("25/1"))
	assert.Equal(t, 0.0, parseFramerate("0/0"))
	assert.Equal(t, 0.0, parseFramerate("garbage"))
}

func TestSelector_UnavailableWhenNoBinary(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	t.Setenv("CONVERTD_FFMPEG_BINARY", "")

	s := NewSelector(slog.New(slog.DiscardHandler), SelectorOptions{})
	e := s.Engine(context.Background())

	assert.Equal(t, KindUnavailable, e.Capabilities().Kind)

	t.Run("selection is cached", func(t *testing.T) {
		assert.Same(t, e, s.Engine(context.Background()))
	})
}

func TestScanStatsLines(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("a\rb\nc"))
	scanner.Split(scanStatsLines)

	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}
