package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/convertd/convertd/internal/capability"
	"github.com/convertd/convertd/internal/config"
	"github.com/convertd/convertd/internal/device"
	"github.com/convertd/convertd/internal/engine"
	"github.com/convertd/convertd/internal/events"
	"github.com/convertd/convertd/internal/media"
	"github.com/convertd/convertd/internal/session"
	"github.com/convertd/convertd/internal/storage"
	"github.com/convertd/convertd/pkg/bytesize"
	"github.com/convertd/convertd/pkg/duration"
)

var (
	convertOutput  string
	convertQuality string
	convertFormat  string
	convertPreset  string
	convertTwoPass bool
	convertDryRun  bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Convert a media file",
	Long: `Convert a media file to the requested quality and container.

The conversion is admitted against live device telemetry: a device on
critically low battery, overheating, or out of storage refuses to
start. When no quality is given the device's recommended tier is used.

Progress is reported on stderr. Interrupting with Ctrl-C cancels the
running conversion cleanly.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output file path (default derives from input name)")
	convertCmd.Flags().StringVarP(&convertQuality, "quality", "q", "", "target quality (low, 480p, 720p, 1080p, 4k; default device recommendation)")
	convertCmd.Flags().StringVarP(&convertFormat, "format", "f", "mp4", "container format (mp4, mkv, webm, mov)")
	convertCmd.Flags().StringVar(&convertPreset, "preset", "", "named preset (archive, share, web, preview); overrides quality and format")
	convertCmd.Flags().BoolVar(&convertTwoPass, "two-pass", false, "two-pass encode for better quality at the same bitrate")
	convertCmd.Flags().BoolVar(&convertDryRun, "dry-run", false, "validate and print estimates without converting")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Device telemetry and backend selection
	provider := device.NewProvider(logger, device.ProviderOptions{
		StoragePath:       cfg.Storage.BaseDir,
		BenchmarkOverride: cfg.Device.BenchmarkScore,
	})
	selector := engine.NewSelector(logger, engine.SelectorOptions{
		FFmpegPath:      cfg.Engine.FFmpegPath,
		FFprobePath:     cfg.Engine.FFprobePath,
		PreferHardware:  cfg.Engine.PreferHardware,
		HWAccelPriority: cfg.Engine.HWAccelPriority,
	})
	eng := selector.Engine(ctx)

	quality, format, twoPass, err := resolveTarget(ctx, cfg, provider)
	if err != nil {
		return err
	}

	input := args[0]
	output := convertOutput
	if output == "" {
		ws, err := storage.NewWorkspace(cfg.Storage.BaseDir)
		if err != nil {
			return fmt.Errorf("initializing workspace: %w", err)
		}
		name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		output, err = ws.OutputPath(fmt.Sprintf("%s.%s%s", name, quality, format.Extension()))
		if err != nil {
			return fmt.Errorf("deriving output path: %w", err)
		}
	}

	registry := session.NewRegistry()
	bus := events.NewBus(logger)
	controller := session.NewController(registry, eng, provider, bus, storage.NewFS(), logger,
		session.ControllerOptions{
			MaxSessions:       cfg.Session.MaxSessions,
			MinFreeSpaceBytes: cfg.Storage.MinFreeSpace.Bytes(),
		})

	req := session.Request{
		InputPath:     input,
		OutputPath:    output,
		TargetQuality: quality,
		TargetFormat:  format,
		TwoPass:       twoPass,
	}

	if convertDryRun {
		return printEstimates(ctx, controller, eng, req)
	}

	// Periodic device checks publish pause advisories while we run
	monitor, err := session.NewMonitor(registry, provider, bus, logger, session.MonitorOptions{
		Schedule:  cfg.Session.MonitorSchedule,
		Retention: cfg.Session.Retention.Duration(),
	})
	if err != nil {
		return fmt.Errorf("initializing device monitor: %w", err)
	}
	monitor.Start(ctx)
	defer monitor.Stop()

	done := make(chan events.Event, 1)
	bus.Subscribe([]events.Type{events.TypeProgress}, func(evt events.Event) {
		if p, ok := evt.Payload.(events.ProgressPayload); ok {
			fmt.Fprintf(os.Stderr, "\r%5.1f%%  phase=%-10s speed=%.2fx eta=%s   ",
				p.Percentage, p.Phase, p.Speed, duration.Format(p.EstimatedRemaining))
		}
	})
	bus.Subscribe([]events.Type{events.TypeDeviceWarning}, func(evt events.Event) {
		if w, ok := evt.Payload.(events.DeviceWarningPayload); ok {
			fmt.Fprintf(os.Stderr, "\ndevice warning: %s (%s)\n", w.Reason, w.Suggestion)
		}
	})
	bus.Subscribe([]events.Type{events.TypeCompleted, events.TypeFailed, events.TypeCancelled}, func(evt events.Event) {
		select {
		case done <- evt:
		default:
		}
	})

	sess := controller.CreateSession(req)

	// Ctrl-C cancels the conversion rather than killing the process
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		logger.Info("received signal, cancelling conversion", slog.String("signal", sig.String()))
		if err := controller.CancelConversion(sess.ID); err != nil {
			logger.Error("cancelling conversion", slog.String("error", err.Error()))
		}
	}()

	if err := controller.StartConversion(ctx, sess.ID); err != nil {
		return fmt.Errorf("starting conversion: %w", err)
	}

	evt := <-done
	fmt.Fprintln(os.Stderr)

	final, err := controller.GetSessionStatus(sess.ID)
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}

	switch evt.Type {
	case events.TypeCompleted:
		printResult(final)
		rememberTarget(ctx, cfg, quality, format)
	case events.TypeFailed:
		if final.Error != nil {
			return fmt.Errorf("conversion failed: %w", final.Error)
		}
		return fmt.Errorf("conversion failed")
	case events.TypeCancelled:
		fmt.Println("conversion cancelled")
	}

	return controller.Cleanup(sess.ID)
}

// resolveTarget decides quality, format, and pass count from preset,
// flags, remembered settings, and finally the device recommendation.
func resolveTarget(ctx context.Context, cfg *config.Config, provider *device.Provider) (media.QualityTier, media.ContainerFormat, bool, error) {
	if convertPreset != "" {
		for _, p := range session.ConversionPresets() {
			if p.Name == convertPreset {
				return p.Quality, p.Format, p.TwoPass, nil
			}
		}
		return 0, "", false, fmt.Errorf("unknown preset %q", convertPreset)
	}

	format, err := media.ParseContainerFormat(convertFormat)
	if err != nil {
		return 0, "", false, err
	}

	if convertQuality != "" {
		quality, err := media.ParseQualityTier(convertQuality)
		if err != nil {
			return 0, "", false, err
		}
		return quality, format, convertTwoPass, nil
	}

	// Fall back to the last explicitly chosen quality, then the device
	// recommendation.
	if store, err := storage.OpenSettings(cfg.Settings.DSN); err == nil {
		defer store.Close()
		if last, ok, err := store.Get(ctx, "conversion", "last_quality"); err == nil && ok {
			if quality, err := media.ParseQualityTier(last); err == nil {
				return quality, format, convertTwoPass, nil
			}
		}
	}

	rec := capability.RecommendQuality(provider.Snapshot(ctx))
	return rec.Recommended, format, convertTwoPass, nil
}

// rememberTarget persists the chosen quality and format as defaults for
// the next run. Best effort.
func rememberTarget(ctx context.Context, cfg *config.Config, quality media.QualityTier, format media.ContainerFormat) {
	store, err := storage.OpenSettings(cfg.Settings.DSN)
	if err != nil {
		return
	}
	defer store.Close()
	_ = store.Set(ctx, "conversion", "last_quality", quality.String())
	_ = store.Set(ctx, "conversion", "last_format", string(format))
}

func printEstimates(ctx context.Context, controller *session.Controller, eng engine.Engine, req session.Request) error {
	res := controller.ValidateRequest(ctx, req)
	for _, e := range res.Errors {
		fmt.Printf("error:   %s\n", e)
	}
	for _, w := range res.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	if !res.IsValid {
		return fmt.Errorf("request is not valid")
	}

	info, err := eng.Analyze(ctx, req.InputPath)
	if err != nil {
		return fmt.Errorf("probing input: %w", err)
	}

	size := session.EstimateOutputSize(info.Duration, req.TargetQuality)
	eta := controller.EstimateProcessingTime(ctx, info.Duration, req.TargetQuality)

	fmt.Printf("Input:            %s (%s, %s)\n", req.InputPath,
		duration.Format(info.Duration), bytesize.Format(bytesize.Size(info.SizeBytes)))
	fmt.Printf("Output:           %s\n", req.OutputPath)
	fmt.Printf("Target:           %s %s\n", req.TargetQuality, req.TargetFormat)
	fmt.Printf("Estimated size:   %s\n", bytesize.Format(bytesize.Size(size)))
	fmt.Printf("Estimated time:   %s\n", duration.Format(eta))
	return nil
}

func printResult(s *session.Session) {
	fmt.Printf("completed: %s\n", s.Result.OutputPath)
	fmt.Printf("  size:        %s\n", bytesize.Format(bytesize.Size(s.Result.OutputSizeBytes)))
	if s.Result.CompressionRatio > 0 {
		fmt.Printf("  compression: %.2fx\n", s.Result.CompressionRatio)
	}
	if !s.Statistics.StartedAt.IsZero() && !s.Statistics.EndedAt.IsZero() {
		fmt.Printf("  elapsed:     %s\n", duration.Format(s.Statistics.EndedAt.Sub(s.Statistics.StartedAt)))
	}
	if s.Statistics.AverageSpeed > 0 {
		fmt.Printf("  speed:       %.2fx\n", s.Statistics.AverageSpeed)
	}
}
