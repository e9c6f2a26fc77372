package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/convertd/convertd/internal/engine"
	"github.com/convertd/convertd/pkg/bytesize"
	"github.com/convertd/convertd/pkg/duration"
)

var probeJSON bool

var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Inspect a media file",
	Long:  `Probe a media file with ffprobe and print its container, streams, and duration.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func init() {
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "output media info as JSON")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	selector := engine.NewSelector(slog.Default(), engine.SelectorOptions{
		FFmpegPath:      cfg.Engine.FFmpegPath,
		FFprobePath:     cfg.Engine.FFprobePath,
		PreferHardware:  false,
		HWAccelPriority: cfg.Engine.HWAccelPriority,
	})

	info, err := selector.Engine(cmd.Context()).Analyze(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("probing %s: %w", args[0], err)
	}

	if probeJSON {
		out, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling media info: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Path:       %s\n", info.Path)
	fmt.Printf("Container:  %s\n", info.Container)
	fmt.Printf("Duration:   %s\n", duration.Format(info.Duration))
	fmt.Printf("Size:       %s\n", bytesize.Format(bytesize.Size(info.SizeBytes)))
	if info.HasVideo {
		fmt.Printf("Video:      %s %dx%d @ %.2ffps\n", info.VideoCodec, info.Width, info.Height, info.Framerate)
	}
	if info.AudioCodec != "" {
		fmt.Printf("Audio:      %s (%d channels)\n", info.AudioCodec, info.AudioChannels)
	}
	if info.BitrateBps > 0 {
		fmt.Printf("Bitrate:    %d kb/s\n", info.BitrateBps/1000)
	}

	return nil
}
