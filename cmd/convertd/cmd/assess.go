package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/convertd/convertd/internal/capability"
	"github.com/convertd/convertd/internal/device"
	"github.com/convertd/convertd/pkg/bytesize"
)

var assessJSON bool

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Assess this device's conversion capability",
	Long: `Read live device telemetry and report the capability assessment used
to admit and size conversions: the 0-100 score, capability level,
quality recommendation, concurrency estimate, and anything that would
currently block or degrade a conversion.`,
	RunE: runAssess,
}

func init() {
	assessCmd.Flags().BoolVar(&assessJSON, "json", false, "output assessment as JSON")
	rootCmd.AddCommand(assessCmd)
}

// assessReport is the JSON shape of the assess command output.
type assessReport struct {
	CapturedAt         time.Time `json:"captured_at"`
	Score              float64   `json:"score"`
	Level              string    `json:"level"`
	CanHandle4K        bool      `json:"can_handle_4k"`
	ConcurrentJobs     int       `json:"concurrent_jobs"`
	MaxQuality         string    `json:"max_quality"`
	RecommendedQuality string    `json:"recommended_quality"`
	Confidence         int       `json:"confidence"`
	Suitable           bool      `json:"suitable"`
	Blockers           []string  `json:"blockers,omitempty"`
	Warnings           []string  `json:"warnings,omitempty"`
	BatteryLevel       float64   `json:"battery_level"`
	Charging           bool      `json:"charging"`
	Thermal            string    `json:"thermal"`
	MemoryAvailable    string    `json:"memory_available"`
	StorageAvailable   string    `json:"storage_available"`
}

func runAssess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	provider := device.NewProvider(slog.Default(), device.ProviderOptions{
		StoragePath:       cfg.Storage.BaseDir,
		BenchmarkOverride: cfg.Device.BenchmarkScore,
	})

	snap := provider.Snapshot(cmd.Context())
	assessment := capability.Assess(snap)
	rec := capability.RecommendQuality(snap)
	suit := capability.SuitableForConversion(snap)
	jobs := capability.EstimateMaxConcurrentJobs(snap)

	if assessJSON {
		report := assessReport{
			CapturedAt:         snap.CapturedAt,
			Score:              assessment.Score,
			Level:              string(assessment.Level),
			CanHandle4K:        assessment.CanHandle4K,
			ConcurrentJobs:     jobs,
			MaxQuality:         rec.Max.String(),
			RecommendedQuality: rec.Recommended.String(),
			Confidence:         rec.Confidence,
			Suitable:           suit.Suitable,
			Blockers:           suit.Blockers,
			Warnings:           suit.Warnings,
			BatteryLevel:       snap.BatteryLevel,
			Charging:           snap.Charging,
			Thermal:            snap.Thermal.String(),
			MemoryAvailable:    bytesize.Format(bytesize.Size(snap.MemoryAvailable)),
			StorageAvailable:   bytesize.Format(bytesize.Size(snap.StorageAvailable)),
		}
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling assessment: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Capability score:   %.1f (%s)\n", assessment.Score, assessment.Level)
	fmt.Printf("4K capable:         %v\n", assessment.CanHandle4K)
	fmt.Printf("Concurrent jobs:    %d\n", jobs)
	fmt.Printf("Quality:            max %s, recommended %s (confidence %d%%)\n",
		rec.Max, rec.Recommended, rec.Confidence)
	if len(rec.Reasons) > 0 {
		fmt.Printf("Quality notes:      %s\n", strings.Join(rec.Reasons, "; "))
	}
	fmt.Printf("Battery:            %.0f%% (charging: %v)\n", snap.BatteryLevel*100, snap.Charging)
	fmt.Printf("Thermal:            %s\n", snap.Thermal)
	fmt.Printf("Memory available:   %s\n", bytesize.Format(bytesize.Size(snap.MemoryAvailable)))
	fmt.Printf("Storage available:  %s\n", bytesize.Format(bytesize.Size(snap.StorageAvailable)))

	if suit.Suitable {
		fmt.Println("Suitable:           yes")
	} else {
		fmt.Println("Suitable:           no")
		for _, b := range suit.Blockers {
			fmt.Printf("  blocker: %s\n", b)
		}
	}
	for _, w := range suit.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}

	return nil
}
