package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/convertd/convertd/internal/session"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List quality profiles and conversion presets",
	Long: `List the built-in quality tiers with their encoder settings, the
named conversion presets, and the supported container formats.`,
	RunE: runPresets,
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}

func runPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "QUALITY\tRESOLUTION\tVIDEO\tAUDIO")
	for _, p := range session.QualityProfiles() {
		fmt.Fprintf(w, "%s\t%dx%d\t%dk\t%dk\n",
			p.Name, p.Width, p.Height, p.VideoBitrateKbps, p.AudioBitrateKbps)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "PRESET\tQUALITY\tFORMAT\tTWO-PASS\tDESCRIPTION")
	for _, p := range session.ConversionPresets() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n",
			p.Name, p.Quality, p.Format, p.TwoPass, p.Description)
	}
	fmt.Fprintln(w)

	fmt.Fprint(w, "FORMATS\t")
	for i, f := range session.SupportedFormats() {
		if i > 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprint(w, string(f))
	}
	fmt.Fprintln(w)

	return w.Flush()
}
