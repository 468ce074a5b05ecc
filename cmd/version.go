package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facerec/internal/facerec"
)

// Build metadata, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

// VersionInfo describes the binary and the recognizer record format it writes.
type VersionInfo struct {
	Version       string   `json:"version"`
	Commit        string   `json:"commit"`
	Built         string   `json:"built"`
	GoVersion     string   `json:"go_version"`
	RecordVersion int      `json:"record_version"`
	Detectors     []string `json:"detectors"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build and record format information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := versionInfo()
		if mustGetBool(cmd, "json") {
			return outputJSON(info)
		}
		fmt.Printf("facerec %s (%s, built %s, %s)\n", info.Version, info.Commit, info.Built, info.GoVersion)
		fmt.Printf("  record format: v%d\n", info.RecordVersion)
		fmt.Printf("  detectors:     %v\n", info.Detectors)
		return nil
	},
}

func versionInfo() VersionInfo {
	detectors := make([]string, len(facerec.Detectors))
	for i, m := range facerec.Detectors {
		detectors[i] = m.String()
	}
	return VersionInfo{
		Version:       Version,
		Commit:        CommitSHA,
		Built:         BuildDate,
		GoVersion:     runtime.Version(),
		RecordVersion: facerec.RecordVersion,
		Detectors:     detectors,
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("json", false, "Output as JSON")
}
