package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// mustFlag reads a flag registered in init(). A lookup error is a programming bug, so it panics.
func mustFlag[T any](cmd *cobra.Command, name string, get func(string) (T, error)) T {
	val, err := get(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return mustFlag(cmd, name, cmd.Flags().GetBool)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return mustFlag(cmd, name, cmd.Flags().GetInt)
}

func mustGetString(cmd *cobra.Command, name string) string {
	return mustFlag(cmd, name, cmd.Flags().GetString)
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	return mustFlag(cmd, name, cmd.Flags().GetFloat64)
}

// thresholdFlag returns --threshold when it was given on the command line and fallback otherwise.
// The value is passed through unchecked; facerec.NewRecognizer rejects negative thresholds.
func thresholdFlag(cmd *cobra.Command, fallback float64) float64 {
	if !cmd.Flags().Changed("threshold") {
		return fallback
	}
	return mustGetFloat64(cmd, "threshold")
}
