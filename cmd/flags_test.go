package cmd

import (
	"errors"
	"testing"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facerec/internal/facerec"
)

func newThresholdCmd() *cobra.Command {
	c := &cobra.Command{Use: "test"}
	c.Flags().Float64("threshold", 0.6, "")
	return c
}

func TestThresholdFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		fallback float64
		want     float64
	}{
		{"unset uses config", nil, 0.45, 0.45},
		{"explicit value", []string{"--threshold=0.3"}, 0.45, 0.3},
		{"explicit zero", []string{"--threshold=0"}, 0.45, 0},
		{"explicit negative", []string{"--threshold=-0.3"}, 0.45, -0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newThresholdCmd()
			if err := c.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags() error = %v", err)
			}
			if got := thresholdFlag(c, tt.fallback); got != tt.want {
				t.Errorf("thresholdFlag() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestThresholdFlagNegativeIsRejected(t *testing.T) {
	c := newThresholdCmd()
	if err := c.ParseFlags([]string{"--threshold=-0.3"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	if err := facerec.ValidateThreshold(thresholdFlag(c, 0.6)); !errors.Is(err, facerec.ErrInvalidThreshold) {
		t.Errorf("ValidateThreshold() error = %v, want ErrInvalidThreshold", err)
	}
}
