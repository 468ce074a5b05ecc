package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facerec/internal/config"
	"github.com/kozaktomas/facerec/internal/logging"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "facerec",
	Short: "Enroll labeled faces and recognize them in images",
	Long: `facerec builds a face recognizer from a labeled image dataset and matches
faces found in new images against it. Face detection and descriptor
extraction are delegated to an embedding server (EMBEDDING_URL).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		return logging.Init(cfg.Log)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
