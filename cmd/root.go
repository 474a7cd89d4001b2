package main

import (
	"log"
	"os"

	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/deepwiki-go/repochat/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "repochat",
	Short:         "Chat with source repositories using retrieval augmented generation",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config.yaml (default $REPOCHAT_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override logging.level (debug|info)")
}

// loadConfig reads .env, then the YAML config, and applies the log level.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	utils.SetLogLevel(cfg.Logging.Level)
	return cfg, nil
}
