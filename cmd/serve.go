package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/deepwiki-go/repochat/internal/api"
	"github.com/spf13/cobra"
)

var flagPort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if flagPort != "" {
			cfg.Server.Port = flagPort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		rateLimitClient := a.rdb
		if cfg.RateLimit.Backend != "redis" {
			rateLimitClient = nil
		}
		server := api.NewServer(cfg, a.rag, a.indexes, a.providers, rateLimitClient)
		return server.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagPort, "port", "", "listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}
