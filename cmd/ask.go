package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/spf13/cobra"
)

var (
	flagType     string
	flagToken    string
	flagProvider string
	flagModel    string
	flagLanguage string
	flagFilePath string
)

var askCmd = &cobra.Command{
	Use:   "ask <repo> <question>",
	Short: "Ask one question about a repository and stream the answer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		stream, err := a.rag.Chat(ctx, models.ChatCompletionRequest{
			RepoURL:  args[0],
			Type:     flagType,
			Messages: []models.ChatMessage{{Role: "user", Content: args[1]}},
			FilePath: flagFilePath,
			Token:    flagToken,
			Provider: flagProvider,
			Model:    flagModel,
			Language: flagLanguage,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for fragment := range stream {
			fmt.Fprint(out, fragment)
		}
		fmt.Fprintln(out)
		return ctx.Err()
	},
}

func init() {
	addRepoFlags(askCmd)
	askCmd.Flags().StringVar(&flagProvider, "provider", "", "generation provider (default generator.provider)")
	askCmd.Flags().StringVar(&flagModel, "model", "", "model name (default: provider's default)")
	askCmd.Flags().StringVar(&flagLanguage, "language", "", "answer language code (en, ja, zh, es, kr, vi)")
	askCmd.Flags().StringVar(&flagFilePath, "file", "", "focus on a file inside the repository")
	rootCmd.AddCommand(askCmd)
}

func addRepoFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagType, "type", "github", "repository type (github|gitlab|bitbucket|local)")
	cmd.Flags().StringVar(&flagToken, "token", "", "access token for private repositories")
}
