package main

import (
	"fmt"
	"io"
	"os"

	"github.com/deepwiki-go/repochat/pkg/utils"
	"github.com/spf13/cobra"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens <file|->",
	Short: "Count tokens of a file under both tokenizer schemes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			content []byte
			err     error
		)
		if args[0] == "-" {
			content, err = io.ReadAll(cmd.InOrStdin())
		} else {
			content, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		text := string(content)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "default: %d\n", utils.CountTokens(text, utils.SchemeDefault))
		fmt.Fprintf(out, "generic: %d\n", utils.CountTokens(text, utils.SchemeGeneric))
		fmt.Fprintf(out, "limit:   %d\n", utils.MaxEmbeddingTokens)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokensCmd)
}
