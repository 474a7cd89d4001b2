package main

import (
	"fmt"
	"time"

	"github.com/deepwiki-go/repochat/internal/data"
	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/spf13/cobra"
)

var (
	flagExcludeDirs  []string
	flagExcludeFiles []string
	flagIncludeDirs  []string
	flagIncludeFiles []string
)

var indexCmd = &cobra.Command{
	Use:   "index <repo>",
	Short: "Build or load the embedding index of a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		kind, err := models.ParseRepoKind(flagType)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		start := time.Now()
		idx, err := a.indexes.GetOrBuildIndex(cmd.Context(), data.IndexRequest{
			Location: args[0],
			Kind:     kind,
			Token:    flagToken,
			Filters: data.ResolveFilters(cfg, data.FileFilters{
				ExcludedDirs:  flagExcludeDirs,
				ExcludedFiles: flagExcludeFiles,
				IncludedDirs:  flagIncludeDirs,
				IncludedFiles: flagIncludeFiles,
			}),
		})
		if err != nil {
			return err
		}

		files := make(map[string]bool)
		code := 0
		for _, d := range idx.Documents {
			files[d.MetaData.FilePath] = true
			if d.MetaData.IsCode {
				code++
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Indexed %s in %s\n", idx.RepoID, time.Since(start).Round(time.Millisecond))
		fmt.Fprintf(out, "  Source:    %s\n", idx.SourcePath)
		fmt.Fprintf(out, "  Snapshot:  %s\n", idx.SnapshotPath)
		fmt.Fprintf(out, "  Files:     %d\n", len(files))
		fmt.Fprintf(out, "  Chunks:    %d (%d code, %d docs)\n", len(idx.Documents), code, len(idx.Documents)-code)
		if len(idx.Documents) > 0 {
			fmt.Fprintf(out, "  Dimension: %d\n", len(idx.Documents[0].Vector))
		}
		return nil
	},
}

func init() {
	addRepoFlags(indexCmd)
	indexCmd.Flags().StringSliceVar(&flagExcludeDirs, "exclude-dir", nil, "additional directories to skip")
	indexCmd.Flags().StringSliceVar(&flagExcludeFiles, "exclude-file", nil, "additional file patterns to skip")
	indexCmd.Flags().StringSliceVar(&flagIncludeDirs, "include-dir", nil, "only index these directories")
	indexCmd.Flags().StringSliceVar(&flagIncludeFiles, "include-file", nil, "only index these file patterns")
	rootCmd.AddCommand(indexCmd)
}
