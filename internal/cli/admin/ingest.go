package admin

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/ragent/internal/config"
	"github.com/cloo-solutions/ragent/internal/loader"
)

// IngestCmd indexes local files without going through the server.
func IngestCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Index local files directly",
		Long:  "Loads txt, markdown and pdf files, chunks and embeds them, and writes them to the configured vector index.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if source != "" && len(args) > 1 {
				return fmt.Errorf("--source can only be used with a single file")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			app, err := Build(ctx, cfg, BuildOptions{})
			if err != nil {
				return err
			}
			defer app.Close()

			documents := make([]string, 0, len(args))
			metadatas := make([]map[string]string, 0, len(args))
			for _, path := range args {
				doc, err := loader.LoadFile(path, source)
				if err != nil {
					return fmt.Errorf("failed to load %s: %w", path, err)
				}
				documents = append(documents, doc.Text)
				metadatas = append(metadatas, doc.Metadata)
			}

			result, err := app.Orchestrator.Ingest(ctx, documents, metadatas)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "indexed %d chunks from %d documents", result.ChunksIndexed, result.Documents)
			if result.ChunksSkipped > 0 {
				fmt.Fprintf(os.Stdout, " (%d chunks skipped)", result.ChunksSkipped)
			}
			fmt.Fprintln(os.Stdout)
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Source name stored in chunk metadata (default: file name)")

	return cmd
}
