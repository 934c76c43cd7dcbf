package admin

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/ragent/internal/config"
	"github.com/cloo-solutions/ragent/internal/storage"
)

// DocumentSource reads archived documents back.
type DocumentSource interface {
	HeadDocument(ctx context.Context, docKey string) (*storage.ObjectMetadata, error)
	GetDocument(ctx context.Context, docKey string) (string, map[string]string, error)
}

// ReindexCmd re-embeds archived documents under their original keys.
func ReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <key>...",
		Short: "Re-embed archived documents",
		Long: `Reads documents back from the S3 archive by key (doc_3, file_<uuid>) and
indexes them again under the same key, replacing their chunks. Use it after
switching embedding model or index backend.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !cfg.HasS3() {
				return fmt.Errorf("reindex needs the S3 document archive (RAGENT_S3_ENDPOINT and credentials)")
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

			chunks, err := Reindex(ctx, app.Archive, app.Orchestrator, args)
			fmt.Fprintf(os.Stdout, "reindexed %d chunks\n", chunks)
			return err
		},
	}
}

// Reindex restores each key from source through ingester. Keys that fail are
// logged and counted; the rest still run.
func Reindex(ctx context.Context, source DocumentSource, ingester DocumentIngester, keys []string) (int, error) {
	var chunks, failed int
	for _, key := range keys {
		head, err := source.HeadDocument(ctx, key)
		if err != nil {
			log.Printf("skipping %s: %v", key, err)
			failed++
			continue
		}

		text, metadata, err := source.GetDocument(ctx, key)
		if err != nil {
			log.Printf("skipping %s: %v", key, err)
			failed++
			continue
		}

		result, err := ingester.Replace(ctx, key, text, metadata)
		if err != nil {
			log.Printf("failed to reindex %s: %v", key, err)
			failed++
			continue
		}
		chunks += result.ChunksIndexed
		log.Printf("reindexed %s (%d bytes, %d chunks)", key, head.ContentLength, result.ChunksIndexed)
	}

	if failed > 0 {
		return chunks, fmt.Errorf("%d of %d documents failed to reindex", failed, len(keys))
	}
	return chunks, nil
}
