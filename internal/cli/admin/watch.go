package admin

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/ragent/internal/config"
	"github.com/cloo-solutions/ragent/internal/loader"
	"github.com/cloo-solutions/ragent/internal/service"
	"github.com/cloo-solutions/ragent/internal/watcher"
)

// DocumentIngester is the slice of the orchestrator watch needs.
type DocumentIngester interface {
	Replace(ctx context.Context, key, document string, metadata map[string]string) (service.IngestResult, error)
}

// WatchCmd ingests files as they are created or changed in a directory.
func WatchCmd() *cobra.Command {
	var initial bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Index files as they change in a directory",
		Long:  "Watches a directory and ingests txt, markdown and pdf files on create or write.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(args[0], initial)
		},
	}

	cmd.Flags().BoolVar(&initial, "initial", false, "Ingest files already present before watching")

	return cmd
}

// existingFiles lists the supported files directly inside dir.
func existingFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !loader.Supported(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// FileKey derives the document key for a watched file from its absolute
// path, so every save of the same file replaces one set of chunks.
func FileKey(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return "file_" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(abs)).String(), nil
}

// IngestFile loads one file and indexes it under its FileKey.
func IngestFile(ctx context.Context, ingester DocumentIngester, path string) error {
	key, err := FileKey(path)
	if err != nil {
		return err
	}

	doc, err := loader.LoadFile(path, "")
	if err != nil {
		return err
	}

	result, err := ingester.Replace(ctx, key, doc.Text, doc.Metadata)
	if err != nil {
		return err
	}
	log.Printf("ingested %s as %s (%d chunks)", path, key, result.ChunksIndexed)
	return nil
}

func runWatch(dir string, initial bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := Build(ctx, cfg, BuildOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	if initial {
		files, err := existingFiles(dir)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, path := range files {
			if err := IngestFile(ctx, app.Orchestrator, path); err != nil {
				log.Printf("failed to ingest %s: %v", path, err)
			}
		}
	}

	w, err := watcher.New(watcher.DefaultDebounce, func(ctx context.Context, path string) error {
		return IngestFile(ctx, app.Orchestrator, path)
	})
	if err != nil {
		return err
	}
	defer w.Close()

	return w.Watch(ctx, dir)
}
