package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/ragent/internal/loader"
)

// IngestRequest is the documents form of POST /ingest.
type IngestRequest struct {
	Documents []string            `json:"documents"`
	Metadata  []map[string]string `json:"metadata"`
	Async     bool                `json:"async,omitempty"`
}

// IngestResult is the synchronous ingest response.
type IngestResult struct {
	Status        string `json:"status"`
	Documents     int    `json:"documents"`
	ChunksIndexed int    `json:"chunks_indexed"`
	ChunksSkipped int    `json:"chunks_skipped"`
}

// IngestJob is the async job status.
type IngestJob struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	Retries       int    `json:"retries"`
	Error         string `json:"error,omitempty"`
	ChunksIndexed int    `json:"chunks_indexed"`
}

// IngestCmd uploads local files to the server.
func IngestCmd() *cobra.Command {
	var (
		source string
		async  bool
		wait   bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Send files to the server for indexing",
		Long:  "Extracts text from txt, markdown and pdf files locally and posts it to /ingest.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if source != "" && len(args) > 1 {
				return fmt.Errorf("--source can only be used with a single file")
			}

			req := IngestRequest{Async: async || wait}
			for _, path := range args {
				doc, err := loader.LoadFile(path, source)
				if err != nil {
					return fmt.Errorf("failed to load %s: %w", path, err)
				}
				req.Documents = append(req.Documents, doc.Text)
				req.Metadata = append(req.Metadata, doc.Metadata)
			}

			api := NewAPIClientWithCmd(cmd)
			resp, err := api.Post("/ingest", req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !req.Async {
				var result IngestResult
				if err := json.Unmarshal(resp.Data, &result); err != nil {
					return fmt.Errorf("failed to parse response: %w", err)
				}
				fmt.Fprintf(out, "indexed %d chunks from %d documents\n", result.ChunksIndexed, result.Documents)
				return nil
			}

			var job IngestJob
			if err := json.Unmarshal(resp.Data, &job); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			if !wait {
				fmt.Fprintf(out, "queued job %s\n", job.JobID)
				return nil
			}

			final, err := waitForJob(api, job.JobID, time.Second)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "job %s %s (%d chunks)\n", final.JobID, final.Status, final.ChunksIndexed)
			if final.Status == "failed" {
				return fmt.Errorf("ingest failed: %s", final.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Source name stored in chunk metadata (default: file name)")
	cmd.Flags().BoolVar(&async, "async", false, "Queue the documents and return the job id")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Queue the documents and wait for the job to finish")

	return cmd
}

// JobCmd prints the status of an async ingest job.
func JobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show an ingest job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := getJob(NewAPIClientWithCmd(cmd), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(job, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func getJob(api *APIClient, id string) (*IngestJob, error) {
	resp, err := api.Get("/ingest/jobs/" + id)
	if err != nil {
		return nil, err
	}
	var job IngestJob
	if err := json.Unmarshal(resp.Data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &job, nil
}

func waitForJob(api *APIClient, id string, interval time.Duration) (*IngestJob, error) {
	for {
		job, err := getJob(api, id)
		if err != nil {
			return nil, err
		}
		if job.Status == "completed" || job.Status == "failed" {
			return job, nil
		}
		time.Sleep(interval)
	}
}
