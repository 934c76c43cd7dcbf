package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ChatTurn is one history entry.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat/stream.
type ChatRequest struct {
	Query     string     `json:"query"`
	History   []ChatTurn `json:"history"`
	ImageData string     `json:"image_data,omitempty"`
	Model     string     `json:"model,omitempty"`
}

// ChatCmd creates the chat command.
func ChatCmd() *cobra.Command {
	var (
		imagePath   string
		historyPath string
		model       string
	)

	cmd := &cobra.Command{
		Use:   "chat <query>",
		Short: "Ask a question and stream the answer",
		Long:  "Sends one turn to the server and prints the answer as it streams. History is a JSON array of {role, content}.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var query string
			if len(args) == 1 {
				query = args[0]
			}

			req, err := buildChatRequest(query, imagePath, historyPath, model)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			api := NewAPIClientWithCmd(cmd)
			if err := api.Stream(ctx, "/chat/stream", req, cmd.OutOrStdout()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Image file to ask about")
	cmd.Flags().StringVar(&historyPath, "history", "", "JSON file with prior turns")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Override the answer model")

	return cmd
}

func buildChatRequest(query, imagePath, historyPath, model string) (*ChatRequest, error) {
	req := &ChatRequest{Query: query, History: []ChatTurn{}}

	if model == "" {
		if global, err := LoadGlobalConfig(); err == nil && global != nil {
			model = global.Model
		}
	}
	req.Model = model

	if imagePath != "" {
		raw, err := os.ReadFile(imagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		req.ImageData = base64.StdEncoding.EncodeToString(raw)
	}

	if historyPath != "" {
		raw, err := os.ReadFile(historyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read history: %w", err)
		}
		if err := json.Unmarshal(raw, &req.History); err != nil {
			return nil, fmt.Errorf("failed to parse history: %w", err)
		}
	}

	if req.Query == "" && req.ImageData == "" {
		return nil, fmt.Errorf("a query or --image is required")
	}
	return req, nil
}
