package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/ragent/internal/domain"
	"github.com/cloo-solutions/ragent/internal/llm"
)

// VisionFailedMessage is handed to synthesis when image analysis fails.
const VisionFailedMessage = "Error analyzing image."

// VisionTool describes images with a multimodal model.
type VisionTool struct {
	client  llm.ChatClient
	model   string
	timeout time.Duration
}

func NewVisionTool(client llm.ChatClient, model string, timeout time.Duration) *VisionTool {
	return &VisionTool{client: client, model: model, timeout: timeout}
}

// Analyze sends the image and prompt in a single non-streaming call. The
// image may be raw base64 or a data URI.
func (v *VisionTool) Analyze(ctx context.Context, image, prompt string) (string, error) {
	payload := StripDataURI(image)
	if payload == "" {
		return "", domain.ErrEmptyImage
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	out, err := v.client.Chat(ctx, llm.ChatRequest{
		Model: v.model,
		Messages: []llm.Message{{
			Role:    domain.RoleUser,
			Content: prompt,
			Images:  []string{payload},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrVisionUnavailable, err)
	}
	return out, nil
}

// StripDataURI drops everything up to and including the first comma, so
// "data:image/png;base64,AAAA" becomes "AAAA". Raw base64 is returned as is.
func StripDataURI(image string) string {
	if i := strings.IndexByte(image, ','); i >= 0 {
		return strings.TrimSpace(image[i+1:])
	}
	return strings.TrimSpace(image)
}
