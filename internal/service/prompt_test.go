package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloo-solutions/ragent/internal/domain"
)

func TestBuildPrompt_EvidenceIntents(t *testing.T) {
	for _, intent := range []domain.Intent{domain.IntentSearch, domain.IntentVisionQA} {
		p := BuildPrompt(intent, "[Result 1] (Source: A):\nfact", "What is the fact?")

		assert.True(t, strings.HasPrefix(p.System, "You are a helpful AI assistant."))
		assert.Contains(t, p.System, "Use the provided context")
		assert.Contains(t, p.System, "cite")
		assert.Equal(t, "--- CONTEXT ---\n[Result 1] (Source: A):\nfact\n--- END CONTEXT ---\n\nQuestion: What is the fact?", p.User)
	}
}

func TestBuildPrompt_OtherIntents(t *testing.T) {
	for _, intent := range []domain.Intent{domain.IntentChitchat, domain.IntentSummarize, domain.IntentCalculate} {
		p := BuildPrompt(intent, CalculatorPlaceholder, "hi there")

		assert.Equal(t, "You are a helpful AI assistant.", p.System)
		assert.Equal(t, "hi there", p.User)
	}
}
