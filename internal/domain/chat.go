package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ChatTurn is one message of the caller-supplied conversation history.
// Order matters: the most recent turns are at the end of the slice.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LastTurns returns at most the n most recent turns of history.
func LastTurns(history []ChatTurn, n int) []ChatTurn {
	if n <= 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// Intent is the classified purpose of a user turn.
type Intent string

const (
	IntentSearch    Intent = "search"
	IntentSummarize Intent = "summarize"
	IntentCalculate Intent = "calculate"
	IntentChitchat  Intent = "chitchat"
	IntentVisionQA  Intent = "vision_qa"
)

// AllIntents lists every intent in declaration order.
func AllIntents() []Intent {
	return []Intent{IntentSearch, IntentSummarize, IntentCalculate, IntentChitchat, IntentVisionQA}
}

// ClassifiableIntents are the intents a text-only turn may be routed to.
// vision_qa is only assigned when the turn carries an image.
func ClassifiableIntents() []Intent {
	return []Intent{IntentSearch, IntentSummarize, IntentCalculate, IntentChitchat}
}

// IsValid reports whether i belongs to the closed intent set.
func (i Intent) IsValid() bool {
	for _, known := range AllIntents() {
		if i == known {
			return true
		}
	}
	return false
}

// IsClassifiable reports whether a text-only classification may produce i.
func (i Intent) IsClassifiable() bool {
	for _, known := range ClassifiableIntents() {
		if i == known {
			return true
		}
	}
	return false
}

// UsesEvidence reports whether synthesis for this intent is grounded on tool output.
func (i Intent) UsesEvidence() bool {
	return i == IntentSearch || i == IntentVisionQA
}

// QueryAnalysis is the structured result of classifying one turn.
type QueryAnalysis struct {
	Intent      Intent   `json:"intent"`
	KeyEntities []string `json:"key_entities"`
	MissingInfo *string  `json:"missing_info,omitempty"`
	IsSafe      bool     `json:"is_safe"`
}

// FallbackAnalysis is used whenever classification cannot be trusted.
func FallbackAnalysis() QueryAnalysis {
	return QueryAnalysis{
		Intent:      IntentChitchat,
		KeyEntities: []string{},
		IsSafe:      true,
	}
}

// VisionAnalysis is the analysis assigned to image-backed turns.
func VisionAnalysis() QueryAnalysis {
	return QueryAnalysis{
		Intent:      IntentVisionQA,
		KeyEntities: []string{},
		IsSafe:      true,
	}
}

// ParseQueryAnalysis decodes a model response into a QueryAnalysis.
// The intent is required and must be one a text-only turn can be routed to,
// so vision_qa is rejected; key_entities
// must be a list of strings; is_safe defaults to true when absent.
// Unknown fields are ignored.
func ParseQueryAnalysis(data []byte) (QueryAnalysis, error) {
	var raw struct {
		Intent      *string   `json:"intent"`
		KeyEntities *[]string `json:"key_entities"`
		MissingInfo *string   `json:"missing_info"`
		IsSafe      *bool     `json:"is_safe"`
	}

	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		return QueryAnalysis{}, fmt.Errorf("analysis must be a JSON object")
	}
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return QueryAnalysis{}, fmt.Errorf("failed to decode analysis: %w", err)
	}
	if raw.Intent == nil {
		return QueryAnalysis{}, fmt.Errorf("analysis is missing intent")
	}

	intent := Intent(strings.ToLower(strings.TrimSpace(*raw.Intent)))
	if !intent.IsClassifiable() {
		return QueryAnalysis{}, fmt.Errorf("%w: %q is not one of %v", ErrInvalidIntent, *raw.Intent, ClassifiableIntents())
	}

	analysis := QueryAnalysis{
		Intent:      intent,
		KeyEntities: []string{},
		MissingInfo: raw.MissingInfo,
		IsSafe:      true,
	}
	if raw.KeyEntities != nil {
		analysis.KeyEntities = dedupeEntities(*raw.KeyEntities)
	}
	if raw.IsSafe != nil {
		analysis.IsSafe = *raw.IsSafe
	}
	return analysis, nil
}

// key_entities is a set; duplicates carry no meaning.
func dedupeEntities(entities []string) []string {
	seen := make(map[string]struct{}, len(entities))
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// ClassificationFailure names why a classification was discarded.
type ClassificationFailure string

const (
	ClassificationTransport ClassificationFailure = "transport"
	ClassificationSchema    ClassificationFailure = "schema"
)

// ClassificationError is returned by the reasoning stage when the model
// response could not be obtained or did not match the analysis schema.
type ClassificationError struct {
	Reason ClassificationFailure
	Err    error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed (%s): %v", e.Reason, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}
