package service

import (
	"regexp"
	"strings"
	"unicode"
)

// ChunkConfig controls how documents are split before embedding.
type ChunkConfig struct {
	Size    int
	Overlap int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    1000,
		Overlap: 100,
	}
}

var newlineRuns = regexp.MustCompile(`\n{2,}`)

// ChunkText splits text into overlapping windows of at most chunkSize runes.
// A window that would end mid-word is shortened to the last whitespace inside
// it. Each following window starts overlap runes before the previous end,
// unless that would not move forward. A shortened window that ends inside the
// previous chunk is dropped and the walk resumes at the previous end.
func ChunkText(text string, chunkSize, overlap int) []string {
	clean := newlineRuns.ReplaceAllString(text, "\n")
	if strings.TrimSpace(clean) == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkConfig().Size
	}
	if overlap < 0 {
		overlap = 0
	}

	runes := []rune(clean)
	chunks := make([]string, 0, len(runes)/chunkSize+1)
	start, prevEnd := 0, 0
	for start < len(runes) {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			for i := end - 1; i > start; i-- {
				if unicode.IsSpace(runes[i]) {
					end = i
					break
				}
			}
		}

		if end <= prevEnd {
			start = prevEnd
			continue
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		prevEnd = end
		nextStart := end - overlap
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}
