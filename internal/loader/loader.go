// Package loader turns files and formatted payloads into plain text ready
// for chunking.
package loader

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/cloo-solutions/ragent/internal/domain"
)

// Payload formats accepted by Normalize.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// Extensions are the file types LoadFile understands.
var Extensions = []string{".txt", ".md", ".markdown", ".pdf"}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Document is a loaded file with its ingest metadata.
type Document struct {
	Text     string
	Metadata map[string]string
}

// Normalize converts content in the given format to plain text. An empty
// format means text.
func Normalize(format, content string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return content, nil
	case FormatMarkdown, "md":
		return MarkdownToText([]byte(content)), nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
}

// MarkdownToText renders markdown source as plain text. Block elements are
// separated by blank lines so the chunker sees paragraph boundaries.
func MarkdownToText(source []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var buf strings.Builder
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.(type) {
			case *ast.Paragraph, *ast.Heading, *ast.TextBlock, *ast.CodeBlock,
				*ast.FencedCodeBlock, *ast.ThematicBreak:
				buf.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			switch {
			case node.HardLineBreak():
				buf.WriteString("\n")
			case node.SoftLineBreak():
				buf.WriteString(" ")
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.AutoLink:
			buf.Write(node.URL(source))
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				segment := lines.At(i)
				buf.Write(segment.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(blankRuns.ReplaceAllString(buf.String(), "\n\n"))
}

// PDFToText extracts the plain text layer of a PDF file.
func PDFToText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Supported reports whether LoadFile can read path.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadFile reads a txt, markdown or pdf file. The metadata source is the
// file's base name unless source is set.
func LoadFile(path, source string) (Document, error) {
	if source == "" {
		source = filepath.Base(path)
	}

	var (
		content string
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		content, err = PDFToText(path)
	case ".md", ".markdown":
		var raw []byte
		raw, err = os.ReadFile(path)
		content = MarkdownToText(raw)
	case ".txt":
		var raw []byte
		raw, err = os.ReadFile(path)
		content = string(raw)
	default:
		return Document{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, path)
	}
	if err != nil {
		return Document{}, err
	}

	if strings.TrimSpace(content) == "" {
		return Document{}, fmt.Errorf("%w: %s", domain.ErrEmptyText, path)
	}

	return Document{
		Text:     content,
		Metadata: map[string]string{domain.MetadataSourceKey: source},
	}, nil
}
