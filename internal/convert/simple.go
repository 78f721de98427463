// Package convert implements the pluggable PDF conversion backends.
package convert

import (
	"context"
	"strings"

	"github.com/inkpipe/inkpipe/internal/domain"
	"github.com/inkpipe/inkpipe/internal/mindmap"
	"github.com/inkpipe/inkpipe/internal/pdf"
)

const simpleDefaultPrompt = "You are a helpful assistant that converts PDF content to Markdown."

// SimpleBackend converts PDFs to Markdown using local text extraction. It
// needs no network access and serves as the always-available fallback
// pipeline.
type SimpleBackend struct {
	prompt      string
	extractText func([]byte) (string, error)
}

// NewSimpleBackend returns a backend with an optional default prompt.
func NewSimpleBackend(prompt string) *SimpleBackend {
	return &SimpleBackend{prompt: prompt, extractText: pdf.ExtractText}
}

// ConvertPDF produces a Markdown rendition of the extracted text: a title
// heading, the effective prompt as a quote, then one paragraph per text
// block.
func (b *SimpleBackend) ConvertPDF(ctx context.Context, doc domain.Document, pdfBytes []byte, prompt string) (string, error) {
	effective := firstNonEmpty(prompt, b.prompt, simpleDefaultPrompt)
	text, err := b.extractText(pdfBytes)
	if err != nil {
		return "", err
	}

	lines := []string{"# " + doc.Name, "", "> " + effective, ""}
	for _, paragraph := range segmentParagraphs(text) {
		lines = append(lines, paragraph, "")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// ExtractMindmap derives a flat mindmap: the document name as root with one
// child per extracted paragraph.
func (b *SimpleBackend) ExtractMindmap(ctx context.Context, doc domain.Document, pdfBytes []byte, prompt string) (*mindmap.Mindmap, error) {
	text, err := b.extractText(pdfBytes)
	if err != nil {
		return nil, err
	}

	branches := segmentParagraphs(text)
	children := make([]*mindmap.Node, 0, len(branches))
	for _, branch := range branches {
		children = append(children, &mindmap.Node{Text: branch, Children: []*mindmap.Node{}})
	}

	rootText := doc.Name
	if strings.TrimSpace(rootText) == "" {
		rootText = "Mindmap"
	}
	return &mindmap.Mindmap{Root: &mindmap.Node{Text: rootText, Children: children}}, nil
}

// ClassifyDocument routes heuristically: mindmap hashtags in the name or the
// extracted text select the mindmap pipeline, everything else is markdown.
func (b *SimpleBackend) ClassifyDocument(ctx context.Context, doc domain.Document, pdfBytes []byte, prompt string) (string, error) {
	name := strings.ToLower(doc.Name)
	for _, tag := range []string{"#mm", "#mindmap", " mindmap", " mind map"} {
		if strings.Contains(name, tag) {
			return string(domain.RouteMindmap), nil
		}
	}

	text, err := b.extractText(pdfBytes)
	if err != nil {
		return "", err
	}
	lowered := strings.ToLower(text)
	if strings.Contains(lowered, "#mm") || strings.Contains(lowered, "#mindmap") {
		return string(domain.RouteMindmap), nil
	}
	return string(domain.RouteMarkdown), nil
}

func segmentParagraphs(text string) []string {
	var paragraphs []string
	var buffer []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(buffer) > 0 {
				paragraphs = append(paragraphs, strings.Join(buffer, " "))
				buffer = buffer[:0]
			}
			continue
		}
		buffer = append(buffer, line)
	}
	if len(buffer) > 0 {
		paragraphs = append(paragraphs, strings.Join(buffer, " "))
	}
	if len(paragraphs) == 0 {
		return []string{"(The source PDF did not contain extractable text.)"}
	}
	return paragraphs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
