package domain

import (
	"context"

	"github.com/inkpipe/inkpipe/internal/mindmap"
)

// Connector discovers and retrieves PDF documents from a monitored source.
type Connector interface {
	// ListPDFs returns the documents currently visible in the monitored
	// folder. The slice is fully materialized per call; no pagination state
	// leaks to the caller.
	ListPDFs(ctx context.Context) ([]Document, error)

	// DownloadPDF retrieves the raw bytes for the provided document.
	DownloadPDF(ctx context.Context, doc Document) ([]byte, error)
}

// Backend converts PDF bytes into pipeline artifacts.
type Backend interface {
	// ConvertPDF turns the document into Markdown text.
	ConvertPDF(ctx context.Context, doc Document, pdfBytes []byte, prompt string) (string, error)

	// ExtractMindmap turns the document into a validated mindmap tree.
	ExtractMindmap(ctx context.Context, doc Document, pdfBytes []byte, prompt string) (*mindmap.Mindmap, error)

	// ClassifyDocument returns the routing label for the document,
	// e.g. "markdown" or "mindmap".
	ClassifyDocument(ctx context.Context, doc Document, pdfBytes []byte, prompt string) (string, error)
}

// OutputHandler commits a converted Markdown artifact to a destination.
// Writing identical content twice must not create duplicate destination
// entries; each new document produces a uniquely named artifact.
type OutputHandler interface {
	// Write persists the Markdown (and optionally the raw PDF bytes) and
	// returns the location of the Markdown artifact.
	Write(ctx context.Context, doc Document, markdown string, pdfBytes []byte) (string, error)
}

// MindmapHandler commits a mindmap artifact to a destination.
type MindmapHandler interface {
	WriteMindmap(ctx context.Context, doc Document, m *mindmap.Mindmap) (string, error)
}
