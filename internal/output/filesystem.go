package output

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/inkpipe/inkpipe/internal/domain"
)

// FilesystemHandler writes Markdown artifacts to a target directory, with an
// optional asset directory receiving a copy of the source PDF.
type FilesystemHandler struct {
	directory      string
	assetDirectory string
	now            func() time.Time
}

// NewFilesystemHandler ensures the target directory (and asset directory,
// when configured) exist and returns the handler.
func NewFilesystemHandler(directory, assetDirectory string) (*FilesystemHandler, error) {
	dir, err := filepath.Abs(directory)
	if err != nil {
		return nil, domain.OutputError("resolve output directory", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.OutputError("create output directory", err)
	}

	assets := ""
	if assetDirectory != "" {
		assets, err = filepath.Abs(assetDirectory)
		if err != nil {
			return nil, domain.OutputError("resolve asset directory", err)
		}
		if err := os.MkdirAll(assets, 0o755); err != nil {
			return nil, domain.OutputError("create asset directory", err)
		}
	}

	return &FilesystemHandler{directory: dir, assetDirectory: assets, now: time.Now}, nil
}

// Directory returns the resolved output directory.
func (h *FilesystemHandler) Directory() string {
	return h.directory
}

// AssetDirectory returns the resolved asset directory, or "" when not
// configured.
func (h *FilesystemHandler) AssetDirectory() string {
	return h.assetDirectory
}

// Write persists the Markdown to <basename>.md and, when an asset
// directory is configured and PDF bytes are supplied, copies the raw PDF
// next to it. Returns the Markdown path.
func (h *FilesystemHandler) Write(ctx context.Context, doc domain.Document, markdown string, pdfBytes []byte) (string, error) {
	basename := BuildBasename(doc, "document", h.now)
	markdownPath, _, err := h.writeWithBasename(doc, markdown, pdfBytes, basename)
	return markdownPath, err
}

// writeWithBasename does the actual write so wrapping handlers can control
// the basename and observe the PDF copy location.
func (h *FilesystemHandler) writeWithBasename(doc domain.Document, markdown string, pdfBytes []byte, basename string) (markdownPath, pdfPath string, err error) {
	markdownPath = filepath.Join(h.directory, basename+".md")
	if err := os.WriteFile(markdownPath, []byte(markdown), 0o644); err != nil {
		return "", "", domain.OutputError("write markdown file", err)
	}

	if h.assetDirectory != "" && pdfBytes != nil {
		pdfPath = filepath.Join(h.assetDirectory, basename+".pdf")
		if err := os.WriteFile(pdfPath, pdfBytes, 0o644); err != nil {
			return "", "", domain.OutputError("copy source pdf", err)
		}
	}

	return markdownPath, pdfPath, nil
}
