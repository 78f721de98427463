// Package connector implements the document sources the pipeline polls.
package connector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/inkpipe/inkpipe/internal/domain"
)

// LocalFolder treats a directory on the local filesystem as the monitored
// source. The document identifier is the file's absolute path.
type LocalFolder struct {
	folder string
}

// NewLocalFolder validates that the folder exists and returns the connector.
func NewLocalFolder(folder string) (*LocalFolder, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, domain.ConfigError("resolve local folder", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, domain.ConfigError(fmt.Sprintf("local folder does not exist: %s", abs), err)
	}
	return &LocalFolder{folder: abs}, nil
}

// Folder returns the monitored directory.
func (c *LocalFolder) Folder() string {
	return c.folder
}

// ListPDFs returns the folder's PDFs sorted by path.
func (c *LocalFolder) ListPDFs(ctx context.Context) ([]domain.Document, error) {
	matches, err := filepath.Glob(filepath.Join(c.folder, "*.pdf"))
	if err != nil {
		return nil, domain.IOError("list local folder", err)
	}
	sort.Strings(matches)

	docs := make([]domain.Document, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue // Removed between glob and stat.
		}
		modified := info.ModTime()
		docs = append(docs, domain.Document{
			Identifier:  path,
			Name:        strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			ModifiedAt:  &modified,
			DownloadURL: path,
		})
	}
	return docs, nil
}

// DownloadPDF reads the file back from disk.
func (c *LocalFolder) DownloadPDF(ctx context.Context, doc domain.Document) ([]byte, error) {
	data, err := os.ReadFile(doc.Identifier)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("PDF not found: %s", doc.Identifier), err)
	}
	return data, nil
}
