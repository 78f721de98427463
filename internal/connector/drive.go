package connector

import (
	"context"

	"github.com/inkpipe/inkpipe/internal/domain"
	"github.com/inkpipe/inkpipe/internal/gdrive"
)

// GoogleDrive polls a Drive folder for PDFs. Transient server errors are
// retried inside the gdrive client; anything else propagates to the caller.
type GoogleDrive struct {
	client   *gdrive.Client
	folderID string
	pageSize int
}

// NewGoogleDrive returns a connector over an authorized Drive client.
func NewGoogleDrive(client *gdrive.Client, folderID string, pageSize int) *GoogleDrive {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &GoogleDrive{client: client, folderID: folderID, pageSize: pageSize}
}

// ListPDFs returns every PDF currently in the monitored folder.
func (c *GoogleDrive) ListPDFs(ctx context.Context) ([]domain.Document, error) {
	files, err := c.client.ListFolderPDFs(ctx, c.folderID, c.pageSize)
	if err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(files))
	for _, f := range files {
		name := f.Name
		if name == "" {
			name = f.ID
		}
		docs = append(docs, domain.Document{
			Identifier:  f.ID,
			Name:        name,
			ModifiedAt:  gdrive.ParseModifiedTime(f.ModifiedTime),
			DownloadURL: f.WebViewLink,
		})
	}
	return docs, nil
}

// DownloadPDF fetches the document content.
func (c *GoogleDrive) DownloadPDF(ctx context.Context, doc domain.Document) ([]byte, error) {
	return c.client.DownloadFile(ctx, doc.Identifier)
}
