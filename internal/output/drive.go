package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/inkpipe/inkpipe/internal/domain"
	"github.com/inkpipe/inkpipe/internal/mindmap"
	"github.com/inkpipe/inkpipe/internal/observability"
)

const (
	markdownMIMEType = "text/markdown"
	freemindMIMEType = "application/x-freemind"
)

// DriveUploader is the slice of the Drive client the upload sinks need.
type DriveUploader interface {
	UploadFile(ctx context.Context, name, mimeType, folderID string, data []byte) (string, error)
}

// DriveConfig configures the Google Drive upload sinks.
type DriveConfig struct {
	// FolderID is the destination Drive folder.
	FolderID string
	// KeepLocalCopy also writes the artifact under LocalDirectory.
	KeepLocalCopy bool
	// LocalDirectory receives local copies when KeepLocalCopy is set.
	LocalDirectory string
}

// DriveMarkdownHandler uploads converted Markdown to a Google Drive folder.
type DriveMarkdownHandler struct {
	uploader DriveUploader
	cfg      DriveConfig
	logger   *observability.Logger
	now      func() time.Time
}

func NewDriveMarkdownHandler(uploader DriveUploader, cfg DriveConfig, logger *observability.Logger) (*DriveMarkdownHandler, error) {
	if uploader == nil {
		return nil, domain.ConfigError("google drive output requires a drive client", nil)
	}
	if cfg.FolderID == "" {
		return nil, domain.ConfigError("google drive output requires a folder ID", nil)
	}
	if cfg.KeepLocalCopy {
		if cfg.LocalDirectory == "" {
			return nil, domain.ConfigError("keep_local_copy requires a local directory", nil)
		}
		if err := os.MkdirAll(cfg.LocalDirectory, 0o755); err != nil {
			return nil, domain.IOError("failed to create local copy directory", err)
		}
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &DriveMarkdownHandler{
		uploader: uploader,
		cfg:      cfg,
		logger:   logger.WithComponent("drive-output"),
		now:      time.Now,
	}, nil
}

// Write uploads the Markdown as <basename>.md and returns the uploaded
// file's Drive location. The source PDF is not uploaded. The local copy is
// written whether or not the upload succeeds.
func (h *DriveMarkdownHandler) Write(ctx context.Context, doc domain.Document, markdown string, pdfBytes []byte) (string, error) {
	basename := BuildBasename(doc, "document", h.now)
	name := basename + ".md"

	fileID, uploadErr := h.uploader.UploadFile(ctx, name, markdownMIMEType, h.cfg.FolderID, []byte(markdown))
	if uploadErr != nil {
		uploadErr = domain.OutputError(fmt.Sprintf("failed to upload %s to google drive", name), uploadErr)
	} else {
		h.logger.Info().
			Str("document", doc.Name).
			Str("file", name).
			Str("drive_id", fileID).
			Msg("Uploaded Markdown to Google Drive")
	}

	if h.cfg.KeepLocalCopy {
		if err := writeLocalCopy(h.cfg.LocalDirectory, name, []byte(markdown)); err != nil {
			if uploadErr != nil {
				h.logger.Error().Err(err).Str("file", name).Msg("Failed to write local copy")
				return "", uploadErr
			}
			return "", err
		}
	}
	if uploadErr != nil {
		return "", uploadErr
	}
	return driveLocation(fileID, name), nil
}

// DriveMindmapHandler uploads FreeMind documents to a Google Drive folder.
type DriveMindmapHandler struct {
	uploader DriveUploader
	cfg      DriveConfig
	logger   *observability.Logger
	now      func() time.Time
}

func NewDriveMindmapHandler(uploader DriveUploader, cfg DriveConfig, logger *observability.Logger) (*DriveMindmapHandler, error) {
	if uploader == nil {
		return nil, domain.ConfigError("google drive mindmap output requires a drive client", nil)
	}
	if cfg.FolderID == "" {
		return nil, domain.ConfigError("google drive mindmap output requires a folder ID", nil)
	}
	if cfg.KeepLocalCopy {
		if cfg.LocalDirectory == "" {
			return nil, domain.ConfigError("keep_local_copy requires a local directory", nil)
		}
		if err := os.MkdirAll(cfg.LocalDirectory, 0o755); err != nil {
			return nil, domain.IOError("failed to create local copy directory", err)
		}
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &DriveMindmapHandler{
		uploader: uploader,
		cfg:      cfg,
		logger:   logger.WithComponent("drive-mindmap-output"),
		now:      time.Now,
	}, nil
}

// WriteMindmap serializes the mindmap to FreeMind XML and uploads it as
// <basename>.mm. The local copy is written whether or not the upload
// succeeds.
func (h *DriveMindmapHandler) WriteMindmap(ctx context.Context, doc domain.Document, m *mindmap.Mindmap) (string, error) {
	if m == nil || m.Root == nil {
		return "", domain.OutputError("cannot upload an empty mindmap", nil)
	}
	basename := BuildBasename(doc, "document", h.now)
	name := basename + ".mm"
	payload := []byte(mindmap.SerializeFreeMind(m))

	fileID, uploadErr := h.uploader.UploadFile(ctx, name, freemindMIMEType, h.cfg.FolderID, payload)
	if uploadErr != nil {
		uploadErr = domain.OutputError(fmt.Sprintf("failed to upload %s to google drive", name), uploadErr)
	} else {
		h.logger.Info().
			Str("document", doc.Name).
			Str("file", name).
			Str("drive_id", fileID).
			Msg("Uploaded mindmap to Google Drive")
	}

	if h.cfg.KeepLocalCopy {
		if err := writeLocalCopy(h.cfg.LocalDirectory, name, payload); err != nil {
			if uploadErr != nil {
				h.logger.Error().Err(err).Str("file", name).Msg("Failed to write local copy")
				return "", uploadErr
			}
			return "", err
		}
	}
	if uploadErr != nil {
		return "", uploadErr
	}
	return driveLocation(fileID, name), nil
}

func writeLocalCopy(dir, name string, data []byte) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.IOError(fmt.Sprintf("failed to write local copy %s", path), err)
	}
	return nil
}

func driveLocation(fileID, name string) string {
	return fmt.Sprintf("drive://%s/%s", fileID, name)
}
