package output

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpipe/inkpipe/internal/domain"
	"github.com/inkpipe/inkpipe/internal/mindmap"
	"github.com/inkpipe/inkpipe/internal/observability"
)

type fakeUploader struct {
	name     string
	mimeType string
	folderID string
	data     []byte
	err      error
}

func (f *fakeUploader) UploadFile(ctx context.Context, name, mimeType, folderID string, data []byte) (string, error) {
	f.name = name
	f.mimeType = mimeType
	f.folderID = folderID
	f.data = data
	if f.err != nil {
		return "", f.err
	}
	return "file-123", nil
}

func testDoc() domain.Document {
	modified := time.Date(2024, 3, 5, 14, 45, 9, 0, time.UTC)
	return domain.Document{Identifier: "doc-1", Name: "Weekly Report", ModifiedAt: &modified}
}

func TestNewDriveMarkdownHandler_RequiresFolderID(t *testing.T) {
	_, err := NewDriveMarkdownHandler(&fakeUploader{}, DriveConfig{}, observability.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "folder ID")
}

func TestDriveMarkdownHandler_UploadsMarkdown(t *testing.T) {
	uploader := &fakeUploader{}
	h, err := NewDriveMarkdownHandler(uploader, DriveConfig{FolderID: "folder-1"}, observability.Nop())
	require.NoError(t, err)

	location, err := h.Write(context.Background(), testDoc(), "# Weekly Report\n", []byte("%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, "Weekly-Report-20240305144509.md", uploader.name)
	assert.Equal(t, "text/markdown", uploader.mimeType)
	assert.Equal(t, "folder-1", uploader.folderID)
	assert.Equal(t, "# Weekly Report\n", string(uploader.data))
	assert.Equal(t, "drive://file-123/Weekly-Report-20240305144509.md", location)
}

func TestDriveMarkdownHandler_KeepLocalCopy(t *testing.T) {
	dir := t.TempDir()
	h, err := NewDriveMarkdownHandler(&fakeUploader{}, DriveConfig{
		FolderID:       "folder-1",
		KeepLocalCopy:  true,
		LocalDirectory: dir,
	}, observability.Nop())
	require.NoError(t, err)

	_, err = h.Write(context.Background(), testDoc(), "# Weekly Report\n", nil)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "Weekly-Report-20240305144509.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Weekly Report\n", string(content))
}

func TestDriveMarkdownHandler_UploadErrorIsOutputError(t *testing.T) {
	uploader := &fakeUploader{err: errors.New("quota exceeded")}
	h, err := NewDriveMarkdownHandler(uploader, DriveConfig{FolderID: "folder-1"}, observability.Nop())
	require.NoError(t, err)

	_, err = h.Write(context.Background(), testDoc(), "# Report\n", nil)
	require.Error(t, err)
	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrorTypeOutput, derr.Type)
}

func TestDriveMarkdownHandler_LocalCopyWrittenOnUploadFailure(t *testing.T) {
	dir := t.TempDir()
	uploader := &fakeUploader{err: errors.New("quota exceeded")}
	h, err := NewDriveMarkdownHandler(uploader, DriveConfig{
		FolderID:       "folder-1",
		KeepLocalCopy:  true,
		LocalDirectory: dir,
	}, observability.Nop())
	require.NoError(t, err)

	_, err = h.Write(context.Background(), testDoc(), "# Weekly Report\n", nil)
	require.Error(t, err)
	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrorTypeOutput, derr.Type)

	content, readErr := os.ReadFile(filepath.Join(dir, "Weekly-Report-20240305144509.md"))
	require.NoError(t, readErr)
	assert.Equal(t, "# Weekly Report\n", string(content))
}

func TestDriveMarkdownHandler_LocalCopyFailureIsIOError(t *testing.T) {
	dir := t.TempDir()
	h, err := NewDriveMarkdownHandler(&fakeUploader{}, DriveConfig{
		FolderID:       "folder-1",
		KeepLocalCopy:  true,
		LocalDirectory: dir,
	}, observability.Nop())
	require.NoError(t, err)

	// Replace the copy directory with a file so the local write fails while
	// the upload itself succeeds.
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("in the way"), 0o644))

	_, err = h.Write(context.Background(), testDoc(), "# Weekly Report\n", nil)
	require.Error(t, err)
	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrorTypeIO, derr.Type)
}

func TestDriveMindmapHandler_UploadsFreeMindXML(t *testing.T) {
	uploader := &fakeUploader{}
	h, err := NewDriveMindmapHandler(uploader, DriveConfig{FolderID: "folder-2"}, observability.Nop())
	require.NoError(t, err)

	m := &mindmap.Mindmap{Root: &mindmap.Node{Text: "Root"}}
	location, err := h.WriteMindmap(context.Background(), testDoc(), m)
	require.NoError(t, err)

	assert.Equal(t, "Weekly-Report-20240305144509.mm", uploader.name)
	assert.Equal(t, "application/x-freemind", uploader.mimeType)
	assert.Equal(t, "folder-2", uploader.folderID)
	assert.Equal(t, mindmap.SerializeFreeMind(m), string(uploader.data))
	assert.Equal(t, "drive://file-123/Weekly-Report-20240305144509.mm", location)
}

func TestDriveMindmapHandler_RejectsEmptyMindmap(t *testing.T) {
	h, err := NewDriveMindmapHandler(&fakeUploader{}, DriveConfig{FolderID: "folder-2"}, observability.Nop())
	require.NoError(t, err)

	_, err = h.WriteMindmap(context.Background(), testDoc(), nil)
	require.Error(t, err)

	_, err = h.WriteMindmap(context.Background(), testDoc(), &mindmap.Mindmap{})
	require.Error(t, err)
}

func TestDriveMindmapHandler_KeepLocalCopy(t *testing.T) {
	dir := t.TempDir()
	h, err := NewDriveMindmapHandler(&fakeUploader{}, DriveConfig{
		FolderID:       "folder-2",
		KeepLocalCopy:  true,
		LocalDirectory: dir,
	}, observability.Nop())
	require.NoError(t, err)

	m := &mindmap.Mindmap{Root: &mindmap.Node{Text: "Root"}}
	_, err = h.WriteMindmap(context.Background(), testDoc(), m)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "Weekly-Report-20240305144509.mm"))
	require.NoError(t, err)
	assert.Equal(t, mindmap.SerializeFreeMind(m), string(content))
}

func TestDriveMindmapHandler_LocalCopyWrittenOnUploadFailure(t *testing.T) {
	dir := t.TempDir()
	uploader := &fakeUploader{err: errors.New("quota exceeded")}
	h, err := NewDriveMindmapHandler(uploader, DriveConfig{
		FolderID:       "folder-2",
		KeepLocalCopy:  true,
		LocalDirectory: dir,
	}, observability.Nop())
	require.NoError(t, err)

	m := &mindmap.Mindmap{Root: &mindmap.Node{Text: "Root"}}
	_, err = h.WriteMindmap(context.Background(), testDoc(), m)
	require.Error(t, err)
	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrorTypeOutput, derr.Type)

	content, readErr := os.ReadFile(filepath.Join(dir, "Weekly-Report-20240305144509.mm"))
	require.NoError(t, readErr)
	assert.Equal(t, mindmap.SerializeFreeMind(m), string(content))
}
