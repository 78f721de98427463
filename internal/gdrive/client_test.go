package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpipe/inkpipe/internal/domain"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestListFolderPDFs_FollowsPagination(t *testing.T) {
	var queries []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files", r.URL.Path)
		queries = append(queries, r.URL.Query().Get("q"))
		assert.Equal(t, "true", r.URL.Query().Get("supportsAllDrives"))
		assert.Equal(t, "25", r.URL.Query().Get("pageSize"))

		switch r.URL.Query().Get("pageToken") {
		case "":
			fmt.Fprint(w, `{"nextPageToken": "page-2", "files": [
				{"id": "f1", "name": "a.pdf", "modifiedTime": "2024-03-05T14:45:09Z"},
				{"id": "f2", "name": "b.pdf"}
			]}`)
		case "page-2":
			fmt.Fprint(w, `{"files": [{"id": "f3", "name": "c.pdf"}]}`)
		default:
			http.Error(w, "unexpected token", http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client(), server.URL, server.URL)
	client.retry = fastRetry()

	files, err := client.ListFolderPDFs(context.Background(), "folder-1", 25)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "f1", files[0].ID)
	assert.Equal(t, "c.pdf", files[2].Name)

	require.Len(t, queries, 2)
	assert.Equal(t, "'folder-1' in parents and mimeType='application/pdf' and trashed = false", queries[0])
}

func TestDownloadFile_UsesAltMedia(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files/file-1", r.URL.Path)
		require.Equal(t, "media", r.URL.Query().Get("alt"))
		w.Write([]byte("%PDF-1.4 content"))
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client(), server.URL, server.URL)
	client.retry = fastRetry()

	data, err := client.DownloadFile(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 content", string(data))
}

func TestUploadFile_MultipartMetadataAndContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/files", r.URL.Path)
		require.Equal(t, "multipart", r.URL.Query().Get("uploadType"))

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		require.Equal(t, "multipart/related", mediaType)

		reader := multipart.NewReader(r.Body, params["boundary"])

		metaPart, err := reader.NextPart()
		require.NoError(t, err)
		metaBytes, err := io.ReadAll(metaPart)
		require.NoError(t, err)
		var metadata struct {
			Name     string   `json:"name"`
			MimeType string   `json:"mimeType"`
			Parents  []string `json:"parents"`
		}
		require.NoError(t, json.Unmarshal(metaBytes, &metadata))
		assert.Equal(t, "notes.mm", metadata.Name)
		assert.Equal(t, "application/x-freemind", metadata.MimeType)
		assert.Equal(t, []string{"folder-1"}, metadata.Parents)

		contentPart, err := reader.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "application/x-freemind", contentPart.Header.Get("Content-Type"))
		content, err := io.ReadAll(contentPart)
		require.NoError(t, err)
		assert.Equal(t, "<map/>", string(content))

		fmt.Fprint(w, `{"id": "uploaded-1"}`)
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client(), server.URL, server.URL)
	client.retry = fastRetry()

	id, err := client.UploadFile(context.Background(), "notes.mm", "application/x-freemind", "folder-1", []byte("<map/>"))
	require.NoError(t, err)
	assert.Equal(t, "uploaded-1", id)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client(), server.URL, server.URL)
	client.retry = fastRetry()

	data, err := client.DownloadFile(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client(), server.URL, server.URL)
	client.retry = fastRetry()

	_, err := client.DownloadFile(context.Background(), "file-1")
	require.Error(t, err)
	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrorTypeAPI, derr.Type)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client(), server.URL, server.URL)
	client.retry = fastRetry()

	_, err := client.DownloadFile(context.Background(), "file-1")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
}

func TestParseModifiedTime(t *testing.T) {
	parsed := ParseModifiedTime("2024-03-05T14:45:09Z")
	require.NotNil(t, parsed)
	assert.Equal(t, time.Date(2024, 3, 5, 14, 45, 9, 0, time.UTC), parsed.UTC())

	assert.Nil(t, ParseModifiedTime(""))
	assert.Nil(t, ParseModifiedTime("yesterday"))
}
