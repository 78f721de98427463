// Package gdrive is a minimal Google Drive v3 client covering the calls the
// pipeline needs: listing a folder, downloading file content, and uploading
// new files.
package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/inkpipe/inkpipe/internal/domain"
)

const (
	defaultBaseURL   = "https://www.googleapis.com/drive/v3"
	defaultUploadURL = "https://www.googleapis.com/upload/drive/v3"
)

// File is the subset of Drive file metadata the pipeline consumes.
type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ModifiedTime string `json:"modifiedTime"`
	WebViewLink  string `json:"webViewLink"`
}

type listResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Files         []File `json:"files"`
}

// Client speaks to the Drive REST API with bearer-token auth and the shared
// retry policy for transient server errors.
type Client struct {
	httpClient *http.Client
	baseURL    string
	uploadURL  string
	retry      *RetryConfig
}

// NewClient builds a client around the given token source.
func NewClient(ctx context.Context, tokenSource oauth2.TokenSource) *Client {
	return &Client{
		httpClient: oauth2.NewClient(ctx, tokenSource),
		baseURL:    defaultBaseURL,
		uploadURL:  defaultUploadURL,
		retry:      DefaultRetryConfig(),
	}
}

// NewClientWithHTTP builds a client around a preconfigured HTTP client and
// endpoints. Used by tests.
func NewClientWithHTTP(httpClient *http.Client, baseURL, uploadURL string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		uploadURL:  uploadURL,
		retry:      DefaultRetryConfig(),
	}
}

// ListFolderPDFs returns every non-trashed PDF in the folder, following
// pagination until the listing is exhausted.
func (c *Client) ListFolderPDFs(ctx context.Context, folderID string, pageSize int) ([]File, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	query := fmt.Sprintf("'%s' in parents and mimeType='application/pdf' and trashed = false", folderID)

	var files []File
	pageToken := ""
	for {
		params := url.Values{}
		params.Set("q", query)
		params.Set("fields", "nextPageToken, files(id, name, modifiedTime, webViewLink)")
		params.Set("pageSize", strconv.Itoa(pageSize))
		params.Set("supportsAllDrives", "true")
		params.Set("includeItemsFromAllDrives", "true")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		body, err := c.get(ctx, c.baseURL+"/files?"+params.Encode())
		if err != nil {
			return nil, err
		}

		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, domain.APIError("decode drive listing", err)
		}
		files = append(files, page.Files...)
		if page.NextPageToken == "" {
			return files, nil
		}
		pageToken = page.NextPageToken
	}
}

// DownloadFile fetches the raw content of a file.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	params := url.Values{}
	params.Set("alt", "media")
	params.Set("supportsAllDrives", "true")
	return c.get(ctx, c.baseURL+"/files/"+url.PathEscape(fileID)+"?"+params.Encode())
}

// UploadFile creates a new file in the target folder via a multipart upload
// and returns the new file's ID.
func (c *Client) UploadFile(ctx context.Context, name, mimeType, folderID string, data []byte) (string, error) {
	metadata := map[string]interface{}{
		"name":     name,
		"mimeType": mimeType,
	}
	if folderID != "" {
		metadata["parents"] = []string{folderID}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", domain.APIError("encode upload metadata", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return "", domain.APIError("build upload request", err)
	}
	if _, err := metaPart.Write(metaJSON); err != nil {
		return "", domain.APIError("build upload request", err)
	}

	contentHeader := textproto.MIMEHeader{}
	contentHeader.Set("Content-Type", mimeType)
	contentPart, err := writer.CreatePart(contentHeader)
	if err != nil {
		return "", domain.APIError("build upload request", err)
	}
	if _, err := contentPart.Write(data); err != nil {
		return "", domain.APIError("build upload request", err)
	}
	if err := writer.Close(); err != nil {
		return "", domain.APIError("build upload request", err)
	}

	uploadTarget := c.uploadURL + "/files?uploadType=multipart&supportsAllDrives=true"
	payload := buf.Bytes()

	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadTarget, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())
		return c.httpClient.Do(req)
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.APIError("read upload response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", domain.APIError(fmt.Sprintf("drive upload returned status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var created File
	if err := json.Unmarshal(body, &created); err != nil {
		return "", domain.APIError("decode upload response", err)
	}
	return created.ID, nil
}

// ParseModifiedTime converts Drive's RFC 3339 modifiedTime into a time
// pointer, returning nil when absent or unparseable.
func ParseModifiedTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.APIError("read drive response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.APIError(fmt.Sprintf("drive API returned status %d: %s", resp.StatusCode, string(body)), nil)
	}
	return body, nil
}
