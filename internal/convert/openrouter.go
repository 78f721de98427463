package convert

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/inkpipe/inkpipe/internal/domain"
	"github.com/inkpipe/inkpipe/internal/mindmap"
)

const (
	openRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel  = "google/gemini-2.5-flash"
)

const defaultMarkdownPrompt = "You are a senior technical writer who converts PDF documents into clean Markdown. " +
	"Preserve structure, summarize key points, and produce a single consolidated output."

const defaultMindmapPrompt = "Convert this document into a mindmap. Respond with ONLY a JSON object of the form " +
	`{"root": {"text": "...", "children": [...]}} where every node has a non-empty "text" and an optional ` +
	`"children" list. Do not include any other keys or commentary.`

const defaultRoutingPrompt = "Decide whether this document is better represented as prose notes or as a mindmap. " +
	"Answer with a single word: 'markdown' or 'mindmap'."

// OpenRouterBackend converts PDFs through an OpenRouter-compatible chat
// completions API, attaching the document as an inline base64 payload.
type OpenRouterBackend struct {
	apiKey      string
	model       string
	temperature float64
	baseURL     string
	httpClient  *http.Client
	retry       *retryConfig
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or file)
type ContentPart struct {
	Type string       `json:"type"`
	Text string       `json:"text,omitempty"`
	File *FilePayload `json:"file,omitempty"`
}

// FilePayload carries an inline document as a data URL
type FilePayload struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

// Request represents the API request structure
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// Response represents the API response structure
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Choice represents a single completion choice
type Choice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// NewOpenRouterBackend creates a backend against the public OpenRouter
// endpoint. The API key is required; the model falls back to a default.
func NewOpenRouterBackend(apiKey, model string, temperature float64) (*OpenRouterBackend, error) {
	if apiKey == "" {
		return nil, domain.ConfigError("openrouter backend requires an API key", nil)
	}
	if model == "" {
		model = defaultModel
	}
	return &OpenRouterBackend{
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		baseURL:     openRouterURL,
		httpClient:  &http.Client{},
		retry:       defaultRetryConfig(),
	}, nil
}

// WithEndpoint overrides the chat-completions URL for API-compatible
// gateways. An empty URL keeps the default.
func (b *OpenRouterBackend) WithEndpoint(url string) *OpenRouterBackend {
	if url != "" {
		b.baseURL = url
	}
	return b
}

// ConvertPDF uploads the document inline and returns the model's Markdown.
func (b *OpenRouterBackend) ConvertPDF(ctx context.Context, doc domain.Document, pdfBytes []byte, prompt string) (string, error) {
	effective := firstNonEmpty(prompt, defaultMarkdownPrompt)
	content, err := b.complete(ctx, doc, pdfBytes, effective)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", domain.ConversionError("model did not return any text content", nil)
	}
	return content, nil
}

// ExtractMindmap asks for strict JSON and validates it into a mindmap tree.
// Responses wrapped in a Markdown code fence are tolerated.
func (b *OpenRouterBackend) ExtractMindmap(ctx context.Context, doc domain.Document, pdfBytes []byte, prompt string) (*mindmap.Mindmap, error) {
	effective := firstNonEmpty(prompt, defaultMindmapPrompt)
	content, err := b.complete(ctx, doc, pdfBytes, effective)
	if err != nil {
		return nil, err
	}
	m, err := mindmap.FromJSON(stripCodeFence(content))
	if err != nil {
		return nil, domain.ConversionError("model returned an invalid mindmap payload", err)
	}
	return m, nil
}

// ClassifyDocument returns the model's one-word routing answer.
func (b *OpenRouterBackend) ClassifyDocument(ctx context.Context, doc domain.Document, pdfBytes []byte, prompt string) (string, error) {
	effective := firstNonEmpty(prompt, defaultRoutingPrompt)
	content, err := b.complete(ctx, doc, pdfBytes, effective)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (b *OpenRouterBackend) complete(ctx context.Context, doc domain.Document, pdfBytes []byte, prompt string) (string, error) {
	req := b.buildRequest(doc, pdfBytes, prompt)
	body, err := json.Marshal(req)
	if err != nil {
		return "", domain.APIError("failed to marshal request", err)
	}

	resp, err := b.retryWithBackoff(ctx, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
		return b.httpClient.Do(httpReq)
	})
	if err != nil {
		return "", domain.APIError("failed to send request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.APIError("failed to read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", domain.APIError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var parsed Response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", domain.APIError("failed to decode response", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", domain.APIError("API reported an error: "+parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", domain.ConversionError("model returned no choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}

func (b *OpenRouterBackend) buildRequest(doc domain.Document, pdfBytes []byte, prompt string) *Request {
	filename := strings.TrimSpace(doc.Name)
	if filename == "" {
		filename = "document"
	}
	dataURL := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdfBytes)

	msg := Message{
		Role: "user",
		Content: []ContentPart{
			{Type: "text", Text: prompt},
			{Type: "file", File: &FilePayload{
				Filename: filename + ".pdf",
				FileData: dataURL,
			}},
		},
	}
	return &Request{
		Model:       b.model,
		Messages:    []Message{msg},
		Temperature: b.temperature,
	}
}

// stripCodeFence unwraps ```json ... ``` fences that chat models like to add
// around structured output.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
