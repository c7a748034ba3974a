// Package backend talks to the OpenAI-compatible generative-AI service. Every
// operation is a single round trip; nothing is retried.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"voice-gateway/internal/metrics"
	"voice-gateway/internal/shared"
)

// Adapter is what the capability handlers depend on.
type Adapter interface {
	Transcribe(ctx context.Context, audio io.Reader, filename, mimeType, language string) (string, error)
	Chat(ctx context.Context, messages []shared.ChatMessage, persona string, temperature float64) (string, error)
	Synthesize(ctx context.Context, text, voice, format string) ([]byte, string, error)
	Ping(ctx context.Context) error
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

type Models struct {
	Transcribe string
	Chat       string
	TTS        string
}

// Client carries no per-call state and is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	models     Models
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithModels overrides the default model per capability. Empty fields keep
// the default.
func WithModels(m Models) Option {
	return func(c *Client) {
		if m.Transcribe != "" {
			c.models.Transcribe = m.Transcribe
		}
		if m.Chat != "" {
			c.models.Chat = m.Chat
		}
		if m.TTS != "" {
			c.models.TTS = m.TTS
		}
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("backend: api key must not be empty")
	}
	c := &Client{
		baseURL:    shared.DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: shared.DefaultHTTPTimeout},
		models: Models{
			Transcribe: shared.DefaultTranscribeModel,
			Chat:       shared.DefaultChatModel,
			TTS:        shared.DefaultTTSModel,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads audio under a fixed filename/content type pair. The
// client-declared filename and mimeType are not forwarded.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename, mimeType, language string) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeTranscriptionForm(mw, audio, c.models.Transcribe, language))
	}()

	url := c.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		_ = pr.Close()
		return "", c.fail(shared.CapabilityTranscription, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	raw, err := c.do(req)
	// unblocks the writer goroutine if the request failed before draining it
	_ = pr.Close()
	if err != nil {
		return "", c.fail(shared.CapabilityTranscription, err)
	}

	var payload transcriptionResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", c.fail(shared.CapabilityTranscription, fmt.Errorf("decode response: %w", err))
	}
	return strings.TrimSpace(payload.Text), nil
}

func writeTranscriptionForm(mw *multipart.Writer, audio io.Reader, model, language string) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, shared.UploadFilename))
	h.Set("Content-Type", shared.UploadMimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.WriteField("model", model); err != nil {
		return err
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return err
		}
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return err
	}
	return mw.Close()
}

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []shared.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message shared.ChatMessage `json:"message"`
	} `json:"choices"`
}

// Chat prepends persona as a system message and returns the first choice.
// A response without choices yields an empty reply.
func (c *Client) Chat(ctx context.Context, messages []shared.ChatMessage, persona string, temperature float64) (string, error) {
	forwarded := make([]shared.ChatMessage, 0, len(messages)+1)
	forwarded = append(forwarded, shared.ChatMessage{Role: shared.RoleSystem, Content: persona})
	for _, m := range messages {
		if m.Role == "" {
			m.Role = shared.RoleUser
		}
		forwarded = append(forwarded, m)
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.models.Chat,
		Messages:    forwarded,
		Temperature: temperature,
	})
	if err != nil {
		return "", c.fail(shared.CapabilityChat, fmt.Errorf("marshal request: %w", err))
	}

	raw, err := c.postJSON(ctx, "/chat/completions", body)
	if err != nil {
		return "", c.fail(shared.CapabilityChat, err)
	}

	var payload chatResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", c.fail(shared.CapabilityChat, fmt.Errorf("decode response: %w", err))
	}
	if len(payload.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(payload.Choices[0].Message.Content), nil
}

type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize returns the complete audio buffer and its content type.
func (c *Client) Synthesize(ctx context.Context, text, voice, format string) ([]byte, string, error) {
	body, err := json.Marshal(speechRequest{
		Model:          c.models.TTS,
		Voice:          voice,
		Input:          text,
		ResponseFormat: format,
	})
	if err != nil {
		return nil, "", c.fail(shared.CapabilityTTS, fmt.Errorf("marshal request: %w", err))
	}

	audio, err := c.postJSON(ctx, "/audio/speech", body)
	if err != nil {
		return nil, "", c.fail(shared.CapabilityTTS, err)
	}
	return audio, "audio/" + format, nil
}

// Ping lists the available models, the cheapest authenticated call.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	_, err = c.do(req)
	return err
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        req.URL.String(),
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func (c *Client) fail(capability string, err error) error {
	metrics.BackendErrors.WithLabelValues(capability).Inc()
	return &shared.BackendError{Capability: capability, Err: err}
}
