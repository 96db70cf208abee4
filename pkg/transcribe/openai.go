package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const providerOpenAI = "openai"

// OpenAI implements Provider for the OpenAI audio transcription API.
// Any Whisper-compatible server that accepts a multipart "file" field
// and returns JSON {"text": "..."} works too.
type OpenAI struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewOpenAI creates a new OpenAI transcription provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &OpenAI{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger.With("component", "transcribe.openai"),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}, nil
}

// Transcribe converts audio to text via the upstream API.
// The call is made exactly once; failures surface to the caller.
func (o *OpenAI) Transcribe(ctx context.Context, audio io.Reader, filename string) (*Result, error) {
	start := time.Now()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("create form file: %w", err))
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("copy audio: %w", err))
	}
	if err := mw.WriteField("model", o.config.ModelID); err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("write model field: %w", err))
	}
	if o.config.Language != "" {
		if err := mw.WriteField("language", o.config.Language); err != nil {
			return nil, WrapError(providerOpenAI, fmt.Errorf("write language field: %w", err))
		}
	}
	if err := mw.Close(); err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("close multipart writer: %w", err))
	}

	url := o.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, &body)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("post audio: %w", err))
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()

	if resp.StatusCode != http.StatusOK {
		return nil, o.parseError(resp)
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("decode response: %w", err))
	}

	if strings.TrimSpace(result.Text) == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyTranscript)
	}

	o.logger.Debug("transcribed audio",
		"chars", len(result.Text),
		"latency_ms", latency,
		"model", o.config.ModelID,
	)

	return &Result{
		Text:      result.Text,
		Language:  result.Language,
		LatencyMs: latency,
	}, nil
}

// Health checks API connectivity.
func (o *OpenAI) Health(ctx context.Context) error {
	url := o.baseURL + "/models"
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return WrapError(providerOpenAI, err)
	}
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return WrapError(providerOpenAI, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return o.parseError(resp)
	}
	return nil
}

// Close releases resources.
func (o *OpenAI) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

// parseError reads and parses an error response.
func (o *OpenAI) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerOpenAI,
	}
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)
