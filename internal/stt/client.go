package stt

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
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io"
	speechToText   = "/v1/speech-to-text"
	userAgent      = "chunkscribe/1"
)

type Config struct {
	ModelID        string
	LanguageCode   string
	TagAudioEvents bool
	Diarize        bool
}

// Transcriber turns one encoded audio blob into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string, cfg Config) (string, error)
}

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.BaseURL = baseURL
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

// WithTimeout bounds each request; zero leaves requests unbounded.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.HTTPClient = &http.Client{Timeout: timeout}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    DefaultBaseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{},
		Logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type transcriptionResponse struct {
	LanguageCode string `json:"language_code"`
	Text         string `json:"text"`
}

// Transcribe makes exactly one request. Every failure comes back as *Error.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string, cfg Config) (string, error) {
	if len(audio) == 0 {
		return "", &Error{Message: "audio payload is empty"}
	}

	body, contentType, err := encodeRequest(audio, mimeType, cfg)
	if err != nil {
		return "", &Error{Message: "encode request", Err: err}
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + speechToText
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", &Error{Message: "create request", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("xi-api-key", c.APIKey)

	started := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", &Error{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Message: "read response", StatusCode: resp.StatusCode, Err: err}
	}

	c.log().Debug("speech-to-text response",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(audio)),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{Message: describeFailure(payload), StatusCode: resp.StatusCode}
	}

	var decoded transcriptionResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", &Error{Message: "malformed response", StatusCode: resp.StatusCode, Err: err}
	}

	text := strings.TrimSpace(decoded.Text)
	if text == "" {
		return "", &Error{Message: "service returned no text", StatusCode: resp.StatusCode}
	}
	return text, nil
}

func encodeRequest(audio []byte, mimeType string, cfg Config) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := []struct{ name, value string }{
		{"model_id", cfg.ModelID},
		{"tag_audio_events", strconv.FormatBool(cfg.TagAudioEvents)},
		{"diarize", strconv.FormatBool(cfg.Diarize)},
	}
	if cfg.LanguageCode != "" {
		fields = append(fields, struct{ name, value string }{"language_code", cfg.LanguageCode})
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, FileNameFor(mimeType)))
	header.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}

// describeFailure pulls the human readable part out of an error body. The
// service answers with {"detail": {"status": ..., "message": ...}} or
// {"detail": "..."}; anything else is returned trimmed.
func describeFailure(payload []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && len(envelope.Detail) > 0 {
		var detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Detail, &detail); err == nil && detail.Message != "" {
			if detail.Status != "" {
				return detail.Status + ": " + detail.Message
			}
			return detail.Message
		}
		var text string
		if err := json.Unmarshal(envelope.Detail, &text); err == nil && text != "" {
			return text
		}
		return strings.TrimSpace(string(envelope.Detail))
	}

	text := strings.TrimSpace(string(payload))
	if len(text) > 512 {
		text = text[:512] + "..."
	}
	if text == "" {
		return "empty error response"
	}
	return text
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

func (c *Client) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Error is the single failure type of the client. StatusCode is zero when no
// HTTP response was received.
type Error struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("transcription failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (http %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed: no response at
// all, a timeout, rate limiting or a server-side failure. Cancellation is
// never retryable; callers stop on their own deadline.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var sttErr *Error
	if !errors.As(err, &sttErr) {
		return false
	}

	switch {
	case sttErr.StatusCode == 0:
		return sttErr.Err != nil
	case sttErr.StatusCode == http.StatusRequestTimeout, sttErr.StatusCode == http.StatusTooManyRequests:
		return true
	case sttErr.StatusCode >= 500:
		return true
	default:
		return false
	}
}
