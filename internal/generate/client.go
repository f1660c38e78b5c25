package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cardcast/internal/assets"
	"cardcast/internal/logging"
	"cardcast/internal/services"
)

const (
	defaultHTTPTimeout = 120 * time.Second
	maxResponseBytes   = 64 << 20
)

// Kind selects the asset the service produces.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// ParseKind normalizes a user-supplied kind, defaulting to KindImage.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case "", KindImage:
		return KindImage, nil
	case KindVideo:
		return KindVideo, nil
	default:
		return "", fmt.Errorf("%w: unknown generation kind %q", services.ErrValidation, value)
	}
}

// Config captures the runtime settings required to reach the service.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// Request is the structured prompt payload.
type Request struct {
	MasterText       string  `json:"master_text"`
	PersonalizedText string  `json:"personalized_text"`
	ReferenceImage   string  `json:"reference_image,omitempty"`
	AspectRatio      string  `json:"aspect_ratio,omitempty"`
	Strength         float64 `json:"strength,omitempty"`
	Kind             Kind    `json:"kind"`
	Model            string  `json:"model,omitempty"`
}

// Result is a generated asset.
type Result struct {
	DataURI  string
	MIMEType string
	Model    string
}

// Client wraps the generation endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "generate")
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

type generateResponse struct {
	DataURI  string `json:"data_uri"`
	Output   string `json:"output"`
	MIMEType string `json:"mime_type"`
	Model    string `json:"model"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate issues a single generation request. Required fields are the master
// text and the kind; nothing else about the payload is checked.
func (c *Client) Generate(ctx context.Context, req Request) (Result, error) {
	req.MasterText = strings.TrimSpace(req.MasterText)
	req.PersonalizedText = strings.TrimSpace(req.PersonalizedText)
	if req.MasterText == "" {
		return Result{}, services.Wrap(services.ErrValidation, "generate", "request", "master text required", nil)
	}
	if req.Kind == "" {
		req.Kind = KindImage
	}
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	if c.cfg.BaseURL == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "generate", "request", "generator.base_url not set", nil)
	}

	encoded, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("generate: encode body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return Result{}, fmt.Errorf("generate: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return Result{}, services.Wrap(services.ErrTimeout, "generate", "request",
				fmt.Sprintf("no response within %s", c.httpClient.Timeout), err)
		}
		return Result{}, services.Wrap(services.ErrExternalTool, "generate", "request", "service unreachable", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "generate", "read response", "", err)
	}
	if len(body) > maxResponseBytes {
		return Result{}, services.Wrap(services.ErrExternalTool, "generate", "read response", "response too large", nil)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := &httpStatusError{StatusCode: resp.StatusCode, Body: snippet(string(body))}
		marker := services.ErrExternalTool
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
			marker = services.ErrValidation
		}
		return Result{}, services.Wrap(marker, "generate", "request", "service rejected request", statusErr)
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "generate", "decode response", snippet(string(body)), err)
	}
	if parsed.Error != nil && strings.TrimSpace(parsed.Error.Message) != "" {
		return Result{}, services.Wrap(services.ErrExternalTool, "generate", "request", strings.TrimSpace(parsed.Error.Message), nil)
	}
	uri := strings.TrimSpace(parsed.DataURI)
	if uri == "" {
		uri = strings.TrimSpace(parsed.Output)
	}
	mime, _, err := assets.ParseDataURI(uri)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "generate", "decode response", "output is not a data URI", err)
	}
	if parsed.MIMEType != "" {
		mime = parsed.MIMEType
	}

	c.logger.Info("asset generated",
		logging.String(logging.FieldEventType, "asset_generated"),
		logging.String("kind", string(req.Kind)),
		logging.String("mime_type", mime),
		logging.Duration("elapsed", time.Since(started)),
	)
	return Result{DataURI: uri, MIMEType: mime, Model: parsed.Model}, nil
}

// Ping checks that the endpoint answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	if c.cfg.BaseURL == "" {
		return services.Wrap(services.ErrConfiguration, "generate", "ping", "generator.base_url not set", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.BaseURL, nil)
	if err != nil {
		return fmt.Errorf("generate: new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "generate", "ping", "service unreachable", err)
	}
	_ = resp.Body.Close()
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
