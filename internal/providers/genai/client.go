// Package genai is a small client for the Gemini generateContent REST API,
// shared by the reasoning, image and quality providers.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/domain"
)

// ErrOffline is returned by text calls when no API key is configured. Image
// generation never returns it; it renders synthetic images instead.
var ErrOffline = errors.New("genai: no api key configured")

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultTextModel  = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.5-flash-image"

	// generated images are a few MB; anything far larger is not a real answer
	maxResponseBytes = 32 << 20
)

type Options struct {
	APIKey     string
	BaseURL    string
	TextModel  string
	ImageModel string
	HTTPClient *http.Client
	// MaxRetries bounds retries of 429 and 5xx answers. Zero means 2; a
	// negative value disables retries.
	MaxRetries int
	// RetryBackoff is the first wait between retries, doubled each time.
	RetryBackoff time.Duration
	Logger       zerolog.Logger
}

// Client calls the API when it has a key. Without one it is offline: images
// are rendered locally from a hash of the request and text calls fail with
// ErrOffline.
type Client struct {
	apiKey       string
	baseURL      string
	textModel    string
	imageModel   string
	http         *http.Client
	maxRetries   int
	retryBackoff time.Duration
	logger       zerolog.Logger
}

// InlineImage is an image sent to the model as base64 data.
type InlineImage struct {
	MimeType string
	Data     []byte
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("genai: invalid base url %q", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 2 * time.Minute}
	}
	retries := opts.MaxRetries
	switch {
	case retries == 0:
		retries = 2
	case retries < 0:
		retries = 0
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      base,
		textModel:    firstNonEmpty(opts.TextModel, defaultTextModel),
		imageModel:   firstNonEmpty(opts.ImageModel, defaultImageModel),
		http:         hc,
		maxRetries:   retries,
		retryBackoff: backoff,
		logger:       opts.Logger.With().Str("component", "genai").Logger(),
	}, nil
}

func (c *Client) Offline() bool { return c.apiKey == "" }

func (c *Client) TextModel() string { return c.textModel }

func (c *Client) ImageModel() string { return c.imageModel }

// generate posts req to model, retrying throttled and unavailable answers.
func (c *Client) generate(ctx context.Context, model string, req wireRequest) (*wireResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("genai: encode request: %w", err)
	}
	endpoint := c.baseURL + "/models/" + url.PathEscape(model) + ":generateContent"

	wait := c.retryBackoff
	for attempt := 0; ; attempt++ {
		resp, retryable, err := c.post(ctx, endpoint, body)
		if err == nil {
			return resp, nil
		}
		if !retryable || attempt >= c.maxRetries {
			return nil, err
		}
		c.logger.Debug().Err(err).Str("model", model).Int("attempt", attempt+1).Dur("wait", wait).Msg("genai: retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (*wireResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("genai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("%w: gemini request: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, fmt.Errorf("%w: read gemini response: %v", domain.ErrProviderFailure, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
		msg := strings.TrimSpace(string(data))
		var apiErr wireError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		if msg == "" {
			return nil, retryable, fmt.Errorf("%w: gemini status %d", domain.ErrProviderFailure, resp.StatusCode)
		}
		return nil, retryable, fmt.Errorf("%w: gemini status %d: %s", domain.ErrProviderFailure, resp.StatusCode, msg)
	}

	var out wireResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, fmt.Errorf("%w: decode gemini response: %v", domain.ErrInvalidResponse, err)
	}
	return &out, false, nil
}

func inlinePart(img InlineImage) wirePart {
	return wirePart{InlineData: &wireInline{
		MimeType: firstNonEmpty(img.MimeType, "image/png"),
		Data:     base64.StdEncoding.EncodeToString(img.Data),
	}}
}

// partImage returns the image bytes carried by part, downloading file parts.
// A part without image data yields nil data and no error.
func (c *Client) partImage(ctx context.Context, part wirePart) ([]byte, string, error) {
	switch {
	case part.InlineData != nil && part.InlineData.Data != "":
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, "", fmt.Errorf("decode inline image: %w", err)
		}
		return data, part.InlineData.MimeType, nil
	case part.FileData != nil && part.FileData.FileURI != "":
		data, mime, err := c.Fetch(ctx, part.FileData.FileURI)
		if err != nil {
			return nil, "", err
		}
		return data, firstNonEmpty(part.FileData.MimeType, mime), nil
	}
	return nil, "", nil
}

// Fetch downloads uri and returns its bytes and content type. Relative URIs
// are resolved against the API base URL and sent with the API key.
func (c *Client) Fetch(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	relative := !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://")
	if relative {
		target = c.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", uri, err)
	}
	if relative && c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", uri, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("fetch %s: status %d", uri, resp.StatusCode)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
