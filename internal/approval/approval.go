// Package approval hands finished images to a human reviewer.
package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/domain"
)

// Request is the approval message for one slot.
type Request struct {
	SlotID     string                          `json:"slot_id"`
	RunID      string                          `json:"run_id"`
	RuleID     string                          `json:"rule_id"`
	TargetTime time.Time                       `json:"target_time"`
	ImageURL   string                          `json:"image_url"`
	Prompt     string                          `json:"prompt,omitempty"`
	Scenario   string                          `json:"scenario"`
	Assets     map[domain.Role]domain.AssetRef `json:"assets"`
	Score      int                             `json:"quality_score"`
	TotalCost  float64                         `json:"total_cost"`
}

// Channel delivers approval requests and returns the message reference.
type Channel interface {
	Request(ctx context.Context, req Request) (string, error)
}

// WebhookChannel posts the request as JSON to a chat or review webhook.
type WebhookChannel struct {
	url    string
	token  string
	client *http.Client
	logger zerolog.Logger
}

type webhookResponse struct {
	MessageID string `json:"message_id"`
}

func NewWebhookChannel(url, token string, client *http.Client, logger zerolog.Logger) (*WebhookChannel, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("approval: webhook url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookChannel{
		url:    url,
		token:  strings.TrimSpace(token),
		client: client,
		logger: logger.With().Str("component", "approval").Logger(),
	}, nil
}

func (w *WebhookChannel) Request(ctx context.Context, req Request) (string, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return "", fmt.Errorf("approval: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, &buf)
	if err != nil {
		return "", fmt.Errorf("approval: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: approval webhook: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("%w: approval webhook status %d: %s", domain.ErrProviderFailure, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var decoded webhookResponse
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.MessageID == "" {
		return "", fmt.Errorf("%w: approval webhook returned no message_id", domain.ErrInvalidResponse)
	}

	w.logger.Info().Str("slot_id", req.SlotID).Str("run_id", req.RunID).Str("message_id", decoded.MessageID).Msg("approval requested")
	return decoded.MessageID, nil
}

// LogChannel only logs the request. It is used when no webhook is configured.
type LogChannel struct {
	logger zerolog.Logger
}

func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger.With().Str("component", "approval").Logger()}
}

func (l *LogChannel) Request(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.logger.Info().
		Str("slot_id", req.SlotID).
		Str("run_id", req.RunID).
		Str("image_url", req.ImageURL).
		Int("quality_score", req.Score).
		Float64("total_cost", req.TotalCost).
		Msg("approval requested (log channel)")
	return "log:" + req.SlotID, nil
}

var (
	_ Channel = (*WebhookChannel)(nil)
	_ Channel = (*LogChannel)(nil)
)
