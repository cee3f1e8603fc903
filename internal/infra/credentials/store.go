package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"contentgen/internal/infra"
	"contentgen/internal/sqlinline"
)

const (
	ProviderGemini   = "gemini"
	ProviderOpenAI   = "openai"
	ProviderApproval = "approval_webhook"
)

// Known reports whether provider names a credential this service consumes.
func Known(provider string) bool {
	switch provider {
	case ProviderGemini, ProviderOpenAI, ProviderApproval:
		return true
	}
	return false
}

// Store keeps provider API keys in the integration_tokens table so operators
// can rotate them without redeploying.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored token for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QCredentialSelectToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers an explicitly configured value and falls back to the stored token.
func (s *Store) Resolve(ctx context.Context, provider, configured string) (string, error) {
	if v := strings.TrimSpace(configured); v != "" {
		return v, nil
	}
	if s == nil {
		return "", nil
	}
	return s.Token(ctx, provider)
}

func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	token = strings.TrimSpace(token)
	if !Known(provider) {
		return fmt.Errorf("unsupported provider %q", provider)
	}
	if token == "" {
		return fmt.Errorf("%s token is required", provider)
	}
	return s.upsert(ctx, provider, token, map[string]any{"rotated_at": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QCredentialUpsert, provider, token, raw)
	return err
}
