package repo

import (
	"encoding/json"
	"fmt"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if infra.IsNoRows(err) {
		return domain.ErrNotFound
	}
	return err
}

func encodeResult(result *domain.PipelineResult) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode pipeline result: %w", err)
	}
	return raw, nil
}

func decodeResult(raw []byte) (*domain.PipelineResult, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var result domain.PipelineResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode pipeline result: %w", err)
	}
	return &result, nil
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
