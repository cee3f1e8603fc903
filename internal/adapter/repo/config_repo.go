package repo

import (
	"context"
	"fmt"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
	"contentgen/internal/sqlinline"
)

// ConfigRepositoryPG stores JSON configuration documents in pipeline_config.
type ConfigRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewConfigRepository(sql infra.SQLExecutor) *ConfigRepositoryPG {
	return &ConfigRepositoryPG{sql: sql}
}

func (r *ConfigRepositoryPG) Get(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	if err := r.sql.QueryRow(ctx, sqlinline.QConfigSelect, key).Scan(&raw); err != nil {
		return nil, notFound(err)
	}
	return raw, nil
}

func (r *ConfigRepositoryPG) Put(ctx context.Context, key string, value []byte) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QConfigUpsert, key, value); err != nil {
		return fmt.Errorf("put config %s: %w", key, err)
	}
	return nil
}

var _ domain.ConfigRepository = (*ConfigRepositoryPG)(nil)
