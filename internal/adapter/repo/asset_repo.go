package repo

import (
	"context"
	"fmt"
	"time"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
	"contentgen/internal/sqlinline"
)

// AssetRepositoryPG implements domain.AssetRepository using PostgreSQL.
type AssetRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewAssetRepository constructs a new asset repository instance.
func NewAssetRepository(sql infra.SQLExecutor) *AssetRepositoryPG {
	return &AssetRepositoryPG{sql: sql}
}

// ListActive returns every active asset ordered by category and creation time,
// which is the stable input order the selection engine breaks ties on.
func (r *AssetRepositoryPG) ListActive(ctx context.Context) ([]domain.Asset, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QAssetListActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

func (r *AssetRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Asset, error) {
	asset, err := scanAsset(r.sql.QueryRow(ctx, sqlinline.QAssetSelectByID, id))
	if err != nil {
		return nil, notFound(err)
	}
	return asset, nil
}

// IncrementUsage bumps the counter in the database; the value is never read
// and written back.
func (r *AssetRepositoryPG) IncrementUsage(ctx context.Context, id string, usedAt time.Time) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QAssetIncrementUsage, id, usedAt)
	if err != nil {
		return fmt.Errorf("increment usage for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *AssetRepositoryPG) Upsert(ctx context.Context, asset *domain.Asset) error {
	_, err := r.sql.Exec(ctx, sqlinline.QAssetUpsert,
		asset.ID,
		asset.Category,
		asset.Subtype,
		asset.Name,
		orEmpty(asset.Tags),
		orEmpty(asset.Moods),
		orEmpty(asset.TimeSlots),
		asset.ImageURL,
		asset.StorageKey,
		asset.UsageCount,
		asset.Active,
		string(asset.EatingMethod),
		asset.PlateRequired,
	)
	if err != nil {
		return fmt.Errorf("upsert asset %s: %w", asset.ID, err)
	}
	return nil
}

func scanAsset(row rowScanner) (*domain.Asset, error) {
	var (
		asset  domain.Asset
		eating string
	)
	if err := row.Scan(
		&asset.ID,
		&asset.Category,
		&asset.Subtype,
		&asset.Name,
		&asset.Tags,
		&asset.Moods,
		&asset.TimeSlots,
		&asset.ImageURL,
		&asset.StorageKey,
		&asset.UsageCount,
		&asset.LastUsedAt,
		&asset.Active,
		&eating,
		&asset.PlateRequired,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	); err != nil {
		return nil, err
	}
	asset.EatingMethod = domain.EatingMethod(eating)
	return &asset, nil
}

var _ domain.AssetRepository = (*AssetRepositoryPG)(nil)
