package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/config"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = errors.New("record not found")

// ErrNotStarted is returned when finishing an operation that already has a
// terminal status.
var ErrNotStarted = errors.New("operation is not in started state")

// Repository is the full datastore surface used by the bot, the dashboard and
// the settings admin command.
type Repository interface {
	schemas.ListingStore
	schemas.OperationLog
	schemas.SettingsSource

	// Migrate creates every table if it does not exist.
	Migrate(ctx context.Context) error
	// SeedSettings inserts each setting unless its key already exists.
	SeedSettings(ctx context.Context, defaults []schemas.Setting) error
	// SetSetting creates or replaces a setting row.
	SetSetting(ctx context.Context, s schemas.Setting) error
	// ListSettings returns every setting row ordered by key.
	ListSettings(ctx context.Context) ([]schemas.Setting, error)

	GetListing(ctx context.Context, itemID string) (schemas.ListingRecord, error)
	// ListListings returns the most recently updated listings first.
	ListListings(ctx context.Context, limit int) ([]schemas.ListingRecord, error)
	// MarkProcessed flags a listing as public and visible.
	MarkProcessed(ctx context.Context, itemID string) error
	Stats(ctx context.Context) (schemas.Stats, error)

	// ListOperations returns the most recent operation records first.
	ListOperations(ctx context.Context, limit int) ([]schemas.OperationRecord, error)

	Close()
}

// Open connects to the backend selected by cfg.Driver, runs the migration
// and seeds the default settings.
func Open(ctx context.Context, cfg config.DatabaseConfig, defaults []schemas.Setting, logger *zap.Logger) (Repository, error) {
	var (
		repo Repository
		err  error
	)
	switch cfg.Driver {
	case "postgres":
		pool, perr := pgxpool.New(ctx, cfg.URL)
		if perr != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", perr)
		}
		repo, err = New(ctx, pool, logger)
		if err != nil {
			pool.Close()
		}
	case "sqlite":
		repo, err = OpenSQLite(ctx, cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	if err := repo.SeedSettings(ctx, defaults); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

// computeStats derives the dashboard ratios from raw counts.
func computeStats(total, public, pending, refreshed int) schemas.Stats {
	st := schemas.Stats{
		TotalListings:     total,
		PublicListings:    public,
		PendingListings:   pending,
		RefreshedListings: refreshed,
	}
	if total > 0 {
		st.SuccessRate = math.Round(float64(public)/float64(total)*10000) / 100
	}
	return st
}

// normalizeLimit bounds list queries.
func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}

const statsQuery = `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN is_public THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'refreshed' THEN 1 ELSE 0 END), 0)
	FROM listings`
