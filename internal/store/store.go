package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so that pgxmock can stand in for it in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store is the PostgreSQL implementation of Repository.
type Store struct {
	pool DBPool
	log  *zap.Logger
	// mu serialises writes; the bot is the only writer but the dashboard may
	// mark listings concurrently.
	mu  sync.Mutex
	now func() time.Time
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	s.log.Debug("Schema migrated.", zap.Int("statements", len(postgresSchema)))
	return nil
}

// -- Listings --

const pgUpsertListing = `
	INSERT INTO listings (item_id, url, title, price, location, status, metadata, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	ON CONFLICT (item_id) DO UPDATE SET
		url = EXCLUDED.url,
		title = EXCLUDED.title,
		price = EXCLUDED.price,
		location = EXCLUDED.location,
		status = EXCLUDED.status,
		metadata = EXCLUDED.metadata,
		updated_at = EXCLUDED.updated_at`

// UpsertListing inserts or updates a listing keyed by item_id.
func (s *Store) UpsertListing(ctx context.Context, rec schemas.ListingRecord) error {
	if rec.ItemID == "" {
		return fmt.Errorf("failed to upsert listing: empty item id")
	}
	status := rec.Status
	if status == "" {
		status = schemas.ListingActive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.pool.Exec(ctx, pgUpsertListing,
		rec.ItemID, rec.URL, rec.Title, rec.Price, rec.Location,
		string(status), metadataText(rec.Metadata), s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert listing %s: %w", rec.ItemID, err)
	}
	return nil
}

const pgMarkRefreshed = `
	UPDATE listings
	SET status = $2, last_refreshed = $3, refresh_count = refresh_count + 1, updated_at = $3
	WHERE item_id = $1`

// MarkRefreshed records a successful edit/save cycle.
func (s *Store) MarkRefreshed(ctx context.Context, itemID string, at time.Time) error {
	return s.execOne(ctx, "mark listing refreshed", pgMarkRefreshed, itemID, string(schemas.ListingRefreshed), at.UTC())
}

const pgMarkRefreshFailed = `
	UPDATE listings SET status = $2, updated_at = $3 WHERE item_id = $1`

// MarkRefreshFailed records a failed edit/save cycle.
func (s *Store) MarkRefreshFailed(ctx context.Context, itemID string) error {
	return s.execOne(ctx, "mark listing failed", pgMarkRefreshFailed, itemID, string(schemas.ListingFailed), s.now())
}

const pgMarkProcessed = `
	UPDATE listings SET status = $2, is_public = TRUE, is_visible = TRUE, updated_at = $3 WHERE item_id = $1`

// MarkProcessed flags a listing as public and visible.
func (s *Store) MarkProcessed(ctx context.Context, itemID string) error {
	return s.execOne(ctx, "mark listing processed", pgMarkProcessed, itemID, string(schemas.ListingActive), s.now())
}

// execOne runs a single-row update and maps zero affected rows to ErrNotFound.
func (s *Store) execOne(ctx context.Context, what, sql string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to %s: %w", what, ErrNotFound)
	}
	return nil
}

const pgSelectListing = `
	SELECT item_id, url, title, COALESCE(price, ''), COALESCE(location, ''), status,
		is_public, is_visible, last_refreshed, refresh_count, COALESCE(metadata, ''),
		created_at, updated_at
	FROM listings`

// GetListing fetches one listing by item id.
func (s *Store) GetListing(ctx context.Context, itemID string) (schemas.ListingRecord, error) {
	row := s.pool.QueryRow(ctx, pgSelectListing+` WHERE item_id = $1`, itemID)
	rec, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return schemas.ListingRecord{}, fmt.Errorf("listing %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return schemas.ListingRecord{}, fmt.Errorf("failed to get listing %s: %w", itemID, err)
	}
	return rec, nil
}

// ListListings returns the most recently updated listings.
func (s *Store) ListListings(ctx context.Context, limit int) ([]schemas.ListingRecord, error) {
	rows, err := s.pool.Query(ctx, pgSelectListing+` ORDER BY updated_at DESC LIMIT $1`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var out []schemas.ListingRecord
	for rows.Next() {
		rec, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanListing(row pgx.Row) (schemas.ListingRecord, error) {
	var (
		rec      schemas.ListingRecord
		status   string
		metadata string
	)
	err := row.Scan(
		&rec.ItemID, &rec.URL, &rec.Title, &rec.Price, &rec.Location, &status,
		&rec.IsPublic, &rec.IsVisible, &rec.LastRefreshedAt, &rec.RefreshCount, &metadata,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return rec, err
	}
	rec.Status = schemas.ListingStatus(status)
	if metadata != "" {
		rec.Metadata = []byte(metadata)
	}
	return rec, nil
}

// Stats summarises the listings table.
func (s *Store) Stats(ctx context.Context) (schemas.Stats, error) {
	var total, public, pending, refreshed int
	if err := s.pool.QueryRow(ctx, statsQuery).Scan(&total, &public, &pending, &refreshed); err != nil {
		return schemas.Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}
	return computeStats(total, public, pending, refreshed), nil
}

// -- Operations --

const pgInsertOperation = `
	INSERT INTO bot_operations (operation_type, operation_subtype, status, start_time, browser_session_id, user_agent)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id`

// StartOperation appends a started operation record.
func (s *Store) StartOperation(ctx context.Context, rec schemas.OperationRecord) (int64, error) {
	started := rec.StartedAt
	if started.IsZero() {
		started = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.pool.QueryRow(ctx, pgInsertOperation,
		string(rec.OperationType), rec.Subtype, string(schemas.OperationStarted),
		started.UTC(), rec.BrowserSessionID, rec.UserAgent,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to start operation %s/%s: %w", rec.OperationType, rec.Subtype, err)
	}
	return id, nil
}

const pgFinishOperation = `
	UPDATE bot_operations
	SET status = $2, items_processed = $3, items_successful = $4, items_failed = $5,
		end_time = $6, duration_seconds = $7, error_message = $8, stack_trace = $9
	WHERE id = $1 AND status = 'started'`

// FinishOperation applies a terminal status to a started record.
func (s *Store) FinishOperation(ctx context.Context, id int64, res schemas.OperationResult) error {
	if !res.Status.Terminal() {
		return fmt.Errorf("failed to finish operation %d: status %q is not terminal", id, res.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tag, err := s.pool.Exec(ctx, pgFinishOperation,
		id, string(res.Status), res.ItemsProcessed, res.ItemsSuccessful, res.ItemsFailed,
		res.EndedAt.UTC(), res.DurationSeconds, res.ErrorDetail, res.StackTrace,
	)
	if err != nil {
		return fmt.Errorf("failed to finish operation %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to finish operation %d: %w", id, ErrNotStarted)
	}
	return nil
}

const pgSelectOperations = `
	SELECT id, operation_type, COALESCE(operation_subtype, ''), status,
		items_processed, items_successful, items_failed, start_time, end_time,
		COALESCE(duration_seconds, 0), COALESCE(error_message, ''), COALESCE(stack_trace, ''),
		COALESCE(browser_session_id, ''), COALESCE(user_agent, '')
	FROM bot_operations
	ORDER BY start_time DESC, id DESC
	LIMIT $1`

// ListOperations returns the most recent operation records.
func (s *Store) ListOperations(ctx context.Context, limit int) ([]schemas.OperationRecord, error) {
	rows, err := s.pool.Query(ctx, pgSelectOperations, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var out []schemas.OperationRecord
	for rows.Next() {
		var (
			op          schemas.OperationRecord
			opType, sts string
		)
		if err := rows.Scan(
			&op.ID, &opType, &op.Subtype, &sts,
			&op.ItemsProcessed, &op.ItemsSuccessful, &op.ItemsFailed, &op.StartedAt, &op.EndedAt,
			&op.DurationSeconds, &op.ErrorDetail, &op.StackTrace, &op.BrowserSessionID, &op.UserAgent,
		); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		op.OperationType = schemas.OperationType(opType)
		op.Status = schemas.OperationStatus(sts)
		out = append(out, op)
	}
	return out, rows.Err()
}

// -- Settings --

const pgGetSetting = `
	SELECT setting_key, setting_value, setting_type, COALESCE(description, ''), is_active, updated_at
	FROM bot_settings WHERE setting_key = $1 AND is_active`

// GetSetting returns the active setting for key.
func (s *Store) GetSetting(ctx context.Context, key string) (schemas.Setting, bool, error) {
	st, err := scanSetting(s.pool.QueryRow(ctx, pgGetSetting, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return schemas.Setting{}, false, nil
	}
	if err != nil {
		return schemas.Setting{}, false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return st, true, nil
}

const pgListSettings = `
	SELECT setting_key, setting_value, setting_type, COALESCE(description, ''), is_active, updated_at
	FROM bot_settings ORDER BY setting_key`

// ListSettings returns every setting row.
func (s *Store) ListSettings(ctx context.Context) ([]schemas.Setting, error) {
	rows, err := s.pool.Query(ctx, pgListSettings)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var out []schemas.Setting
	for rows.Next() {
		st, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanSetting(row pgx.Row) (schemas.Setting, error) {
	var (
		st  schemas.Setting
		typ string
	)
	if err := row.Scan(&st.Key, &st.Value, &typ, &st.Description, &st.Active, &st.UpdatedAt); err != nil {
		return st, err
	}
	st.Type = schemas.SettingType(typ)
	return st, nil
}

const pgSeedSetting = `
	INSERT INTO bot_settings (setting_key, setting_value, setting_type, description, is_active, updated_at)
	VALUES ($1, $2, $3, $4, TRUE, $5)
	ON CONFLICT (setting_key) DO NOTHING`

// SeedSettings inserts the defaults without overwriting existing rows.
func (s *Store) SeedSettings(ctx context.Context, defaults []schemas.Setting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, d := range defaults {
		if _, err := s.pool.Exec(ctx, pgSeedSetting, d.Key, d.Value, string(d.Type), d.Description, now); err != nil {
			return fmt.Errorf("failed to seed setting %s: %w", d.Key, err)
		}
	}
	return nil
}

const pgSetSetting = `
	INSERT INTO bot_settings (setting_key, setting_value, setting_type, description, is_active, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (setting_key) DO UPDATE SET
		setting_value = EXCLUDED.setting_value,
		setting_type = EXCLUDED.setting_type,
		description = COALESCE(NULLIF(EXCLUDED.description, ''), bot_settings.description),
		is_active = EXCLUDED.is_active,
		updated_at = EXCLUDED.updated_at`

// SetSetting creates or replaces a setting.
func (s *Store) SetSetting(ctx context.Context, st schemas.Setting) error {
	typ := st.Type
	if typ == "" {
		typ = schemas.SettingString
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.pool.Exec(ctx, pgSetSetting, st.Key, st.Value, string(typ), st.Description, st.Active, s.now()); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", st.Key, err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// metadataText stores an empty metadata blob as an empty JSON object.
func metadataText(raw []byte) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "{}"
	}
	return string(raw)
}
