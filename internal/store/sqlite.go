package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// sqliteTimeLayout sorts lexically for UTC values.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

// SQLiteStore is the embedded single-file implementation of Repository.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
	mu  sync.Mutex
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{
		db:  db,
		log: logger.Named("store"),
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	s.log.Debug("Schema migrated.", zap.Int("statements", len(sqliteSchema)))
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// -- Listings --

const sqliteUpsertListing = `
	INSERT INTO listings (item_id, url, title, price, location, status, metadata, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (item_id) DO UPDATE SET
		url = excluded.url,
		title = excluded.title,
		price = excluded.price,
		location = excluded.location,
		status = excluded.status,
		metadata = excluded.metadata,
		updated_at = excluded.updated_at`

// UpsertListing inserts or updates a listing keyed by item_id.
func (s *SQLiteStore) UpsertListing(ctx context.Context, rec schemas.ListingRecord) error {
	if rec.ItemID == "" {
		return fmt.Errorf("failed to upsert listing: empty item id")
	}
	status := rec.Status
	if status == "" {
		status = schemas.ListingActive
	}
	now := formatTime(s.now())

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, sqliteUpsertListing,
		rec.ItemID, rec.URL, rec.Title, rec.Price, rec.Location,
		string(status), metadataText(rec.Metadata), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert listing %s: %w", rec.ItemID, err)
	}
	return nil
}

// MarkRefreshed records a successful edit/save cycle.
func (s *SQLiteStore) MarkRefreshed(ctx context.Context, itemID string, at time.Time) error {
	ts := formatTime(at)
	return s.execOne(ctx, "mark listing refreshed",
		`UPDATE listings SET status = ?, last_refreshed = ?, refresh_count = refresh_count + 1, updated_at = ? WHERE item_id = ?`,
		string(schemas.ListingRefreshed), ts, ts, itemID)
}

// MarkRefreshFailed records a failed edit/save cycle.
func (s *SQLiteStore) MarkRefreshFailed(ctx context.Context, itemID string) error {
	return s.execOne(ctx, "mark listing failed",
		`UPDATE listings SET status = ?, updated_at = ? WHERE item_id = ?`,
		string(schemas.ListingFailed), formatTime(s.now()), itemID)
}

// MarkProcessed flags a listing as public and visible.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, itemID string) error {
	return s.execOne(ctx, "mark listing processed",
		`UPDATE listings SET status = ?, is_public = 1, is_visible = 1, updated_at = ? WHERE item_id = ?`,
		string(schemas.ListingActive), formatTime(s.now()), itemID)
}

func (s *SQLiteStore) execOne(ctx context.Context, what, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to %s: %w", what, ErrNotFound)
	}
	return nil
}

const sqliteSelectListing = `
	SELECT item_id, url, title, COALESCE(price, ''), COALESCE(location, ''), status,
		is_public, is_visible, last_refreshed, refresh_count, COALESCE(metadata, ''),
		created_at, updated_at
	FROM listings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteListing(row rowScanner) (schemas.ListingRecord, error) {
	var (
		rec              schemas.ListingRecord
		status, metadata string
		created, updated string
		lastRefreshed    sql.NullString
	)
	err := row.Scan(
		&rec.ItemID, &rec.URL, &rec.Title, &rec.Price, &rec.Location, &status,
		&rec.IsPublic, &rec.IsVisible, &lastRefreshed, &rec.RefreshCount, &metadata,
		&created, &updated,
	)
	if err != nil {
		return rec, err
	}
	rec.Status = schemas.ListingStatus(status)
	if metadata != "" {
		rec.Metadata = []byte(metadata)
	}
	if lastRefreshed.Valid {
		t := parseTime(lastRefreshed.String)
		rec.LastRefreshedAt = &t
	}
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return rec, nil
}

// GetListing fetches one listing by item id.
func (s *SQLiteStore) GetListing(ctx context.Context, itemID string) (schemas.ListingRecord, error) {
	rec, err := scanSQLiteListing(s.db.QueryRowContext(ctx, sqliteSelectListing+` WHERE item_id = ?`, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return schemas.ListingRecord{}, fmt.Errorf("listing %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return schemas.ListingRecord{}, fmt.Errorf("failed to get listing %s: %w", itemID, err)
	}
	return rec, nil
}

// ListListings returns the most recently updated listings.
func (s *SQLiteStore) ListListings(ctx context.Context, limit int) ([]schemas.ListingRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectListing+` ORDER BY updated_at DESC, id DESC LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var out []schemas.ListingRecord
	for rows.Next() {
		rec, err := scanSQLiteListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats summarises the listings table.
func (s *SQLiteStore) Stats(ctx context.Context) (schemas.Stats, error) {
	var total, public, pending, refreshed int
	if err := s.db.QueryRowContext(ctx, statsQuery).Scan(&total, &public, &pending, &refreshed); err != nil {
		return schemas.Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}
	return computeStats(total, public, pending, refreshed), nil
}

// -- Operations --

// StartOperation appends a started operation record.
func (s *SQLiteStore) StartOperation(ctx context.Context, rec schemas.OperationRecord) (int64, error) {
	started := rec.StartedAt
	if started.IsZero() {
		started = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_operations (operation_type, operation_subtype, status, start_time, browser_session_id, user_agent)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(rec.OperationType), rec.Subtype, string(schemas.OperationStarted),
		formatTime(started), rec.BrowserSessionID, rec.UserAgent,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to start operation %s/%s: %w", rec.OperationType, rec.Subtype, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to start operation %s/%s: %w", rec.OperationType, rec.Subtype, err)
	}
	return id, nil
}

// FinishOperation applies a terminal status to a started record.
func (s *SQLiteStore) FinishOperation(ctx context.Context, id int64, res schemas.OperationResult) error {
	if !res.Status.Terminal() {
		return fmt.Errorf("failed to finish operation %d: status %q is not terminal", id, res.Status)
	}
	err := s.execOne(ctx, fmt.Sprintf("finish operation %d", id),
		`UPDATE bot_operations
		SET status = ?, items_processed = ?, items_successful = ?, items_failed = ?,
			end_time = ?, duration_seconds = ?, error_message = ?, stack_trace = ?
		WHERE id = ? AND status = 'started'`,
		string(res.Status), res.ItemsProcessed, res.ItemsSuccessful, res.ItemsFailed,
		formatTime(res.EndedAt), res.DurationSeconds, res.ErrorDetail, res.StackTrace, id,
	)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to finish operation %d: %w", id, ErrNotStarted)
	}
	return err
}

// ListOperations returns the most recent operation records.
func (s *SQLiteStore) ListOperations(ctx context.Context, limit int) ([]schemas.OperationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation_type, COALESCE(operation_subtype, ''), status,
			items_processed, items_successful, items_failed, start_time, end_time,
			COALESCE(duration_seconds, 0), COALESCE(error_message, ''), COALESCE(stack_trace, ''),
			COALESCE(browser_session_id, ''), COALESCE(user_agent, '')
		FROM bot_operations
		ORDER BY start_time DESC, id DESC
		LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var out []schemas.OperationRecord
	for rows.Next() {
		var (
			op                 schemas.OperationRecord
			opType, sts, start string
			end                sql.NullString
		)
		if err := rows.Scan(
			&op.ID, &opType, &op.Subtype, &sts,
			&op.ItemsProcessed, &op.ItemsSuccessful, &op.ItemsFailed, &start, &end,
			&op.DurationSeconds, &op.ErrorDetail, &op.StackTrace, &op.BrowserSessionID, &op.UserAgent,
		); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		op.OperationType = schemas.OperationType(opType)
		op.Status = schemas.OperationStatus(sts)
		op.StartedAt = parseTime(start)
		if end.Valid {
			t := parseTime(end.String)
			op.EndedAt = &t
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// -- Settings --

const sqliteSelectSetting = `
	SELECT setting_key, setting_value, setting_type, COALESCE(description, ''), is_active, updated_at
	FROM bot_settings`

func scanSQLiteSetting(row rowScanner) (schemas.Setting, error) {
	var (
		st           schemas.Setting
		typ, updated string
	)
	if err := row.Scan(&st.Key, &st.Value, &typ, &st.Description, &st.Active, &updated); err != nil {
		return st, err
	}
	st.Type = schemas.SettingType(typ)
	st.UpdatedAt = parseTime(updated)
	return st, nil
}

// GetSetting returns the active setting for key.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (schemas.Setting, bool, error) {
	st, err := scanSQLiteSetting(s.db.QueryRowContext(ctx, sqliteSelectSetting+` WHERE setting_key = ? AND is_active = 1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return schemas.Setting{}, false, nil
	}
	if err != nil {
		return schemas.Setting{}, false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return st, true, nil
}

// ListSettings returns every setting row.
func (s *SQLiteStore) ListSettings(ctx context.Context) ([]schemas.Setting, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectSetting+` ORDER BY setting_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var out []schemas.Setting
	for rows.Next() {
		st, err := scanSQLiteSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SeedSettings inserts the defaults without overwriting existing rows.
func (s *SQLiteStore) SeedSettings(ctx context.Context, defaults []schemas.Setting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatTime(s.now())
	for _, d := range defaults {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO bot_settings (setting_key, setting_value, setting_type, description, is_active, updated_at)
			VALUES (?, ?, ?, ?, 1, ?)`,
			d.Key, d.Value, string(d.Type), d.Description, now)
		if err != nil {
			return fmt.Errorf("failed to seed setting %s: %w", d.Key, err)
		}
	}
	return nil
}

// SetSetting creates or replaces a setting.
func (s *SQLiteStore) SetSetting(ctx context.Context, st schemas.Setting) error {
	typ := st.Type
	if typ == "" {
		typ = schemas.SettingString
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_settings (setting_key, setting_value, setting_type, description, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (setting_key) DO UPDATE SET
			setting_value = excluded.setting_value,
			setting_type = excluded.setting_type,
			description = COALESCE(NULLIF(excluded.description, ''), bot_settings.description),
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		st.Key, st.Value, string(typ), st.Description, st.Active, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", st.Key, err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.log.Warn("Failed to checkpoint WAL.", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		s.log.Warn("Failed to close database.", zap.Error(err))
	}
}
