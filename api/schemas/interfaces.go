package schemas

import (
	"context"
	"time"
)

// -- Store Interfaces --

// ListingStore persists ListingRecords keyed by item id.
type ListingStore interface {
	// UpsertListing inserts or updates the scraped fields of a listing. It never
	// touches refresh_count or last_refreshed.
	UpsertListing(ctx context.Context, rec ListingRecord) error
	// MarkRefreshed sets status refreshed, stamps last_refreshed and
	// increments refresh_count by exactly one.
	MarkRefreshed(ctx context.Context, itemID string, at time.Time) error
	// MarkRefreshFailed sets status failed without touching refresh_count.
	MarkRefreshFailed(ctx context.Context, itemID string) error
}

// OperationLog is the append-only audit trail in bot_operations.
type OperationLog interface {
	// StartOperation appends a started record and returns its id.
	StartOperation(ctx context.Context, rec OperationRecord) (int64, error)
	// FinishOperation applies the terminal status to a started record.
	FinishOperation(ctx context.Context, id int64, res OperationResult) error
}

// SettingsSource reads typed configuration rows from bot_settings.
type SettingsSource interface {
	// GetSetting returns the active setting for key. The bool is false when no
	// active row exists.
	GetSetting(ctx context.Context, key string) (Setting, bool, error)
}
