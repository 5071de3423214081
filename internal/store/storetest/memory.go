// Package storetest provides an in-memory datastore for component tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
)

// Memory implements the listing, operation and settings interfaces in memory.
// Error fields inject failures into the matching call.
type Memory struct {
	mu sync.Mutex

	listings   map[string]schemas.ListingRecord
	operations []schemas.OperationRecord
	settings   map[string]schemas.Setting

	UpsertErr    error
	RefreshedErr error
	FailedErr    error
	StartErr     error
	FinishErr    error
	SettingErr   error

	// UpsertErrFor fails UpsertListing only for the given item ids.
	UpsertErrFor map[string]error

	Now func() time.Time
}

var (
	_ schemas.ListingStore   = (*Memory)(nil)
	_ schemas.OperationLog   = (*Memory)(nil)
	_ schemas.SettingsSource = (*Memory)(nil)
)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		listings: make(map[string]schemas.ListingRecord),
		settings: make(map[string]schemas.Setting),
		Now:      time.Now,
	}
}

func (m *Memory) UpsertListing(ctx context.Context, rec schemas.ListingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	if err := m.UpsertErrFor[rec.ItemID]; err != nil {
		return err
	}
	now := m.Now()
	if prev, ok := m.listings[rec.ItemID]; ok {
		rec.CreatedAt = prev.CreatedAt
		rec.RefreshCount = prev.RefreshCount
		rec.LastRefreshedAt = prev.LastRefreshedAt
	} else {
		rec.CreatedAt = now
		rec.RefreshCount = 0
		rec.LastRefreshedAt = nil
	}
	rec.UpdatedAt = now
	m.listings[rec.ItemID] = rec
	return nil
}

func (m *Memory) MarkRefreshed(ctx context.Context, itemID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RefreshedErr != nil {
		return m.RefreshedErr
	}
	rec, ok := m.listings[itemID]
	if !ok {
		return errNotFound
	}
	rec.Status = schemas.ListingRefreshed
	rec.RefreshCount++
	stamp := at
	rec.LastRefreshedAt = &stamp
	rec.UpdatedAt = m.Now()
	m.listings[itemID] = rec
	return nil
}

func (m *Memory) MarkRefreshFailed(ctx context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailedErr != nil {
		return m.FailedErr
	}
	rec, ok := m.listings[itemID]
	if !ok {
		return errNotFound
	}
	rec.Status = schemas.ListingFailed
	rec.UpdatedAt = m.Now()
	m.listings[itemID] = rec
	return nil
}

// Listing returns the stored record for itemID.
func (m *Memory) Listing(itemID string) (schemas.ListingRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.listings[itemID]
	return rec, ok
}

// Listings returns every stored record ordered by item id.
func (m *Memory) Listings() []schemas.ListingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schemas.ListingRecord, 0, len(m.listings))
	for _, rec := range m.listings {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

func (m *Memory) StartOperation(ctx context.Context, rec schemas.OperationRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return 0, m.StartErr
	}
	rec.ID = int64(len(m.operations) + 1)
	rec.Status = schemas.OperationStarted
	m.operations = append(m.operations, rec)
	return rec.ID, nil
}

func (m *Memory) FinishOperation(ctx context.Context, id int64, res schemas.OperationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FinishErr != nil {
		return m.FinishErr
	}
	if id < 1 || int(id) > len(m.operations) {
		return errNotFound
	}
	rec := &m.operations[id-1]
	if rec.Status != schemas.OperationStarted {
		return errNotStarted
	}
	ended := res.EndedAt
	rec.Status = res.Status
	rec.ItemsProcessed = res.ItemsProcessed
	rec.ItemsSuccessful = res.ItemsSuccessful
	rec.ItemsFailed = res.ItemsFailed
	rec.EndedAt = &ended
	rec.DurationSeconds = res.DurationSeconds
	rec.ErrorDetail = res.ErrorDetail
	rec.StackTrace = res.StackTrace
	return nil
}

// Operations returns every operation record in start order.
func (m *Memory) Operations() []schemas.OperationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schemas.OperationRecord(nil), m.operations...)
}

// OperationsBySubtype returns the records with the given subtype in start order.
func (m *Memory) OperationsBySubtype(subtype string) []schemas.OperationRecord {
	var out []schemas.OperationRecord
	for _, rec := range m.Operations() {
		if rec.Subtype == subtype {
			out = append(out, rec)
		}
	}
	return out
}

func (m *Memory) GetSetting(ctx context.Context, key string) (schemas.Setting, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SettingErr != nil {
		return schemas.Setting{}, false, m.SettingErr
	}
	s, ok := m.settings[key]
	if !ok || !s.Active {
		return schemas.Setting{}, false, nil
	}
	return s, true, nil
}

// PutSetting stores an active setting row.
func (m *Memory) PutSetting(key, value string, typ schemas.SettingType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = schemas.Setting{Key: key, Value: value, Type: typ, Active: true, UpdatedAt: m.Now()}
}
