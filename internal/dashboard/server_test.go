package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/config"
	"github.com/xkilldash9x/listing-refresher/internal/scheduler"
	"github.com/xkilldash9x/listing-refresher/internal/store"
)

type fakeStore struct {
	mu        sync.Mutex
	stats     schemas.Stats
	listings  []schemas.ListingRecord
	ops       []schemas.OperationRecord
	processed []string
	limits    map[string]int
	err       error
}

func (f *fakeStore) Stats(ctx context.Context) (schemas.Stats, error) {
	return f.stats, f.err
}

func (f *fakeStore) ListListings(ctx context.Context, limit int) ([]schemas.ListingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits["listings"] = limit
	return f.listings, f.err
}

func (f *fakeStore) ListOperations(ctx context.Context, limit int) ([]schemas.OperationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits["operations"] = limit
	return f.ops, f.err
}

func (f *fakeStore) MarkProcessed(ctx context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, rec := range f.listings {
		if rec.ItemID == itemID {
			f.processed = append(f.processed, itemID)
			return nil
		}
	}
	return fmt.Errorf("failed to mark listing processed: %w", store.ErrNotFound)
}

type fakeController struct {
	mu      sync.Mutex
	running bool
	starts  int
	stops   int
}

func (f *fakeController) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return scheduler.ErrAlreadyRunning
	}
	f.running = true
	f.starts++
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stops++
}

func (f *fakeController) Status() scheduler.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return scheduler.Status{Running: f.running, Cycles: f.starts}
}

func newServer(t *testing.T, mutate func(*config.DashboardConfig)) (*Server, *fakeStore, *fakeController) {
	t.Helper()
	cfg := config.NewDefaultConfig().Dashboard
	if mutate != nil {
		mutate(&cfg)
	}
	st := &fakeStore{limits: map[string]int{}}
	ctl := &fakeController{}
	return New(context.Background(), cfg, st, ctl, zap.NewNop()), st, ctl
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]any
	if rec.Header().Get("Content-Type") != "" && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func TestStats(t *testing.T) {
	s, st, _ := newServer(t, nil)
	st.stats = schemas.Stats{TotalListings: 3, PublicListings: 1, PendingListings: 1, SuccessRate: 33.33}

	rec, body := do(t, s.Routes(), http.MethodGet, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, true, body["success"])

	stats := body["stats"].(map[string]any)
	assert.Equal(t, float64(3), stats["total_listings"])
	assert.Equal(t, float64(1), stats["public_listings"])
	assert.Equal(t, float64(1), stats["pending_listings"])
	assert.Equal(t, 33.33, stats["success_rate"])
}

func TestListingsAndOperations(t *testing.T) {
	s, st, _ := newServer(t, nil)
	h := s.Routes()

	rec, body := do(t, h, http.MethodGet, "/api/listings")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["listings"], "an empty table encodes as an empty array")

	st.listings = []schemas.ListingRecord{{ItemID: "1", Title: "Sofa", Status: schemas.ListingActive}}
	st.ops = []schemas.OperationRecord{{ID: 7, OperationType: schemas.OperationMarketplace, Subtype: schemas.SubtypeGetListings}}

	_, body = do(t, h, http.MethodGet, "/api/listings")
	listings := body["listings"].([]any)
	require.Len(t, listings, 1)
	assert.Equal(t, "Sofa", listings[0].(map[string]any)["title"])

	_, body = do(t, h, http.MethodGet, "/api/operations")
	assert.Len(t, body["operations"], 1)

	assert.Equal(t, map[string]int{"listings": 50, "operations": 20}, st.limits)
}

func TestProcessListing(t *testing.T) {
	s, st, _ := newServer(t, nil)
	st.listings = []schemas.ListingRecord{{ItemID: "123"}}
	h := s.Routes()

	rec, body := do(t, h, http.MethodPost, "/api/listings/123/process")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Processed listing: 123", body["message"])
	assert.Equal(t, []string{"123"}, st.processed)

	rec, body = do(t, h, http.MethodPost, "/api/listings/999/process")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "999")

	rec, _ = do(t, h, http.MethodGet, "/api/listings/123/process")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBotControl(t *testing.T) {
	s, _, ctl := newServer(t, nil)
	h := s.Routes()

	rec, body := do(t, h, http.MethodPost, "/api/bot/start")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bot started successfully", body["message"])

	rec, body = do(t, h, http.MethodPost, "/api/bot/start")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, body["success"])

	_, body = do(t, h, http.MethodGet, "/api/bot/status")
	status := body["status"].(map[string]any)
	assert.Equal(t, true, status["running"])

	rec, body = do(t, h, http.MethodPost, "/api/bot/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bot stopped successfully", body["message"])
	assert.Equal(t, 1, ctl.starts)
	assert.Equal(t, 1, ctl.stops)
	assert.False(t, ctl.Status().Running)
}

func TestStoreFailure(t *testing.T) {
	s, st, _ := newServer(t, nil)
	st.err = errors.New("database is locked")

	for _, path := range []string{"/api/stats", "/api/listings", "/api/operations"} {
		rec, body := do(t, s.Routes(), http.MethodGet, path)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		assert.Equal(t, false, body["success"], path)
		assert.Equal(t, "database is locked", body["message"], path)
	}
}

func TestUnknownRoute(t *testing.T) {
	s, _, _ := newServer(t, nil)
	rec, body := do(t, s.Routes(), http.MethodGet, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Invalid action", body["message"])
}

func TestRateLimit(t *testing.T) {
	s, _, _ := newServer(t, func(c *config.DashboardConfig) { c.RateLimit = 2 })
	h := s.Routes()

	for i := 0; i < 2; i++ {
		rec, _ := do(t, h, http.MethodGet, "/api/bot/status")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bot/status", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCORS(t *testing.T) {
	s, _, _ := newServer(t, nil)
	h := s.Routes()

	req := httptest.NewRequest(http.MethodOptions, "/api/stats", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeShutsDownWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	s, _, _ := newServer(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	transport := &http.Transport{DisableKeepAlives: true}
	client := &http.Client{Transport: transport}
	resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	transport.CloseIdleConnections()
	assert.Equal(t, "OK", string(body))

	cancel()
	assert.NoError(t, <-done)
}
