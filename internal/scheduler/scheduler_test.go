package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/core/coretest"
	"github.com/xkilldash9x/listing-refresher/internal/settings"
)

var errBadPassword = errors.New("login failed: bad password")

type fakeAuth struct {
	mu     sync.Mutex
	err    error
	active bool
	logins int
}

func (f *fakeAuth) Login(ctx context.Context, creds schemas.Credentials) (*schemas.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.err != nil {
		return nil, f.err
	}
	return &schemas.Session{SessionID: "s", Account: creds.Account, Active: true}, nil
}

func (f *fakeAuth) ActiveSession(account string) (*schemas.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return nil, false
	}
	return &schemas.Session{SessionID: "s", Account: account, Active: true}, true
}

type fakeExtractor struct {
	mu       sync.Mutex
	listings []schemas.ListingRecord
	err      error
	calls    int
	// panics lists the (1-based) calls that panic.
	panics map[int]bool
	// block, when set, holds every call until ctx is done.
	block   bool
	entered chan struct{}
}

func (f *fakeExtractor) Extract(ctx context.Context) ([]schemas.ListingRecord, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.panics[n] {
		panic("renderer crashed")
	}
	if f.block {
		if f.entered != nil {
			close(f.entered)
			f.entered = nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.listings, f.err
}

func (f *fakeExtractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	fail  int
}

func (f *fakeRefresher) RefreshAll(ctx context.Context, listings []schemas.ListingRecord) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return len(listings) - f.fail, len(listings)
}

func (f *fakeRefresher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	env     *coretest.Env
	auth    *fakeAuth
	extract *fakeExtractor
	refresh *fakeRefresher
	sched   *Scheduler
}

func newFixture(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()
	env := coretest.New(t, nil)
	if logger != nil {
		env.Bot.Logger = logger
	}
	f := &fixture{
		env:  env,
		auth: &fakeAuth{},
		extract: &fakeExtractor{listings: []schemas.ListingRecord{
			{ItemID: "1", URL: "https://www.facebook.com/marketplace/item/1/"},
			{ItemID: "2", URL: "https://www.facebook.com/marketplace/item/2/"},
		}},
		refresh: &fakeRefresher{},
	}
	f.sched = New(env.Bot, f.auth, f.extract, f.refresh, schemas.Credentials{Account: "a@example.com", Secret: "s"})
	return f
}

func TestRunCycle(t *testing.T) {
	f := newFixture(t, nil)
	f.refresh.fail = 1

	res, err := f.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Listings: 2, Refreshed: 1, Attempted: 2}, res)
	assert.Equal(t, 1, f.auth.logins)
	assert.Equal(t, 1, f.refresh.Calls())
}

func TestRunCycleLoginFailureAborts(t *testing.T) {
	f := newFixture(t, nil)
	f.auth.err = errBadPassword

	_, err := f.sched.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errBadPassword)
	assert.Zero(t, f.extract.Calls())
	assert.Zero(t, f.refresh.Calls())
}

func TestRunCycleEmptyListingsIsBenign(t *testing.T) {
	f := newFixture(t, nil)
	f.extract.listings = nil

	res, err := f.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Listings)
	assert.Zero(t, f.refresh.Calls())
}

func TestRunCycleExtractError(t *testing.T) {
	f := newFixture(t, nil)
	navErr := errors.New("failed to open the marketplace selling page")
	f.extract.listings = nil
	f.extract.err = navErr

	_, err := f.sched.RunCycle(context.Background())
	assert.ErrorIs(t, err, navErr)
	assert.Zero(t, f.refresh.Calls())
}

func TestRunCycleAutoRefreshDisabled(t *testing.T) {
	f := newFixture(t, nil)
	f.env.Store.PutSetting(settings.AutoRefreshEnabled, "false", schemas.SettingBoolean)

	res, err := f.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Listings)
	assert.NotEmpty(t, res.Skipped)
	assert.Zero(t, f.refresh.Calls())
}

func TestRunCycleAutoLoginDisabled(t *testing.T) {
	f := newFixture(t, nil)
	f.env.Store.PutSetting(settings.AutoLoginEnabled, "false", schemas.SettingBoolean)

	_, err := f.sched.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrLoginDisabled)

	f.auth.active = true
	_, err = f.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, f.auth.logins, "an active session is reused without logging in")
	assert.Equal(t, 1, f.refresh.Calls())
}

func TestDailyRefreshBudget(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.env.Store.PutSetting(settings.MaxRefreshPerDay, "2", schemas.SettingInteger)

	for i := 0; i < 2; i++ {
		res, err := f.sched.RunCycle(ctx)
		require.NoError(t, err)
		assert.Empty(t, res.Skipped)
	}
	res, err := f.sched.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "daily refresh budget exhausted", res.Skipped)
	assert.Equal(t, 2, f.refresh.Calls())

	// One token refills every 12 hours.
	f.env.Clock.Advance(12 * time.Hour)
	res, err = f.sched.RunCycle(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 3, f.refresh.Calls())

	f.env.Store.PutSetting(settings.MaxRefreshPerDay, "0", schemas.SettingInteger)
	res, err = f.sched.RunCycle(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Skipped)
}

func TestRunContinuousWaitsInTicks(t *testing.T) {
	defer goleak.VerifyNone(t)
	obs, logs := observer.New(zap.InfoLevel)
	f := newFixture(t, zap.New(obs))
	f.env.Store.PutSetting(settings.RefreshIntervalHours, "2", schemas.SettingInteger)

	f.env.Clock.OnSleep = func(time.Duration) {
		if f.sched.Status().Cycles >= 2 {
			f.sched.Stop()
		}
	}

	require.NoError(t, f.sched.RunContinuous(context.Background()))

	st := f.sched.Status()
	assert.False(t, st.Running)
	assert.Equal(t, 2, st.Cycles)
	assert.Empty(t, st.LastError)
	require.NotNil(t, st.LastResult)
	assert.Equal(t, 2, st.LastResult.Refreshed)
	assert.Nil(t, st.NextCycleAt)

	sleeps := f.env.Clock.Sleeps()
	require.GreaterOrEqual(t, len(sleeps), 120)
	for _, d := range sleeps[:120] {
		assert.Equal(t, time.Minute, d)
	}

	waits := logs.FilterMessage("Waiting for next cycle.").All()
	require.GreaterOrEqual(t, len(waits), 2)
	assert.Equal(t, int64(2), waits[0].ContextMap()["hours_remaining"])
	assert.Equal(t, int64(1), waits[1].ContextMap()["hours_remaining"])
}

func TestRunContinuousContainsFaults(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, nil)
	f.extract.panics = map[int]bool{1: true}
	cooldown := f.env.Bot.Config.Scheduler.Cooldown

	f.env.Clock.OnSleep = func(time.Duration) {
		if f.sched.Status().Cycles >= 2 {
			f.sched.Stop()
		}
	}

	require.NoError(t, f.sched.RunContinuous(context.Background()))

	sleeps := f.env.Clock.Sleeps()
	require.NotEmpty(t, sleeps)
	assert.Equal(t, cooldown, sleeps[0], "a panicking cycle is followed by the cooldown")
	assert.Equal(t, 2, f.extract.Calls())
	assert.Equal(t, 1, f.refresh.Calls())
	assert.Empty(t, f.sched.Status().LastError, "the second cycle succeeded")
}

func TestRunContinuousWaitsIntervalAfterFailedCycle(t *testing.T) {
	defer goleak.VerifyNone(t)
	obs, logs := observer.New(zap.InfoLevel)
	f := newFixture(t, zap.New(obs))
	f.auth.err = errBadPassword
	f.env.Store.PutSetting(settings.RefreshIntervalHours, "6", schemas.SettingInteger)

	f.env.Clock.OnSleep = func(time.Duration) {
		if f.sched.Status().Cycles >= 2 {
			f.sched.Stop()
		}
	}
	require.NoError(t, f.sched.RunContinuous(context.Background()))

	sleeps := f.env.Clock.Sleeps()
	require.GreaterOrEqual(t, len(sleeps), 360)
	for _, d := range sleeps[:360] {
		assert.Equal(t, time.Minute, d)
	}
	assert.NotContains(t, sleeps, f.env.Bot.Config.Scheduler.Cooldown)
	assert.Equal(t, 2, f.auth.logins, "one login per refresh interval")
	assert.Zero(t, f.extract.Calls())

	st := f.sched.Status()
	assert.Equal(t, 2, st.Cycles)
	assert.Contains(t, st.LastError, "bad password")
	assert.Equal(t, 2, logs.FilterMessage("Cycle failed.").Len())
	assert.Zero(t, logs.FilterMessage("Critical error in cycle; cooling down.").Len())
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, nil)
	entered := make(chan struct{})
	f.extract.block = true
	f.extract.entered = entered

	require.NoError(t, f.sched.Start(context.Background()))
	<-entered

	assert.True(t, f.sched.Status().Running)
	assert.ErrorIs(t, f.sched.Start(context.Background()), ErrAlreadyRunning)
	assert.ErrorIs(t, f.sched.RunContinuous(context.Background()), ErrAlreadyRunning)

	f.sched.Stop()
	f.sched.Wait()

	st := f.sched.Status()
	assert.False(t, st.Running)
	assert.Equal(t, 1, st.Cycles)

	// Stopping twice or waiting again is harmless.
	f.sched.Stop()
	f.sched.Wait()
}
