// Package scheduler runs bot cycles (login, extract, refresh) once or on a
// fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/core"
	"github.com/xkilldash9x/listing-refresher/internal/settings"
)

var (
	// ErrAlreadyRunning is returned when continuous mode is started twice.
	ErrAlreadyRunning = errors.New("scheduler is already running")
	// ErrLoginDisabled is returned by a cycle that has no live session while
	// auto_login_enabled is off.
	ErrLoginDisabled = errors.New("automatic login is disabled and no session is active")
)

const budgetWindow = 24 * time.Hour

// -- Collaborators --

// Authenticator establishes the session a cycle runs under.
type Authenticator interface {
	Login(ctx context.Context, creds schemas.Credentials) (*schemas.Session, error)
	ActiveSession(account string) (*schemas.Session, bool)
}

// Extractor lists and stores the seller's listings.
type Extractor interface {
	Extract(ctx context.Context) ([]schemas.ListingRecord, error)
}

// Refresher runs the edit/save pass.
type Refresher interface {
	RefreshAll(ctx context.Context, listings []schemas.ListingRecord) (success, total int)
}

// CycleResult summarises one cycle.
type CycleResult struct {
	Listings  int `json:"listings"`
	Refreshed int `json:"refreshed"`
	Attempted int `json:"attempted"`
	// Skipped names why the refresh pass did not run, if it did not.
	Skipped string `json:"skipped,omitempty"`
}

// Status is a point-in-time view of the continuous loop.
type Status struct {
	Running     bool         `json:"running"`
	Cycles      int          `json:"cycles"`
	LastCycleAt *time.Time   `json:"last_cycle_at,omitempty"`
	LastResult  *CycleResult `json:"last_result,omitempty"`
	LastError   string       `json:"last_error,omitempty"`
	NextCycleAt *time.Time   `json:"next_cycle_at,omitempty"`
}

// Scheduler owns the bot's cycle loop. Its exported methods are safe for
// concurrent use; cycles themselves never overlap.
type Scheduler struct {
	bot     *core.BotContext
	auth    Authenticator
	extract Extractor
	refresh Refresher
	creds   schemas.Credentials
	logger  *zap.Logger

	cycleMu sync.Mutex

	budgetMu  sync.Mutex
	budget    *rate.Limiter
	budgetMax int

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Scheduler running cycles for creds.
func New(bot *core.BotContext, auth Authenticator, extract Extractor, refresh Refresher, creds schemas.Credentials) *Scheduler {
	return &Scheduler{
		bot:     bot,
		auth:    auth,
		extract: extract,
		refresh: refresh,
		creds:   creds,
		logger:  bot.Logger.Named("scheduler"),
	}
}

// RunCycle performs login, extraction and, when enabled and within the
// daily budget, the refresh pass. A login failure aborts the cycle.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	var res CycleResult
	s.logger.Info("Starting bot cycle.")

	if err := s.login(ctx); err != nil {
		s.logger.Error("Login failed; stopping cycle.", zap.Error(err))
		return res, err
	}

	listings, err := s.extract.Extract(ctx)
	res.Listings = len(listings)
	if err != nil {
		return res, fmt.Errorf("failed to extract listings: %w", err)
	}
	if len(listings) == 0 {
		s.logger.Warn("No listings found.")
		return res, nil
	}

	if !s.bot.Settings.Bool(ctx, settings.AutoRefreshEnabled) {
		res.Skipped = "auto refresh disabled"
		s.logger.Info("Skipping refresh pass.", zap.String("reason", res.Skipped))
		return res, nil
	}
	if !s.allowRefresh(ctx) {
		res.Skipped = "daily refresh budget exhausted"
		s.logger.Info("Skipping refresh pass.", zap.String("reason", res.Skipped))
		return res, nil
	}

	res.Refreshed, res.Attempted = s.refresh.RefreshAll(ctx, listings)
	s.logger.Info("Bot cycle completed.", zap.Int("refreshed", res.Refreshed), zap.Int("total", res.Attempted))
	return res, nil
}

func (s *Scheduler) login(ctx context.Context) error {
	if s.bot.Settings.Bool(ctx, settings.AutoLoginEnabled) {
		if _, err := s.auth.Login(ctx, s.creds); err != nil {
			return fmt.Errorf("failed to log in: %w", err)
		}
		return nil
	}
	if _, ok := s.auth.ActiveSession(s.creds.Account); ok {
		return nil
	}
	return ErrLoginDisabled
}

// allowRefresh spends one token of the daily budget. The bucket holds
// max_refresh_per_day tokens and refills evenly over 24 hours; it is rebuilt
// when the setting changes.
func (s *Scheduler) allowRefresh(ctx context.Context) bool {
	perDay := s.bot.Settings.Int(ctx, settings.MaxRefreshPerDay)
	if perDay <= 0 {
		return false
	}

	s.budgetMu.Lock()
	defer s.budgetMu.Unlock()
	now := s.bot.Clock.Now()
	if s.budget == nil || s.budgetMax != perDay {
		s.budget = rate.NewLimiter(rate.Every(budgetWindow/time.Duration(perDay)), perDay)
		s.budgetMax = perDay
	}
	return s.budget.AllowN(now, 1)
}

// Start runs the continuous loop in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	runCtx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	go s.loop(runCtx)
	return nil
}

// RunContinuous runs cycles until ctx is done or Stop is called.
func (s *Scheduler) RunContinuous(ctx context.Context) error {
	runCtx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	s.loop(runCtx)
	return nil
}

func (s *Scheduler) begin(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Running {
		return nil, ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.status.Running = true
	return runCtx, nil
}

// Stop ends the continuous loop. It does not wait; use Wait for that.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.logger.Info("Stopping scheduler.")
		s.cancel()
	}
}

// Wait blocks until the continuous loop has returned.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Status reports the loop's state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	if st.LastResult != nil {
		r := *st.LastResult
		st.LastResult = &r
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.status.Running = false
		s.status.NextCycleAt = nil
		s.cancel()
		s.cancel = nil
		close(s.done)
		s.mu.Unlock()
		s.logger.Info("Continuous operation stopped.")
	}()

	s.logger.Info("Starting continuous operation.")
	for cycle := 1; ctx.Err() == nil; cycle++ {
		s.logger.Info("Starting cycle.", zap.Int("cycle", cycle))
		res, faulted, err := s.safeCycle(ctx)
		s.record(res, err)
		if ctx.Err() != nil {
			return
		}

		if faulted {
			s.logger.Error("Critical error in cycle; cooling down.",
				zap.Int("cycle", cycle),
				zap.Duration("cooldown", s.bot.Config.Scheduler.Cooldown),
				zap.Error(err),
			)
			s.setNext(s.bot.Config.Scheduler.Cooldown)
			if s.bot.Clock.Sleep(ctx, s.bot.Config.Scheduler.Cooldown) != nil {
				return
			}
			continue
		}

		if err != nil {
			s.logger.Error("Cycle failed.", zap.Int("cycle", cycle), zap.Error(err))
		} else {
			s.logger.Info("Cycle completed.", zap.Int("cycle", cycle))
		}
		if s.waitInterval(ctx) != nil {
			return
		}
	}
}

// safeCycle runs one cycle, converting a panic into an error. faulted is set
// only for a panic; an ordinary cycle error leaves it false.
func (s *Scheduler) safeCycle(ctx context.Context) (res CycleResult, faulted bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cycle panicked: %v", p)
			faulted = true
			s.logger.Error("Cycle panicked.", zap.Any("panic", p), zap.String("stack", string(debug.Stack())))
		}
	}()
	res, err = s.RunCycle(ctx)
	return res, false, err
}

func (s *Scheduler) record(res CycleResult, err error) {
	now := s.bot.Clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Cycles++
	s.status.LastCycleAt = &now
	s.status.LastResult = &res
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
}

func (s *Scheduler) setNext(in time.Duration) {
	next := s.bot.Clock.Now().Add(in)
	s.mu.Lock()
	s.status.NextCycleAt = &next
	s.mu.Unlock()
}

// waitInterval sleeps refresh_interval_hours in scheduler.tick steps so a
// stop is noticed within one tick, logging the hours left on each whole hour.
func (s *Scheduler) waitInterval(ctx context.Context) error {
	interval := s.bot.Settings.Hours(ctx, settings.RefreshIntervalHours)
	tick := s.bot.Config.Scheduler.Tick
	if tick <= 0 {
		tick = time.Minute
	}
	s.setNext(interval)
	s.logger.Info("Next cycle scheduled.", zap.Time("at", s.bot.Clock.Now().Add(interval)))

	for remaining := interval; remaining > 0; {
		if remaining%time.Hour == 0 {
			s.logger.Info("Waiting for next cycle.", zap.Int("hours_remaining", int(remaining/time.Hour)))
		}
		step := min(tick, remaining)
		if err := s.bot.Clock.Sleep(ctx, step); err != nil {
			return err
		}
		remaining -= step
	}
	return nil
}
