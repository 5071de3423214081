// Package coretest builds BotContexts wired to in-memory fakes.
package coretest

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/listing-refresher/internal/browser/browsertest"
	"github.com/xkilldash9x/listing-refresher/internal/config"
	"github.com/xkilldash9x/listing-refresher/internal/core"
	"github.com/xkilldash9x/listing-refresher/internal/store/storetest"
)

// FakeClock advances only when slept on. It never blocks.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration

	// OnSleep runs after each sleep is recorded, under no lock.
	OnSleep func(d time.Duration)
}

var _ core.Clock = (*FakeClock)(nil)

// NewFakeClock starts at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	hook := c.OnSleep
	c.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

// Advance moves the clock forward without recording a sleep.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns every requested sleep in order.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// Slept returns the sum of every requested sleep.
func (c *FakeClock) Slept() time.Duration {
	var total time.Duration
	for _, d := range c.Sleeps() {
		total += d
	}
	return total
}

// Env is a BotContext and the fakes behind it.
type Env struct {
	Bot   *core.BotContext
	Page  *browsertest.Page
	Store *storetest.Memory
	Clock *FakeClock
}

// Epoch is the fake clock's starting instant.
var Epoch = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

// New returns an Env with default configuration and a test logger. mutate,
// when non-nil, adjusts the config before the context is built.
func New(t testing.TB, mutate func(*config.Config)) *Env {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Screenshot.Dir = t.TempDir()
	cfg.Auth.CookieDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	page := browsertest.NewPage()
	mem := storetest.NewMemory()
	clock := NewFakeClock(Epoch)
	mem.Now = clock.Now

	bot := core.NewBotContext(core.Deps{
		Config:     cfg,
		Logger:     zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel)),
		Page:       page,
		Settings:   mem,
		Listings:   mem,
		Operations: mem,
		Clock:      clock,
		Seed:       42,
	})
	return &Env{Bot: bot, Page: page, Store: mem, Clock: clock}
}
