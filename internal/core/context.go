// Package core holds the dependency context shared by the bot's components.
package core

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/audit"
	"github.com/xkilldash9x/listing-refresher/internal/config"
	"github.com/xkilldash9x/listing-refresher/internal/settings"
)

// BotContext carries the services every component needs. It is built once
// per browser and passed explicitly to each constructor.
type BotContext struct {
	Config     *config.Config
	Logger     *zap.Logger
	Page       schemas.Page
	Settings   *settings.Resolver
	Listings   schemas.ListingStore
	Operations schemas.OperationLog
	Audit      *audit.Recorder
	Clock      Clock

	mu        sync.Mutex
	rng       *rand.Rand
	sessionID string
}

// Deps are the inputs to NewBotContext.
type Deps struct {
	Config     *config.Config
	Logger     *zap.Logger
	Page       schemas.Page
	Settings   schemas.SettingsSource
	Listings   schemas.ListingStore
	Operations schemas.OperationLog
	// Clock defaults to the wall clock.
	Clock Clock
	// Seed fixes the jitter sequence; zero seeds from the clock.
	Seed int64
}

// NewBotContext assembles a BotContext from its dependencies.
func NewBotContext(d Deps) *BotContext {
	if d.Config == nil {
		d.Config = config.NewDefaultConfig()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = RealClock{}
	}
	seed := d.Seed
	if seed == 0 {
		seed = d.Clock.Now().UnixNano()
	}

	return &BotContext{
		Config:     d.Config,
		Logger:     d.Logger,
		Page:       d.Page,
		Settings:   settings.NewResolver(d.Settings, d.Config.Settings, d.Logger),
		Listings:   d.Listings,
		Operations: d.Operations,
		Audit:      audit.NewRecorder(d.Operations, d.Clock.Now, d.Logger),
		Clock:      d.Clock,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Uniform returns a duration drawn uniformly from [lo, hi].
func (bc *BotContext) Uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return lo + time.Duration(bc.rng.Int63n(int64(hi-lo)+1))
}

// SetBrowserSession records the id of the authenticated session, stamped on
// subsequent operation records.
func (bc *BotContext) SetBrowserSession(id string) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.sessionID = id
}

// OperationMeta returns the browser context for a new operation record.
func (bc *BotContext) OperationMeta() audit.Meta {
	bc.mu.Lock()
	id := bc.sessionID
	bc.mu.Unlock()

	meta := audit.Meta{BrowserSessionID: id}
	if bc.Page != nil {
		meta.UserAgent = bc.Page.UserAgent()
	}
	return meta
}
