// File: internal/service/components.go
package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/listing-refresher/internal/auth"
	"github.com/xkilldash9x/listing-refresher/internal/core"
	"github.com/xkilldash9x/listing-refresher/internal/listing"
	"github.com/xkilldash9x/listing-refresher/internal/refresh"
	"github.com/xkilldash9x/listing-refresher/internal/scheduler"
	"github.com/xkilldash9x/listing-refresher/internal/store"
)

// Components holds everything one bot process runs: the datastore, the
// browser tab and the components driving it.
type Components struct {
	Store     store.Repository
	Page      Browser
	Bot       *core.BotContext
	Auth      *auth.Manager
	Extractor *listing.Extractor
	Refresher *refresh.Refresher
	Scheduler *scheduler.Scheduler

	logger *zap.Logger
}

// schedulerStopTimeout bounds how long Shutdown waits for a running cycle to
// notice the stop before the browser is torn down under it.
const schedulerStopTimeout = 30 * time.Second

// Shutdown releases every component in reverse dependency order: the
// scheduler first so no cycle is mid-flight, then the browser, then the
// datastore. It tolerates partially built Components.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	if c.Scheduler != nil {
		c.Scheduler.Stop()
		done := make(chan struct{})
		go func() {
			c.Scheduler.Wait()
			close(done)
		}()
		select {
		case <-done:
			logger.Debug("Scheduler stopped.")
		case <-time.After(schedulerStopTimeout):
			logger.Warn("Timed out waiting for the scheduler to stop.")
		}
	}

	if c.Page != nil {
		c.Page.Close()
		logger.Debug("Browser closed.")
	}

	if c.Store != nil {
		c.Store.Close()
		logger.Debug("Datastore closed.")
	}

	logger.Info("All bot components shut down.")
}
