// Package refresh runs the edit-then-save pass over stored listings.
package refresh

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/audit"
	"github.com/xkilldash9x/listing-refresher/internal/core"
	"github.com/xkilldash9x/listing-refresher/internal/driver"
	"github.com/xkilldash9x/listing-refresher/internal/locator"
)

const (
	listingSettle = 5 * time.Second
	editSettle    = 3 * time.Second
	saveSettle    = 5 * time.Second

	// ScreenshotPrefix names the capture taken when a listing fails.
	ScreenshotPrefix = "refresh_failed"
)

// Button targets, tried in order.
var (
	EditTargets = []locator.Target{
		{Strategy: schemas.ByExactText, Value: "Edit"},
		{Strategy: schemas.ByPartialText, Value: "Edit"},
	}
	SaveTargets = []locator.Target{
		{Strategy: schemas.ByExactText, Value: "Save"},
		{Strategy: schemas.ByPartialText, Value: "Save"},
	}
)

// Refresher drives the edit/save cycle one listing at a time.
type Refresher struct {
	bot    *core.BotContext
	loc    *locator.Locator
	drv    *driver.Driver
	logger *zap.Logger
}

// New returns a Refresher bound to bot.
func New(bot *core.BotContext, loc *locator.Locator, drv *driver.Driver) *Refresher {
	return &Refresher{bot: bot, loc: loc, drv: drv, logger: bot.Logger.Named("refresh")}
}

// RefreshAll refreshes each listing in order and records the outcome of
// each on its row. Cancellation is checked between items; items not reached
// count as processed and unsuccessful.
func (r *Refresher) RefreshAll(ctx context.Context, listings []schemas.ListingRecord) (success, total int) {
	total = len(listings)
	op := r.bot.Audit.Start(ctx, schemas.OperationMarketplace, schemas.SubtypeRefreshListings, r.bot.OperationMeta())

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("refresh pass aborted: %v", p)
			r.logger.Error("Refresh pass panicked.", zap.Any("panic", p))
			op.Error(ctx, audit.Counts{Processed: total, Successful: success, Failed: total - success}, err, string(debug.Stack()))
		}
	}()

	for i, rec := range listings {
		if ctx.Err() != nil {
			r.logger.Info("Refresh pass interrupted.", zap.Int("remaining", total-i))
			break
		}

		log := r.logger.With(zap.String("item_id", rec.ItemID))
		if r.RefreshListing(ctx, rec) {
			success++
			if err := r.bot.Listings.MarkRefreshed(ctx, rec.ItemID, r.bot.Clock.Now()); err != nil {
				log.Warn("Failed to record refresh.", zap.Error(err))
			}
		} else if err := r.bot.Listings.MarkRefreshFailed(ctx, rec.ItemID); err != nil {
			log.Warn("Failed to record refresh failure.", zap.Error(err))
		}

		if i < total-1 {
			delay := r.bot.Uniform(r.bot.Config.Refresh.JitterMin, r.bot.Config.Refresh.JitterMax)
			if r.drv.Sleep(ctx, delay) != nil {
				break
			}
		}
	}

	counts := audit.Counts{Processed: total, Successful: success, Failed: total - success}
	if err := ctx.Err(); err != nil {
		op.Fail(ctx, counts, err)
	} else {
		op.Complete(ctx, counts)
	}
	r.logger.Info("Refresh pass finished.", zap.Int("refreshed", success), zap.Int("total", total))
	return success, total
}

// RefreshListing opens the listing, clicks Edit and then Save. Both clicks
// must succeed.
func (r *Refresher) RefreshListing(ctx context.Context, rec schemas.ListingRecord) bool {
	log := r.logger.With(zap.String("item_id", rec.ItemID))
	log.Info("Refreshing listing.")

	ok := r.editAndSave(ctx, rec.URL, log)
	if !ok {
		log.Warn("Could not refresh listing.")
		if ctx.Err() == nil {
			r.drv.ScreenshotOnFailure(ctx, ScreenshotPrefix)
		}
		return false
	}
	log.Info("Listing refreshed.")
	return true
}

func (r *Refresher) editAndSave(ctx context.Context, url string, log *zap.Logger) bool {
	if !r.drv.Navigate(ctx, url) {
		return false
	}
	if r.drv.Sleep(ctx, listingSettle) != nil {
		return false
	}

	attempts := r.bot.Config.Refresh.ClickAttempts
	steps := []struct {
		name    string
		targets []locator.Target
		settle  time.Duration
	}{
		{"edit", EditTargets, editSettle},
		{"save", SaveTargets, saveSettle},
	}
	for _, step := range steps {
		button, found := r.loc.LocateAny(ctx, 0, step.targets...)
		if !found {
			log.Debug("Button not found.", zap.String("button", step.name))
			return false
		}
		if !r.drv.Click(ctx, button, attempts) {
			log.Debug("Button click failed.", zap.String("button", step.name))
			return false
		}
		if r.drv.Sleep(ctx, step.settle) != nil {
			return false
		}
	}
	return true
}
