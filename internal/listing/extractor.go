// Package listing discovers the seller's listings on the marketplace selling
// page and persists them.
package listing

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/audit"
	"github.com/xkilldash9x/listing-refresher/internal/core"
	"github.com/xkilldash9x/listing-refresher/internal/driver"
	"github.com/xkilldash9x/listing-refresher/internal/locator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNavigation is returned when the selling page cannot be opened.
var ErrNavigation = errors.New("failed to open the marketplace selling page")

const (
	// AnchorXPath matches every listing link on the selling page.
	AnchorXPath = "//a[contains(@href,'/marketplace/item/')]"

	itemPathMarker  = "/marketplace/item/"
	sellingMarker   = "marketplace"
	pageSettle      = 5 * time.Second
	maxScrollRounds = 10
)

// Extractor scrapes listing cards into the ListingStore.
type Extractor struct {
	bot    *core.BotContext
	loc    *locator.Locator
	drv    *driver.Driver
	logger *zap.Logger
}

// NewExtractor returns an Extractor bound to bot.
func NewExtractor(bot *core.BotContext, loc *locator.Locator, drv *driver.Driver) *Extractor {
	return &Extractor{bot: bot, loc: loc, drv: drv, logger: bot.Logger.Named("listing")}
}

// Extract opens the selling page, scrolls until every card is loaded and
// upserts one record per listing anchor. It returns the records persisted.
// Cards that cannot be read or stored are counted as failed and skipped.
func (e *Extractor) Extract(ctx context.Context) (out []schemas.ListingRecord, err error) {
	op := e.bot.Audit.Start(ctx, schemas.OperationMarketplace, schemas.SubtypeGetListings, e.bot.OperationMeta())
	processed := 0

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listing extraction aborted: %v", r)
			e.logger.Error("Listing extraction panicked.", zap.Any("panic", r))
			op.Error(ctx, audit.Counts{Processed: processed, Successful: len(out), Failed: processed - len(out)}, err, string(debug.Stack()))
		}
	}()

	if err := e.open(ctx); err != nil {
		op.Fail(ctx, audit.Counts{}, err)
		return nil, err
	}

	rounds := e.drv.ScrollUntilStable(ctx, maxScrollRounds)
	anchors := e.loc.LocateAll(ctx, schemas.ByXPath, AnchorXPath)
	processed = len(anchors)
	e.logger.Debug("Listing anchors found.", zap.Int("anchors", processed), zap.Int("scroll_rounds", rounds))

	for i, el := range anchors {
		if ctx.Err() != nil {
			break
		}
		rec, err := e.read(ctx, el)
		if err != nil {
			e.logger.Debug("Skipping listing card.", zap.Int("index", i), zap.Error(err))
			continue
		}
		if err := e.bot.Listings.UpsertListing(ctx, rec); err != nil {
			e.logger.Warn("Failed to store listing.", zap.String("item_id", rec.ItemID), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}

	counts := audit.Counts{Processed: processed, Successful: len(out), Failed: processed - len(out)}
	if err := ctx.Err(); err != nil {
		op.Fail(ctx, counts, err)
		return out, err
	}
	op.Complete(ctx, counts)
	e.logger.Info("Listings extracted.", zap.Int("found", processed), zap.Int("stored", len(out)))
	return out, nil
}

func (e *Extractor) open(ctx context.Context) error {
	url := e.bot.Config.Marketplace.SellingURL
	if !e.drv.Navigate(ctx, url) {
		return ErrNavigation
	}
	if err := e.drv.Sleep(ctx, pageSettle); err != nil {
		return err
	}

	current, err := e.bot.Page.URL(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNavigation, err)
	}
	if !strings.Contains(current, sellingMarker) {
		e.logger.Error("Marketplace is not reachable.", zap.String("url", current))
		return fmt.Errorf("%w: landed on %s", ErrNavigation, current)
	}
	return nil
}

// read turns one anchor into a record without touching the store.
func (e *Extractor) read(ctx context.Context, el schemas.Element) (schemas.ListingRecord, error) {
	href, err := el.Property(ctx, "href")
	if err != nil {
		return schemas.ListingRecord{}, fmt.Errorf("failed to read href: %w", err)
	}
	if !strings.Contains(href, itemPathMarker) {
		return schemas.ListingRecord{}, fmt.Errorf("not a listing link: %q", href)
	}

	outer, err := el.OuterHTML(ctx)
	if err != nil {
		return schemas.ListingRecord{}, fmt.Errorf("failed to read card markup: %w", err)
	}
	text, err := el.Text(ctx)
	if err != nil {
		return schemas.ListingRecord{}, fmt.Errorf("failed to read card text: %w", err)
	}

	card := ParseCard(href, outer)
	meta, err := json.Marshal(schemas.ListingMetadata{
		URL:         href,
		ScrapedAt:   e.bot.Clock.Now().UTC(),
		ElementText: truncate(text, maxElementTextRunes),
	})
	if err != nil {
		return schemas.ListingRecord{}, fmt.Errorf("failed to encode metadata: %w", err)
	}

	return schemas.ListingRecord{
		ItemID:   card.ItemID,
		URL:      href,
		Title:    card.Title,
		Price:    card.Price,
		Location: card.Location,
		Status:   schemas.ListingActive,
		Metadata: meta,
	}, nil
}
