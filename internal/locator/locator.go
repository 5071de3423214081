// Package locator finds elements on a front end whose markup changes without
// notice. Lookups poll until a deadline and report absence as false, never
// as an error.
package locator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/core"
	"github.com/xkilldash9x/listing-refresher/internal/settings"
)

// PollInterval is the fixed gap between probes.
const PollInterval = 500 * time.Millisecond

// Target is one strategy/value pair.
type Target struct {
	Strategy schemas.Strategy
	Value    string
}

// Locator resolves Targets against the bot's page.
type Locator struct {
	bot    *core.BotContext
	logger *zap.Logger
}

// New returns a Locator bound to bot.Page.
func New(bot *core.BotContext) *Locator {
	return &Locator{bot: bot, logger: bot.Logger.Named("locator")}
}

// Locate waits up to timeout for an element matching strategy/value and
// returns the first one. A zero timeout uses the implicit_wait_time setting.
func (l *Locator) Locate(ctx context.Context, strategy schemas.Strategy, value string, timeout time.Duration) (schemas.Element, bool) {
	if timeout <= 0 {
		timeout = l.bot.Settings.Seconds(ctx, settings.ImplicitWaitTime)
	}
	clock := l.bot.Clock
	deadline := clock.Now().Add(timeout)

	for {
		if el, ok := l.probe(ctx, strategy, value); ok {
			return el, true
		}

		remaining := deadline.Sub(clock.Now())
		if remaining <= 0 || ctx.Err() != nil {
			break
		}
		if err := clock.Sleep(ctx, min(PollInterval, remaining)); err != nil {
			break
		}
	}

	l.logger.Debug("Element not found.",
		zap.String("strategy", string(strategy)),
		zap.String("value", value),
		zap.Duration("timeout", timeout),
	)
	return nil, false
}

// LocateAny tries each target in order with the same timeout and returns the
// first hit.
func (l *Locator) LocateAny(ctx context.Context, timeout time.Duration, targets ...Target) (schemas.Element, bool) {
	for _, t := range targets {
		if el, ok := l.Locate(ctx, t.Strategy, t.Value, timeout); ok {
			return el, true
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, false
}

// LocateAll probes once and returns every current match.
func (l *Locator) LocateAll(ctx context.Context, strategy schemas.Strategy, value string) []schemas.Element {
	elems, err := l.bot.Page.FindAll(ctx, strategy, value)
	if err != nil {
		l.logger.Debug("Probe failed.",
			zap.String("strategy", string(strategy)),
			zap.String("value", value),
			zap.Error(err),
		)
		return nil
	}
	return elems
}

func (l *Locator) probe(ctx context.Context, strategy schemas.Strategy, value string) (schemas.Element, bool) {
	elems := l.LocateAll(ctx, strategy, value)
	if len(elems) == 0 {
		return nil, false
	}
	return elems[0], true
}
