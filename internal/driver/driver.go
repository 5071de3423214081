// Package driver performs the page-level interactions the bot is built from:
// navigation, resilient clicks, infinite-scroll settling and failure
// screenshots. Every operation reports success as a bool; transient browser
// errors are logged and absorbed here.
package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/core"
	"github.com/xkilldash9x/listing-refresher/internal/settings"
)

const (
	// DefaultClickAttempts applies when a caller passes maxAttempts <= 0.
	DefaultClickAttempts = 3
	// DefaultScrollRounds applies when a caller passes maxRounds <= 0.
	DefaultScrollRounds = 10

	clickSettle  = 500 * time.Millisecond
	clickBackoff = time.Second
	scrollSettle = 2 * time.Second

	screenshotStamp = "20060102_150405"
)

// Driver wraps the bot's page with bounded, retrying interactions.
type Driver struct {
	bot    *core.BotContext
	logger *zap.Logger
}

// New returns a Driver bound to bot.Page.
func New(bot *core.BotContext) *Driver {
	return &Driver{bot: bot, logger: bot.Logger.Named("driver")}
}

// Navigate loads url within the page_load_timeout setting.
func (d *Driver) Navigate(ctx context.Context, url string) bool {
	timeout := d.bot.Settings.Seconds(ctx, settings.PageLoadTimeout)
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := d.bot.Page.Navigate(navCtx, url); err != nil {
		d.logger.Warn("Navigation failed.", zap.String("url", url), zap.Duration("timeout", timeout), zap.Error(err))
		return false
	}
	return true
}

// Click scrolls el to the viewport center, lets it settle and clicks,
// retrying up to maxAttempts times.
func (d *Driver) Click(ctx context.Context, el schemas.Element, maxAttempts int) bool {
	if el == nil {
		return false
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultClickAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := d.clickOnce(ctx, el)
		if err == nil {
			return true
		}
		d.logger.Debug("Click attempt failed.", zap.Int("attempt", attempt), zap.Error(err))

		if attempt < maxAttempts {
			if d.Sleep(ctx, clickBackoff) != nil {
				return false
			}
		}
	}
	return false
}

func (d *Driver) clickOnce(ctx context.Context, el schemas.Element) error {
	if err := el.ScrollIntoView(ctx); err != nil {
		return fmt.Errorf("failed to scroll element into view: %w", err)
	}
	if err := d.Sleep(ctx, clickSettle); err != nil {
		return err
	}
	return el.Click(ctx)
}

// ScrollUntilStable scrolls to the bottom until two consecutive height
// readings match or maxRounds scrolls have been made. It returns the number
// of scrolls performed.
func (d *Driver) ScrollUntilStable(ctx context.Context, maxRounds int) int {
	if maxRounds <= 0 {
		maxRounds = DefaultScrollRounds
	}

	last, err := d.bot.Page.ScrollHeight(ctx)
	if err != nil {
		d.logger.Debug("Could not read page height.", zap.Error(err))
		return 0
	}

	rounds := 0
	for rounds < maxRounds {
		if err := d.bot.Page.ScrollToBottom(ctx); err != nil {
			d.logger.Debug("Scroll failed.", zap.Int("round", rounds+1), zap.Error(err))
			break
		}
		rounds++

		if d.Sleep(ctx, scrollSettle) != nil {
			break
		}
		height, err := d.bot.Page.ScrollHeight(ctx)
		if err != nil {
			d.logger.Debug("Could not read page height.", zap.Error(err))
			break
		}
		if height == last {
			break
		}
		last = height
	}

	d.logger.Debug("Scrolling settled.", zap.Int("rounds", rounds), zap.Int64("height", last))
	return rounds
}

// ScreenshotOnFailure saves the viewport as <dir>/<prefix>_YYYYMMDD_HHMMSS.png
// when the screenshot_on_error setting is on. It returns the path written,
// or "".
func (d *Driver) ScreenshotOnFailure(ctx context.Context, prefix string) string {
	if !d.bot.Settings.Bool(ctx, settings.ScreenshotOnError) {
		return ""
	}

	dir, err := homedir.Expand(d.bot.Config.Screenshot.Dir)
	if err != nil {
		d.logger.Error("Invalid screenshot directory.", zap.String("dir", d.bot.Config.Screenshot.Dir), zap.Error(err))
		return ""
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.logger.Error("Failed to create screenshot directory.", zap.String("dir", dir), zap.Error(err))
		return ""
	}

	shot, err := d.bot.Page.Screenshot(ctx)
	if err != nil {
		d.logger.Error("Failed to capture screenshot.", zap.Error(err))
		return ""
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", prefix, d.bot.Clock.Now().Format(screenshotStamp)))
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		d.logger.Error("Failed to write screenshot.", zap.String("path", path), zap.Error(err))
		return ""
	}

	d.logger.Info("Screenshot saved.", zap.String("path", path))
	return path
}

// Sleep waits d on the bot clock, returning early with ctx's error.
func (d *Driver) Sleep(ctx context.Context, dur time.Duration) error {
	return d.bot.Clock.Sleep(ctx, dur)
}
