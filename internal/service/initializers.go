// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/browser"
	"github.com/xkilldash9x/listing-refresher/internal/config"
	"github.com/xkilldash9x/listing-refresher/internal/settings"
	"github.com/xkilldash9x/listing-refresher/internal/store"
)

// Browser is the tab the bot drives plus its teardown.
type Browser interface {
	schemas.Page
	Close()
}

// StoreOpener opens, migrates and seeds the datastore.
type StoreOpener func(ctx context.Context, cfg config.DatabaseConfig, defaults []schemas.Setting, logger *zap.Logger) (store.Repository, error)

// BrowserLauncher starts a browser with the given options.
type BrowserLauncher func(ctx context.Context, opts browser.Options, logger *zap.Logger) (Browser, error)

// InitializeStore opens the configured backend with the default settings
// seeded. It is shared by the bot factory and the settings admin command.
func InitializeStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (store.Repository, error) {
	return initializeStore(ctx, store.Open, cfg, logger)
}

func initializeStore(ctx context.Context, open StoreOpener, cfg config.DatabaseConfig, logger *zap.Logger) (store.Repository, error) {
	logger.Debug("Opening datastore.", zap.String("driver", cfg.Driver))
	repo, err := open(ctx, cfg, settings.Defaults, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize datastore: %w", err)
	}
	return repo, nil
}

// LaunchChrome is the production BrowserLauncher.
func LaunchChrome(ctx context.Context, opts browser.Options, logger *zap.Logger) (Browser, error) {
	tab, err := browser.Launch(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	return tab, nil
}

// browserOptions resolves the launch options. headless_mode is a bot
// setting, so it is read through the resolver rather than the config file.
func browserOptions(ctx context.Context, cfg *config.Config, resolver *settings.Resolver) browser.Options {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	headless := resolver.Bool(ctx, settings.HeadlessMode) || cfg.Browser.Headless
	return browser.NewOptions(cfg.Browser, headless, rng)
}
