// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/auth"
	"github.com/xkilldash9x/listing-refresher/internal/config"
	"github.com/xkilldash9x/listing-refresher/internal/core"
	"github.com/xkilldash9x/listing-refresher/internal/driver"
	"github.com/xkilldash9x/listing-refresher/internal/listing"
	"github.com/xkilldash9x/listing-refresher/internal/locator"
	"github.com/xkilldash9x/listing-refresher/internal/refresh"
	"github.com/xkilldash9x/listing-refresher/internal/scheduler"
	"github.com/xkilldash9x/listing-refresher/internal/settings"
	"github.com/xkilldash9x/listing-refresher/internal/store"
)

// ComponentFactory builds the full set of bot components. The cmd package
// depends on this interface so commands can be tested without a browser.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of ComponentFactory.
type concreteFactory struct {
	openStore StoreOpener
	launch    BrowserLauncher
}

// NewComponentFactory returns a factory backed by the real datastore and Chrome.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{openStore: store.Open, launch: LaunchChrome}
}

// Create opens the datastore, launches the browser and wires every component
// to one BotContext. On failure everything created so far is released.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	components := &Components{logger: logger}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Datastore
	repo, err := initializeStore(ctx, f.openStore, cfg.Database, logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Store = repo
	logger.Debug("Datastore initialized.", zap.String("driver", cfg.Database.Driver))

	// 2. Browser
	resolver := settings.NewResolver(repo, cfg.Settings, logger)
	page, err := f.launch(ctx, browserOptions(ctx, cfg, resolver), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to launch browser: %w", err)
		return nil, initializationErr
	}
	components.Page = page
	logger.Debug("Browser launched.")

	// 3. Shared context
	bot := core.NewBotContext(core.Deps{
		Config:     cfg,
		Logger:     logger,
		Page:       page,
		Settings:   repo,
		Listings:   repo,
		Operations: repo,
	})
	components.Bot = bot

	// 4. Components
	loc := locator.New(bot)
	drv := driver.New(bot)

	manager, err := auth.NewManager(bot, loc, drv)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize session manager: %w", err)
		return nil, initializationErr
	}
	components.Auth = manager
	components.Extractor = listing.NewExtractor(bot, loc, drv)
	components.Refresher = refresh.New(bot, loc, drv)

	account, secret := cfg.Credentials()
	components.Scheduler = scheduler.New(bot, manager, components.Extractor, components.Refresher,
		schemas.Credentials{Account: account, Secret: secret})

	logger.Info("All bot components initialized.")
	return components, nil
}
