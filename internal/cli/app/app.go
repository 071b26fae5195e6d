// Package app wires the SDK, its sealed sqlite store and the presence
// oracle into the CLI commands.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/bouncer/pkg/bouncer"
	"github.com/aussiebroadwan/bouncer/pkg/cryptox"
	"github.com/aussiebroadwan/bouncer/pkg/presence"
	"github.com/aussiebroadwan/bouncer/pkg/securestore/sqlite"
	"github.com/aussiebroadwan/bouncer/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// App holds the wired dependencies behind the CLI commands.
type App struct {
	cfg  Config
	bcfg bouncer.Config

	logger     *slog.Logger
	httpClient *http.Client

	store   *sqlite.Store
	watcher *presence.Watcher
	client  *bouncer.Client
}

// New resolves endpoints (discovering from the issuer when needed), opens
// the sealed store and builds the SDK client.
func New(ctx context.Context, cfg Config) (*App, error) {
	a := &App{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "bouncer",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}

	if err := a.initStore(); err != nil {
		return nil, err
	}

	bcfg := bouncer.Config{
		Issuer:                cfg.Issuer,
		ClientID:              cfg.ClientID,
		RedirectURI:           cfg.RedirectURI(),
		AuthorizationEndpoint: cfg.AuthorizationEndpoint,
		TokenEndpoint:         cfg.TokenEndpoint,
		JWKSURI:               cfg.JWKSURI,
		Scopes:                cfg.Scopes,
		HTTPTimeout:           cfg.HTTPTimeout,
	}
	if bcfg.Issuer != "" && (bcfg.AuthorizationEndpoint == "" || bcfg.TokenEndpoint == "" || bcfg.JWKSURI == "") {
		if err := bcfg.Discover(ctx, a.httpClient); err != nil {
			_ = a.store.Close()
			return nil, fmt.Errorf("failed to discover provider: %w", err)
		}
		a.logger.Debug("provider discovered",
			"issuer", bcfg.Issuer,
			"token_endpoint", bcfg.TokenEndpoint,
		)
	}
	a.bcfg = bcfg

	opts := []bouncer.ClientOption{bouncer.WithLogger(a.logger)}
	if cfg.PresenceDir != "" {
		watcher, err := presence.NewWatcher(cfg.PresenceDir, a.logger)
		if err != nil {
			_ = a.store.Close()
			return nil, fmt.Errorf("failed to watch presence dir: %w", err)
		}
		watcher.Start()
		a.watcher = watcher
		opts = append(opts, bouncer.WithSessionOracle(watcher))
	}

	client, err := bouncer.New(bcfg, a.store, opts...)
	if err != nil {
		a.closeInfra()
		return nil, err
	}
	a.client = client

	return a, nil
}

// Close releases the watcher and the store.
func (a *App) Close() error {
	a.closeInfra()
	return nil
}

func (a *App) closeInfra() {
	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("error closing store", "error", err)
		}
		a.store = nil
	}
}

// initStore opens the sqlite store sealed with the local master key,
// creating the key on first run.
func (a *App) initStore() error {
	masterKey, err := cryptox.LoadOrCreateMasterKey(a.cfg.MasterKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load master key: %w", err)
	}
	sealer, err := cryptox.NewSealer(masterKey)
	if err != nil {
		return fmt.Errorf("failed to build sealer: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", a.cfg.DatabaseFile)
	store, err := sqlite.NewStore(dsn, sealer)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	if err := store.ApplyMigrations(); err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to apply store migrations: %w", err)
	}

	a.store = store
	return nil
}
