package main

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/redecaete/matupiri/internal/account"
	"github.com/redecaete/matupiri/internal/analytics"
	"github.com/redecaete/matupiri/internal/catalog"
	"github.com/redecaete/matupiri/internal/config"
	"github.com/redecaete/matupiri/internal/geo"
	"github.com/redecaete/matupiri/internal/rules"
)

// appEnv holds the stores and read-only data the commands run against.
type appEnv struct {
	Catalog  *catalog.Catalog
	Rules    *rules.Map
	Schema   map[string]rules.FieldSpec
	Events   analytics.Store
	Accounts *account.Store
	Resolver *geo.Resolver
}

func (e *appEnv) Close() {
	if e.Events != nil {
		_ = e.Events.Close()
	}
	if e.Accounts != nil {
		_ = e.Accounts.Close()
	}
}

// openEvents opens the analytics event store for the configured driver.
func openEvents(ctx context.Context, cfg *config.Config) (analytics.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return analytics.NewSQLite(cfg.Store.Path)
	case "postgres":
		return analytics.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initApp loads everything the serve command needs. The catalogue, rule map,
// and geo reference are read once and stay immutable for the process.
func initApp(ctx context.Context) (*appEnv, error) {
	env := &appEnv{}

	cat, err := catalog.LoadXLSX(cfg.Catalog.XLSXPath)
	if err != nil {
		return nil, err
	}
	env.Catalog = cat

	ruleMap, err := rules.LoadKeywordMap(cfg.Catalog.KeywordMapPath)
	if err != nil {
		return nil, err
	}
	env.Rules = ruleMap

	schema, err := rules.LoadProfileSchema(cfg.Catalog.SchemaPath)
	if err != nil {
		return nil, err
	}
	env.Schema = schema

	env.Events, err = openEvents(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := env.Events.Migrate(ctx); err != nil {
		env.Close()
		return nil, err
	}

	env.Accounts, err = account.NewStore(cfg.Accounts.Path)
	if err != nil {
		env.Close()
		return nil, err
	}
	if err := env.Accounts.Migrate(ctx); err != nil {
		env.Close()
		return nil, err
	}

	// Missing geo reference degrades to "no map available", never an error.
	ref, err := geo.LoadReference(ctx,
		filepath.Join(cfg.Geo.Dir, cfg.Geo.UFsFile),
		filepath.Join(cfg.Geo.Dir, cfg.Geo.MunicipiosFile))
	if err != nil {
		zap.L().Warn("geo reference unavailable, heat map disabled", zap.Error(err))
	} else {
		env.Resolver = geo.NewResolver(ref)
	}

	zap.L().Info("application loaded",
		zap.Int("policies", env.Catalog.Len()),
		zap.Int("rules", env.Rules.Len()),
		zap.Bool("geo", env.Resolver != nil),
	)
	return env, nil
}
