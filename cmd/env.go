package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-cli/internal/consolidate"
	"github.com/sells-group/catalog-cli/internal/facet"
	"github.com/sells-group/catalog-cli/internal/feed"
	"github.com/sells-group/catalog-cli/internal/match"
	"github.com/sells-group/catalog-cli/internal/rules"
	"github.com/sells-group/catalog-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "catalog.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initMatchers builds the brand and category matchers from the built-in alias
// tables, extended by the configured alias file when one is set.
func initMatchers() (brands, categories *match.Matcher, err error) {
	brandTable := match.DefaultBrandAliases()
	categoryTable := match.DefaultCategoryAliases()
	if cfg.Aliases.Path != "" {
		brandTable, categoryTable, err = match.LoadAliasFile(cfg.Aliases.Path)
		if err != nil {
			return nil, nil, err
		}
	}
	return match.NewMatcher(brandTable), match.NewCategoryMatcher(categoryTable), nil
}

func initEngine(st store.Store) (*consolidate.Engine, error) {
	brands, categories, err := initMatchers()
	if err != nil {
		return nil, err
	}
	return consolidate.New(st,
		rules.NewFilterEngine(brands, categories),
		rules.NewPricingEngine(brands, categories),
		brands, categories,
		consolidate.Options{
			PageSize:  cfg.Consolidation.PageSize,
			ChunkSize: cfg.Consolidation.ChunkSize,
		}), nil
}

func initFacets() (*facet.Calculator, error) {
	brands, categories, err := initMatchers()
	if err != nil {
		return nil, err
	}
	return facet.NewCalculator(brands, categories), nil
}

func initImporter(st store.Store) *feed.Importer {
	source := feed.NewSource(feed.SourceOptions{
		Timeout:       time.Duration(cfg.Import.TimeoutSecs) * time.Second,
		MaxRetries:    cfg.Import.MaxRetries,
		RatePerSecond: cfg.Import.RatePerSecond,
	})
	return feed.NewImporter(st, source, cfg.Import.Profiles)
}
