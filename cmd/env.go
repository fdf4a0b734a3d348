package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/unson/lpops/internal/automation"
	"github.com/unson/lpops/internal/playbook"
	"github.com/unson/lpops/internal/report"
	"github.com/unson/lpops/internal/scheduler"
	"github.com/unson/lpops/internal/store"
	"github.com/unson/lpops/pkg/googleads"
	"github.com/unson/lpops/pkg/lpsource"
)

// Env holds the wired application services shared by the commands.
type Env struct {
	Store    store.Store
	Engine   *automation.Engine
	Reports  *report.Service
	Catalogs map[string]*playbook.Catalog
}

// initEnv opens the store, runs migrations, and wires the engine and
// services from config.
func initEnv(ctx context.Context) (*Env, error) {
	var st store.Store
	var err error
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	ads := googleads.NewStub(googleads.WithRateLimit(cfg.GoogleAds.RatePerSecond))
	lp := lpsource.NewStub(cfg.LPSource.RepoOwner, cfg.LPSource.RepoName)
	engine := automation.NewEngine(st, ads, lp, cfg.Automation)
	reports := report.NewService(st, cfg.Report, nil)

	catalogs, err := playbook.LoadDir(cfg.Playbook.CatalogPath)
	if err != nil {
		zap.L().Warn("playbook catalog not loaded", zap.Error(err))
		catalogs = map[string]*playbook.Catalog{}
	}

	return &Env{
		Store:    st,
		Engine:   engine,
		Reports:  reports,
		Catalogs: catalogs,
	}, nil
}

// Close releases the store.
func (e *Env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

// newScheduler builds the cadenced job runner over the env.
func (e *Env) newScheduler() *scheduler.Scheduler {
	timeout := time.Duration(cfg.Automation.ActionTimeoutSecs) * time.Second
	return scheduler.New(e.Engine, e.Reports, e.Store, cfg.Scheduler, timeout)
}
