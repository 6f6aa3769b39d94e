package commands

import (
	"context"
	"courtfetch/internal/captcha"
	"courtfetch/internal/catalog"
	"courtfetch/internal/components/chrono"
	"courtfetch/internal/components/configutil"
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/engine"
	"courtfetch/internal/ledger"
	"courtfetch/internal/notify"
	"courtfetch/internal/portal"
	"courtfetch/internal/query"
	"courtfetch/internal/resolver"
	"courtfetch/internal/session"
	"courtfetch/internal/store"
	"courtfetch/internal/transport"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// app is everything a command needs, wired from the config.
type app struct {
	config   Config
	tel      telemetry.API
	clock    chrono.StandardImpl
	registry portal.Registry
	manager  *session.Manager
	catalog  catalog.Catalog
	engine   engine.Engine
	notifier notify.Notifier

	// ledger is nil when no database is configured
	ledger    *ledger.Ledger
	database  *sql.DB
	providers telemetry.Providers
}

func newApp(ctx context.Context) (*app, error) {
	cfg, dir, err := loadConfig(*configName)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	providers, err := telemetry.Setup(ctx, "courtfetch", cfg.Otlp)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	a := &app{
		config:    cfg,
		tel:       telemetry.SlogAPI{},
		providers: providers,
	}

	a.clock, err = chrono.NewStandardImpl(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone: %w", err)
	}
	a.registry, err = portal.NewRegistry(cfg.Portals...)
	if err != nil {
		return nil, fmt.Errorf("load portals: %w", err)
	}

	outputDir, err := configutil.ResolvePath(dir, cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	st := store.NewStore(outputDir, a.tel)

	var journal engine.Journal
	if cfg.Ledger.Enabled() {
		a.database, err = cfg.Ledger.Open(dir)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		a.ledger, err = ledger.New(ctx, a.database, a.clock, a.tel)
		if err != nil {
			a.database.Close()
			return nil, err
		}
		journal = a.ledger
	}

	solver := captcha.NewDefaultSolver(a.tel, a.clock, seconds(cfg.Solver.TimeoutSeconds), cfg.Solver.RemoteOptions())
	requests := cfg.Requests.Policy(transport.DefaultRetryPolicy)
	a.manager = session.NewManager(solver, a.clock, a.tel, cfg.Handshake.Policy(session.DefaultHandshakePolicy))
	a.manager.RetryTransport(requests)
	if *dumpDir != "" {
		a.manager.DumpExchanges(*dumpDir)
	}
	a.catalog = catalog.NewCatalog(a.manager, a.tel)
	a.notifier = notify.NewNotifier(cfg.Notify, a.tel)
	a.engine = engine.NewEngine(engine.Options{
		Sessions:   a.manager,
		Dispatcher: query.NewDispatcher(a.manager, a.clock, requests, a.tel),
		Resolver:   resolver.NewResolver(st, a.clock, requests, a.tel),
		Store:      st,
		Journal:    journal,
		Clock:      a.clock,
		Workers:    cfg.Workers,
	}, a.tel)

	slog.DebugContext(ctx, "config loaded", "dir", dir, "output", outputDir, "ledger", cfg.Ledger.Enabled())
	return a, nil
}

// search runs one search and mails its digest when one is configured.
func (a *app) search(ctx context.Context, portalID string, qc QueryConfig) (engine.Report, error) {
	profile, err := a.registry.Get(portalID)
	if err != nil {
		return engine.Report{}, err
	}
	q, err := qc.Build(ctx, a.catalog, profile, a.clock.Now())
	if err != nil {
		return engine.Report{}, err
	}

	report, err := a.engine.RunSearch(ctx, profile, q)
	if err != nil {
		return report, err
	}
	err = a.notifier.Notify(ctx, notify.Search{Portal: profile.ID, Label: q.Label(), Report: report})
	if err != nil {
		slog.WarnContext(ctx, "failed to send digest", "err", err)
	}
	return report, nil
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.database != nil {
		errs = append(errs, a.database.Close())
	}
	errs = append(errs, a.providers.Shutdown(ctx))
	return errors.Join(errs...)
}
