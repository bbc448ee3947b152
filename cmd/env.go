package main

import (
	"context"
	"math/rand/v2"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/audit"
	"github.com/sells-group/lead-harvest/internal/classify"
	"github.com/sells-group/lead-harvest/internal/credential"
	"github.com/sells-group/lead-harvest/internal/finder"
	"github.com/sells-group/lead-harvest/internal/metrics"
	"github.com/sells-group/lead-harvest/internal/model"
	"github.com/sells-group/lead-harvest/internal/pipeline"
	"github.com/sells-group/lead-harvest/internal/realtime"
	"github.com/sells-group/lead-harvest/internal/resilience"
	"github.com/sells-group/lead-harvest/internal/store"
)

// appEnv holds the store, the lead service and the collaborators the
// commands share.
type appEnv struct {
	Store     store.Store
	Service   *pipeline.Service
	Registry  *prometheus.Registry
	Hub       *realtime.Hub
	Finder    *finder.Finder
	Generator *finder.Generator
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the config for mode, opens and migrates the store and
// builds the lead service. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	classifierOpts := []classify.Option{
		classify.WithScheme(classify.Scheme(cfg.Scoring.Scheme)),
		classify.WithKeywords(classify.KeywordSet(cfg.Scoring.Keywords)),
	}
	if cfg.Scoring.Seed != 0 {
		classifierOpts = append(classifierOpts, classify.WithSeed(cfg.Scoring.Seed))
	}
	classifier, err := classify.New(classifierOpts...)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init classifier")
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	retry := retryConfig()
	hub := realtime.NewHub(cfg.Realtime.Buffer)

	creds := credential.Chain{
		credential.Static(cfg.AI.APIKey),
		credential.SettingsProvider{Store: st},
	}
	rec := audit.NewRecorder(audit.NewStoreLog(st, retry), m)
	svc := pipeline.NewService(pipeline.New(classifier, creds, rec, m), st,
		pipeline.WithHub(hub),
		pipeline.WithMetrics(m),
		pipeline.WithRetry(retry),
		pipeline.WithDefaultSettings(defaultSettings()),
	)

	var finderOpts []finder.Option
	var genOpts []finder.GeneratorOption
	if cfg.Scoring.Seed != 0 {
		finderOpts = append(finderOpts, finder.WithRand(rand.New(rand.NewPCG(cfg.Scoring.Seed, 1))))
		genOpts = append(genOpts, finder.WithGeneratorRand(rand.New(rand.NewPCG(cfg.Scoring.Seed, 2))))
	}
	f, err := finder.New(finderOpts...)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init finder")
	}

	return &appEnv{
		Store:     st,
		Service:   svc,
		Registry:  reg,
		Hub:       hub,
		Finder:    f,
		Generator: finder.NewGenerator(genOpts...),
	}, nil
}

func retryConfig() resilience.RetryConfig {
	return resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
}

func defaultSettings() model.Settings {
	return model.Settings{
		UseProxies:       cfg.Scrape.UseProxies,
		RequestDelaySecs: cfg.Scrape.RequestDelaySecs,
		RespectRobotsTxt: cfg.Scrape.RespectRobotsTxt,
		DefaultSource:    cfg.Scrape.DefaultSource,
	}
}

// ownerContext scopes ctx to the configured session user.
func ownerContext(ctx context.Context) (context.Context, error) {
	if cfg.Session.UserID == "" {
		return nil, eris.Wrap(store.ErrNotLoggedIn, "set session.user_id or pass --user")
	}
	return store.WithOwner(ctx, cfg.Session.UserID), nil
}

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "lead-harvest.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
