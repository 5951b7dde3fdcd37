// Package server builds the scraper's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/hiparis-pubscraper/internal/api"
	"github.com/JakeFAU/hiparis-pubscraper/internal/clock/system"
	"github.com/JakeFAU/hiparis-pubscraper/internal/conference"
	"github.com/JakeFAU/hiparis-pubscraper/internal/config"
	"github.com/JakeFAU/hiparis-pubscraper/internal/controller"
	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
	"github.com/JakeFAU/hiparis-pubscraper/internal/export"
	collyfetcher "github.com/JakeFAU/hiparis-pubscraper/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/hiparis-pubscraper/internal/fetcher/headless"
	"github.com/JakeFAU/hiparis-pubscraper/internal/fetcher/hybrid"
	"github.com/JakeFAU/hiparis-pubscraper/internal/hash/sha256"
	"github.com/JakeFAU/hiparis-pubscraper/internal/id/uuid"
	"github.com/JakeFAU/hiparis-pubscraper/internal/logging"
	"github.com/JakeFAU/hiparis-pubscraper/internal/metrics"
	"github.com/JakeFAU/hiparis-pubscraper/internal/policy/ratelimit"
	"github.com/JakeFAU/hiparis-pubscraper/internal/policy/robots"
	"github.com/JakeFAU/hiparis-pubscraper/internal/progress"
	progresssinks "github.com/JakeFAU/hiparis-pubscraper/internal/progress/sinks"
	"github.com/JakeFAU/hiparis-pubscraper/internal/publication"
	memorypublisher "github.com/JakeFAU/hiparis-pubscraper/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/hiparis-pubscraper/internal/publisher/pubsub"
	"github.com/JakeFAU/hiparis-pubscraper/internal/resolver"
	"github.com/JakeFAU/hiparis-pubscraper/internal/roster"
	gcsstorage "github.com/JakeFAU/hiparis-pubscraper/internal/storage/gcs"
	localstorage "github.com/JakeFAU/hiparis-pubscraper/internal/storage/local"
	memorystorage "github.com/JakeFAU/hiparis-pubscraper/internal/storage/memory"
	pgstore "github.com/JakeFAU/hiparis-pubscraper/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/hiparis-pubscraper/internal/storage/sqlite"
	"github.com/JakeFAU/hiparis-pubscraper/internal/store"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	registry        *prometheus.Registry
	apiServer       *api.Server
	controller      *controller.Controller
	conferences     *conference.Registry
	roster          *roster.Store
	blobStore       crawler.BlobStore
	progressHub     *progress.Hub
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	archive         crawler.RecordArchive
	runs            store.RunRepository
	closeDB         func()
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) *App {
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("browser_mode", cfg.Browser.Mode),
		zap.String("resolver", cfg.Resolver.Kind),
		zap.String("storage_backend", cfg.Storage.Backend),
	)
	return &App{
		cfg:      cfg,
		logger:   logger,
		registry: metrics.NewRegistry(),
	}
}

// Handler exposes the HTTP surface.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Conferences returns the registry the next run will walk.
func (a *App) Conferences() *conference.Registry {
	return a.conferences
}

// Roster returns the active roster.
func (a *App) Roster() *roster.Store {
	return a.roster
}

// Controller returns the crawl controller.
func (a *App) Controller() *controller.Controller {
	return a.controller
}

// Artifacts returns the blob store spreadsheets are written to.
func (a *App) Artifacts() crawler.BlobStore {
	return a.blobStore
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := a.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Crawl runs one session over the configured conferences and roster and
// blocks until the loop stops. A failed run is returned as an error along
// with its final progress.
func (a *App) Crawl(ctx context.Context) (controller.Progress, error) {
	if err := a.controller.Start(ctx, a.conferences.Sources(), a.roster.Names()); err != nil {
		return a.controller.Progress(), err
	}
	if err := a.controller.Wait(ctx); err != nil {
		return a.controller.Progress(), err
	}
	p := a.controller.Progress()
	if p.Outcome == crawler.OutcomeFailed {
		return p, fmt.Errorf("crawl failed: %s", p.Error)
	}
	return p, nil
}

// Close releases every dependency. It is safe to call once per App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.controller != nil {
		if err := a.controller.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("controller close: %w", err))
		}
	}
	a.closeInfrastructure(ctx)
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		if err := a.pubsubPublisher.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

// Build creates the application's dependencies. ctx bounds every crawl run;
// canceling it aborts the active loop.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := NewApp(cfg, logger)
	app.logger.Info("building application dependencies")

	app.blobStore, err = setupStorage(ctx, app)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err = setupDatabase(ctx, app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	emitter, err := setupProgress(ctx, app)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err = setupSession(app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	app.controller, err = setupController(ctx, app, publisher, emitter)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	httpMetrics, err := metrics.NewHTTP(app.registry)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, fmt.Errorf("http metrics init failed: %w", err)
	}
	deps := api.Deps{
		Crawler:     app.controller,
		Conferences: app.conferences,
		Roster:      app.roster,
		Artifacts:   app.blobStore,
		Gatherer:    app.registry,
		Metrics:     httpMetrics,
	}
	deps.Runs = app.runs
	app.apiServer = api.NewServer(deps, *cfg, logger.Named("api"))

	return app, nil
}

func setupStorage(ctx context.Context, app *App) (crawler.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case config.StorageGCS:
		app.logger.Info("using GCS storage backend", zap.String("bucket", app.cfg.Storage.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: app.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobStore, nil
	case config.StorageLocal:
		app.logger.Info("using local storage backend", zap.String("path", app.cfg.Storage.BaseDir))
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupDatabase(ctx context.Context, app *App) error {
	switch {
	case app.cfg.DB.DSN != "":
		return setupPostgres(ctx, app)
	case app.cfg.DB.SQLitePath != "":
		return setupSQLite(ctx, app)
	default:
		app.logger.Info("no database configured, publication archive and run history disabled")
		return nil
	}
}

func setupPostgres(ctx context.Context, app *App) error {
	pubs, err := pgstore.NewPublicationStore(ctx, pgstore.Config{
		DSN:             app.cfg.DB.DSN,
		Table:           app.cfg.DB.Table,
		MaxConns:        app.cfg.DB.MaxConns,
		MinConns:        app.cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(app.cfg.DB.MaxConnLifetimeSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("publication store init failed: %w", err)
	}
	if err := pubs.EnsureSchema(ctx); err != nil {
		pubs.Close()
		return fmt.Errorf("publication store schema: %w", err)
	}
	runs, err := pubs.RunStore(app.cfg.DB.RunsTable)
	if err != nil {
		pubs.Close()
		return fmt.Errorf("run store init failed: %w", err)
	}
	if err := runs.EnsureSchema(ctx); err != nil {
		pubs.Close()
		return fmt.Errorf("run store schema: %w", err)
	}
	app.archive, app.runs, app.closeDB = pubs, runs, pubs.Close
	app.logger.Info("postgres archive initialized",
		zap.String("table", app.cfg.DB.Table),
		zap.String("runs_table", app.cfg.DB.RunsTable),
	)
	return nil
}

func setupSQLite(ctx context.Context, app *App) error {
	db, err := sqlitestore.Open(ctx, app.cfg.DB.SQLitePath)
	if err != nil {
		return fmt.Errorf("sqlite store init failed: %w", err)
	}
	app.archive, app.runs = db, db
	app.closeDB = func() {
		if err := db.Close(); err != nil {
			app.logger.Warn("sqlite close failed", zap.Error(err))
		}
	}
	app.logger.Info("sqlite archive initialized", zap.String("path", app.cfg.DB.SQLitePath))
	return nil
}

func setupPublisher(ctx context.Context, app *App) (crawler.Publisher, error) {
	if !app.cfg.PubSubEnabled() {
		app.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	publisher, err := gcppublisher.New(ctx, app.cfg.PubSub.ProjectID, app.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.pubsubPublisher = publisher
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return publisher, nil
}

func setupProgress(ctx context.Context, app *App) (progress.Emitter, error) {
	sinkList := []progress.Sink{progresssinks.NewLogSink(app.logger)}
	if app.cfg.Progress.Metrics {
		promSink, err := progresssinks.NewPrometheusSink(app.registry)
		if err != nil {
			return nil, fmt.Errorf("progress metrics sink: %w", err)
		}
		sinkList = append(sinkList, promSink)
	}
	if app.runs != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(app.runs, app.logger))
	}
	hubCfg := progress.Config{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   time.Duration(app.cfg.Progress.MaxBatchWaitMillis) * time.Millisecond,
		SinkTimeout:    time.Duration(app.cfg.Progress.SinkTimeoutSeconds) * time.Second,
		BaseContext:    ctx,
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("sinks", len(sinkList)),
	)
	return app.progressHub, nil
}

// setupSession seeds the conference registry and roster from configuration.
func setupSession(app *App) error {
	presets := conference.DefaultPresets
	if len(app.cfg.Conferences.Presets) > 0 {
		presets = make(map[string]string, len(conference.DefaultPresets)+len(app.cfg.Conferences.Presets))
		for name, tmpl := range conference.DefaultPresets {
			presets[name] = tmpl
		}
		for name, tmpl := range app.cfg.Conferences.Presets {
			presets[name] = tmpl
		}
	}
	app.conferences = conference.NewRegistry(presets)
	for _, u := range app.cfg.Conferences.URLs {
		app.conferences.AddLines(u)
	}
	if path := app.cfg.Conferences.File; path != "" {
		n, err := app.conferences.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load conferences file: %w", err)
		}
		app.logger.Info("conferences loaded", zap.String("path", path), zap.Int("added", n))
	}

	app.roster = roster.NewStore()
	if path := app.cfg.Roster.Path; path != "" {
		f, err := os.Open(path) //nolint:gosec // operator-supplied path
		if err != nil {
			return fmt.Errorf("open roster: %w", err)
		}
		defer func() { _ = f.Close() }()
		n, err := app.roster.LoadFrom(f, roster.FormatFromName(path))
		if err != nil {
			return fmt.Errorf("load roster %s: %w", path, err)
		}
		app.logger.Info("roster loaded", zap.String("path", path), zap.Int("names", n))
	}
	return nil
}

func setupSources(app *App) crawler.SourceFactory {
	var throttle crawler.Throttle
	if app.cfg.RateLimit.RPS > 0 {
		throttle = ratelimit.New(ratelimit.Config{
			DefaultRPS:   app.cfg.RateLimit.RPS,
			DefaultBurst: app.cfg.RateLimit.Burst,
		}, app.logger)
		app.logger.Info("rate limiter enabled",
			zap.Float64("rps", app.cfg.RateLimit.RPS),
			zap.Int("burst", app.cfg.RateLimit.Burst),
		)
	}
	static := collyfetcher.NewFactory(collyfetcher.Config{
		UserAgent:     app.cfg.Browser.UserAgent,
		RespectRobots: app.cfg.Browser.RespectRobots,
		Timeout:       app.cfg.NavTimeout(),
	}, throttle, app.logger)
	if app.cfg.Browser.Mode == config.BrowserStatic {
		app.logger.Info("using static page source", zap.String("user_agent", app.cfg.Browser.UserAgent))
		return static
	}

	renderThrottle := throttle
	if app.cfg.Browser.RespectRobots {
		renderThrottle = robots.New(throttle, app.cfg.Browser.UserAgent, app.logger)
	}
	render := headlessfetcher.NewFactory(headlessfetcher.Config{
		UserAgent:         app.cfg.Browser.UserAgent,
		NavigationTimeout: app.cfg.NavTimeout(),
		ExecPath:          app.cfg.Browser.ExecPath,
		NoSandbox:         app.cfg.Browser.NoSandbox,
	}, renderThrottle, app.logger)
	if app.cfg.Browser.Mode == config.BrowserAuto {
		app.logger.Info("using static page source with headless promotion")
		return hybrid.NewFactory(func(ctx context.Context) (hybrid.StaticSource, error) {
			return static.NewStaticSource(ctx)
		}, render, nil, app.logger)
	}
	app.logger.Info("using headless page source", zap.Bool("no_sandbox", app.cfg.Browser.NoSandbox))
	return render
}

func setupResolver(app *App) (crawler.DocumentResolver, error) {
	switch app.cfg.Resolver.Kind {
	case config.ResolverArxiv:
		r, err := resolver.NewArxivResolver(resolver.ArxivConfig{
			MaxResults:    app.cfg.Resolver.MaxResults,
			MinSimilarity: float32(app.cfg.Resolver.MinSimilarity),
		}, app.logger)
		if err != nil {
			return nil, fmt.Errorf("arxiv resolver init failed: %w", err)
		}
		return r, nil
	case config.ResolverNone:
		return resolver.NopResolver{}, nil
	default:
		return resolver.NewPageResolver(resolver.PageConfig{
			SearchTemplate: app.cfg.Resolver.SearchTemplate,
			LinkSelector:   app.cfg.Resolver.LinkSelector,
			LinkText:       app.cfg.Resolver.LinkText,
			Wait:           time.Duration(app.cfg.Resolver.WaitSeconds) * time.Second,
		}, app.logger), nil
	}
}

func setupController(
	ctx context.Context,
	app *App,
	publisher crawler.Publisher,
	emitter progress.Emitter,
) (*controller.Controller, error) {
	docResolver, err := setupResolver(app)
	if err != nil {
		return nil, err
	}
	clock := system.New()
	writer, err := export.NewWriter(app.blobStore, sha256.New(), clock, app.cfg.Storage.Prefix, app.logger)
	if err != nil {
		return nil, fmt.Errorf("artifact writer init failed: %w", err)
	}
	fetcher := publication.New(publication.Config{
		TitleSelector:  app.cfg.Fetch.TitleSelector,
		AuthorSelector: app.cfg.Fetch.AuthorSelector,
		Wait:           time.Duration(app.cfg.Fetch.WaitSeconds) * time.Second,
		Settle:         time.Duration(app.cfg.Fetch.SettleMillis) * time.Millisecond,
	}, app.logger)

	opts := controller.Options{
		BaseContext: ctx,
		Sources:     setupSources(app),
		Fetcher:     fetcher,
		Resolver:    docResolver,
		Retry:       crawler.NewLinearRetryPolicy(app.cfg.Retry.MaxAttempts, app.cfg.RetryBackoff()),
		Writer:      writer,
		Publisher:   publisher,
		Topic:       app.cfg.PubSub.TopicName,
		Emitter:     emitter,
		Clock:       clock,
		IDs:         uuid.New(),
		MatchedOnly: app.cfg.Fetch.MatchedOnly,
		Logger:      app.logger,
	}
	if app.archive != nil {
		opts.Archive = app.archive
	}
	ctrl, err := controller.New(opts)
	if err != nil {
		return nil, fmt.Errorf("controller init failed: %w", err)
	}
	return ctrl, nil
}
