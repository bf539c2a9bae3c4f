// Command txn-auth serves the trading journal sign-in flows and the guarded
// admin area.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-print"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auth "github.com/txnjournal/go-txn-auth"
	"github.com/txnjournal/go-txn-auth/activitysink"
	"github.com/txnjournal/go-txn-auth/localauth"
	"github.com/txnjournal/go-txn-auth/repository"
	"github.com/txnjournal/go-txn-auth/supabase"
	"github.com/txnjournal/go-txn-auth/throttle"
	"github.com/txnjournal/go-txn-auth/web"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

type App struct {
	config   *auth.Config
	logger   auth.Logger
	client   *supabase.Client
	db       *bun.DB
	store    auth.AdminStore
	verifier auth.TokenVerifier
	limiter  auth.AttemptLimiter
	sink     auth.ActivitySink
	metrics  *auth.Metrics
	registry *prometheus.Registry
	closers  []func() error
}

func main() {
	zl, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer zl.Sync()

	app := &App{logger: auth.NewZapLogger(zl)}

	cfg, err := auth.LoadConfig()
	if err != nil {
		app.logger.Error("configuration", "error", err)
		os.Exit(1)
	}
	app.config = cfg
	app.logger.Debug("configuration loaded", "config", print.MaybePrettyJSON(map[string]any{
		"supabase_url": cfg.SupabaseURL,
		"http_addr":    cfg.HTTPAddr,
		"locale":       cfg.Locale,
		"database":     cfg.DatabaseURL != "",
		"redis":        cfg.RedisAddr != "",
		"kafka":        len(cfg.KafkaBrokers) > 0,
	}))

	ctx := context.Background()
	defer app.close()

	steps := []func(context.Context, *App) error{
		WithBackend,
		WithPersistence,
		WithLimiter,
		WithActivity,
		WithMetrics,
	}
	for _, step := range steps {
		if err := step(ctx, app); err != nil {
			app.logger.Error("startup failed", "error", err)
			return
		}
	}

	srv, err := WithHTTPServer(app)
	if err != nil {
		app.logger.Error("http server", "error", err)
		return
	}

	go func() {
		app.logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.Listen(cfg.HTTPAddr); err != nil {
			app.logger.Error("http server stopped", "error", err)
		}
	}()

	sig := WaitExitSignal()
	app.logger.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		app.logger.Error("http shutdown", "error", err)
	}
}

// WithBackend connects to the hosted auth service and picks how access
// tokens are verified: JWKS, then the shared secret, then a remote lookup.
func WithBackend(_ context.Context, app *App) error {
	client, err := supabase.NewFromConfig(app.config, supabase.WithLogger(app.logger))
	if err != nil {
		return err
	}
	app.client = client
	app.store = client

	if app.config.JWKSURL == "" && app.config.JWTSecret == "" {
		app.verifier = auth.TokenVerifierFunc(client.GetUser)
		return nil
	}

	verifier, err := localauth.NewVerifier(localauth.VerifierConfig{
		JWKSURL:  app.config.JWKSURL,
		Secret:   []byte(app.config.JWTSecret),
		Audience: localauth.AuthenticatedAudience,
		Logger:   app.logger,
	})
	if err != nil {
		return err
	}
	app.verifier = verifier
	return nil
}

// WithPersistence replaces the hosted data store with a direct database
// connection when DATABASE_URL is set.
func WithPersistence(ctx context.Context, app *App) error {
	if app.config.DatabaseURL == "" {
		return nil
	}

	db, err := repository.Open(ctx, app.config.DatabaseURL, repository.PoolConfig{})
	if err != nil {
		return err
	}
	app.db = db

	manager := repository.NewManager(db)
	app.closers = append(app.closers, manager.Close)
	if err := manager.Validate(); err != nil {
		return err
	}

	applied, err := repository.Migrate(ctx, db)
	if err != nil {
		return err
	}
	for _, name := range applied {
		app.logger.Info("migration applied", "name", name)
	}
	app.store = manager.Profiles()
	return nil
}

// WithLimiter shares sign-in attempt counters through Redis when
// configured, otherwise counts per process.
func WithLimiter(ctx context.Context, app *App) error {
	limit, window := app.config.SignInAttemptLimit, app.config.SignInAttemptWindow
	if app.config.RedisAddr == "" {
		app.limiter = throttle.NewMemoryLimiter(limit, window)
		return nil
	}

	client := throttle.NewRedisClient(app.config.RedisAddr, app.config.RedisPassword)
	if err := client.Ping(ctx).Err(); err != nil {
		app.logger.Warn("redis unreachable, counting attempts in memory", "error", err)
		client.Close()
		app.limiter = throttle.NewMemoryLimiter(limit, window)
		return nil
	}
	app.closers = append(app.closers, client.Close)
	app.limiter = throttle.NewRedisLimiter(client, limit, window, app.logger)
	return nil
}

// WithActivity publishes activity events to Kafka when brokers are set.
func WithActivity(_ context.Context, app *App) error {
	sinks := auth.MultiActivitySink{
		auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
			app.logger.Debug("activity", "type", event.EventType, "user_id", event.UserID)
			return nil
		}),
	}

	if len(app.config.KafkaBrokers) > 0 {
		kcfg := activitysink.KafkaConfig{
			Brokers: app.config.KafkaBrokers,
			Topic:   app.config.KafkaTopic,
			Channel: app.config.ActivityChannel,
		}
		writer, err := activitysink.NewKafkaWriter(kcfg, app.logger)
		if err != nil {
			return err
		}
		kafkaSink := activitysink.NewKafkaSink(writer, kcfg.RecordOptions()...)
		app.closers = append(app.closers, kafkaSink.Close)
		sinks = append(sinks, kafkaSink)
	}

	app.sink = sinks
	return nil
}

func WithMetrics(_ context.Context, app *App) error {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := auth.NewMetrics(app.registry)
	if err != nil {
		return err
	}
	app.metrics = metrics
	return nil
}

func WithHTTPServer(app *App) (*fiber.App, error) {
	resolver := auth.NewProfileResolver(app.store,
		auth.WithResolverLogger(app.logger),
		auth.WithResolverActivitySink(app.sink),
	)

	guard := auth.NewAccessGuard(resolver,
		auth.WithPermissionCheckTimeout(app.config.PermissionCheckTimeout),
		auth.WithGuardLocale(app.config.Locale),
		auth.WithGuardLogger(app.logger),
		auth.WithGuardMetrics(app.metrics),
	)

	admin := auth.NewAdminService(app.store, guard,
		auth.WithConfirmer(web.RequestConfirmer),
		auth.WithAdminLogger(app.logger),
		auth.WithAdminActivitySink(app.sink),
		auth.WithAdminMetrics(app.metrics),
	)

	sessions := func() *auth.SessionProvider {
		return auth.NewSessionProvider(app.client, resolver,
			auth.WithTokenVerifier(app.verifier),
			auth.WithAttemptLimiter(app.limiter),
			auth.WithSessionLogger(app.logger),
			auth.WithSessionActivitySink(app.sink),
		)
	}

	server := web.NewServer(guard, admin, app.verifier, sessions,
		web.WithLogger(app.logger),
		web.WithLocale(app.config.Locale),
	)

	srv, err := web.NewApp(server)
	if err != nil {
		return nil, err
	}

	srv.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{})))
	srv.Get("/healthz", func(c *fiber.Ctx) error {
		if app.db != nil {
			if err := app.db.PingContext(c.UserContext()); err != nil {
				return fiber.NewError(fiber.StatusServiceUnavailable, "database unreachable")
			}
		}
		return c.SendString("ok")
	})
	return srv, nil
}

func (a *App) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("shutdown cleanup", "error", err)
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
