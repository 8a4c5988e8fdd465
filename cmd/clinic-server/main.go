package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicdash/clinic/internal/calendar"
	"github.com/clinicdash/clinic/internal/config"
	"github.com/clinicdash/clinic/internal/domain/clinic"
	"github.com/clinicdash/clinic/internal/platform/assistant"
	"github.com/clinicdash/clinic/internal/platform/auth"
	"github.com/clinicdash/clinic/internal/platform/db"
	"github.com/clinicdash/clinic/internal/platform/middleware"
	"github.com/clinicdash/clinic/internal/platform/openapi"
	"github.com/clinicdash/clinic/internal/platform/reporting"
	"github.com/clinicdash/clinic/internal/platform/sandbox"
	"github.com/clinicdash/clinic/internal/platform/telemetry"
	"github.com/clinicdash/clinic/internal/platform/webhook"
	"github.com/clinicdash/clinic/internal/platform/websocket"
	"github.com/clinicdash/clinic/migrations"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

// demoPassword is the admin password when ADMIN_PASSWORD_HASH is unset
// outside production.
const demoPassword = "admin123"

func main() {
	rootCmd := &cobra.Command{
		Use:           "clinic-server",
		Short:         "Clinic dashboard API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(hashPasswordCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg))
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(fn func(ctx context.Context, m *db.Migrator) error) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.UsesPostgres() {
			return fmt.Errorf("migrations require STORE=%s", config.StorePostgres)
		}
		ctx := context.Background()
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: 2}, newLogger(cfg))
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, migrations.Files))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd, statuses)
				return nil
			})
		},
	})

	return cmd
}

func printStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-8s %-30s %-8s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		state, at := "pending", ""
		if s.Applied {
			state = "applied"
			if s.AppliedAt != nil {
				at = s.AppliedAt.Format(time.RFC3339)
			}
		}
		fmt.Fprintf(out, "%-8d %-30s %-8s %s\n", s.Version, s.Name, state, at)
	}
}

// checkSeedTarget rejects stores where seeded demo data would be lost or
// where it must never land.
func checkSeedTarget(cfg *config.Config) error {
	if cfg.IsProduction() {
		return errors.New("refusing to seed demo data in production")
	}
	if !cfg.UsesPostgres() {
		return fmt.Errorf("seed requires STORE=%s; the memory store is discarded on exit", config.StorePostgres)
	}
	return nil
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo patients, services and reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := checkSeedTarget(cfg); err != nil {
				return err
			}
			seedCfg := sandbox.DefaultSeedConfig()
			seedCfg.PatientCount, _ = cmd.Flags().GetInt("patients")
			seedCfg.ReservationsPerPatient, _ = cmd.Flags().GetInt("reservations")
			seedCfg.Seed, _ = cmd.Flags().GetInt64("seed")

			logger := newLogger(cfg)
			ctx := context.Background()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := sandbox.NewSeeder(a.svc, a.cal, logger).Seed(ctx, seedCfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d services, %d patients and %d reservations.\n",
				result.Services, result.Patients, result.Reservations)
			return nil
		},
	}
	def := sandbox.DefaultSeedConfig()
	cmd.Flags().Int("patients", def.PatientCount, "Number of patients to create")
	cmd.Flags().Int("reservations", def.ReservationsPerPatient, "Reservations per patient")
	cmd.Flags().Int64("seed", def.Seed, "Random seed; 0 picks a time-based seed")
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash to use as ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// app holds the long-lived components shared by serve and seed.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	pool     *pgxpool.Pool
	svc      *clinic.Service
	cal      *calendar.Calendar
	hub      *websocket.Hub
	metrics  *telemetry.Provider
	webhooks *webhook.Dispatcher
	stop     context.CancelFunc
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		cal:    calendar.New(cfg.CalendarConfig()),
		hub:    websocket.NewHub(logger),
		metrics: telemetry.NewProvider(telemetry.Config{
			ServiceVersion: version,
			Environment:    cfg.Env,
			RuntimeMetrics: cfg.RuntimeMetrics,
		}),
	}

	if cfg.UsesPostgres() {
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
			LogLevel: cfg.DBLogLevel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.pool = pool
		a.svc = clinic.NewService(
			clinic.NewPatientRepoPG(pool),
			clinic.NewServiceRepoPG(pool),
			clinic.NewReservationRepoPG(pool),
			logger,
		)
		a.svc.SetTransactor(db.NewTransactor(pool))
		a.metrics.ObservePool(pool)
		logger.Info().Msg("connected to database")
	} else {
		store := clinic.NewMemoryStore()
		a.svc = clinic.NewService(store.Patients(), store.Services(), store.Reservations(), logger)
		logger.Warn().Msg("using in-memory store; data is lost on restart")
	}

	endpoints := make([]webhook.Endpoint, 0, len(cfg.WebhookURLs))
	for _, u := range cfg.WebhookURLs {
		endpoints = append(endpoints, webhook.Endpoint{URL: u, Secret: cfg.WebhookSecret, Events: cfg.WebhookEvents})
	}
	webhooks, err := webhook.NewDispatcher(endpoints, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("webhooks: %w", err)
	}
	a.webhooks = webhooks
	runCtx, stop := context.WithCancel(context.Background())
	a.stop = stop
	go webhooks.Run(runCtx)

	a.svc.SetNotifier(clinic.Notifiers(a.hub, a.metrics, a.webhooks))
	a.metrics.ObserveGauge("websocket_clients", "Connected websocket clients.", func() float64 {
		return float64(a.hub.ClientCount())
	})
	return a, nil
}

func (a *app) close() {
	if a.stop != nil {
		a.stop()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) authenticator() (auth.Authenticator, error) {
	hash := a.cfg.AdminPasswordHash
	if hash == "" {
		a.logger.Warn().
			Str("email", a.cfg.AdminEmail).
			Msg("ADMIN_PASSWORD_HASH not set; using the demo password")
		var err error
		if hash, err = auth.HashPassword(demoPassword); err != nil {
			return nil, err
		}
	}
	return auth.NewStaticAuthenticator(auth.Principal{
		ID:    "admin",
		Email: a.cfg.AdminEmail,
		Name:  a.cfg.AdminName,
		Role:  "admin",
	}, hash)
}

// newServer builds the echo instance with middleware and routes.
func (a *app) newServer() (*echo.Echo, error) {
	cfg, logger := a.cfg, a.logger

	sessions, err := auth.NewSessionManager(auth.SessionConfig{
		Secret:     []byte(cfg.SessionSecret),
		TTL:        cfg.SessionTTL,
		CookieName: cfg.SessionCookie,
		Secure:     cfg.IsProduction(),
	})
	if err != nil {
		return nil, err
	}
	authn, err := a.authenticator()
	if err != nil {
		return nil, fmt.Errorf("admin credentials: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		HSTS:         cfg.IsProduction(),
		DocsPrefixes: []string{"/docs"},
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept-Language", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Content-Disposition"},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(a.metrics.MetricsMiddleware())

	// Auth middleware
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: requests without a session act as the admin user")
		e.Use(auth.DevAuthMiddleware(sessions))
	} else {
		e.Use(auth.SessionMiddleware(sessions, auth.AuthSkipper))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger, a.metrics))

	auth.NewHandler(sessions, authn, logger).RegisterRoutes(e)

	// API group
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	clinic.NewHandler(a.svc).RegisterRoutes(apiV1)
	clinic.NewCalendarHandler(a.svc, a.cal).RegisterRoutes(apiV1)
	reporting.NewHandler(a.svc, a.cal).RegisterRoutes(apiV1)
	assistant.NewHandler(assistant.New(a.cal), a.svc, logger).RegisterRoutes(apiV1)
	websocket.NewHandler(a.hub, cfg.CORSOrigins).RegisterRoutes(apiV1)
	webhook.NewHandler(a.webhooks).RegisterRoutes(apiV1)
	if !cfg.IsProduction() {
		sandbox.NewSeedHandler(sandbox.NewSeeder(a.svc, a.cal, logger)).RegisterRoutes(apiV1)
	}

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"store":   cfg.Store,
		})
	})
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool))
	} else {
		e.GET("/health/db", db.MemoryHealth)
	}
	e.GET("/metrics", a.metrics.Handler())
	openapi.NewGenerator(e, version).RegisterRoutes(e)

	return e, nil
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.SeedDemoData {
		if _, err := sandbox.NewSeeder(a.svc, a.cal, logger).Seed(ctx, sandbox.DefaultSeedConfig()); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	e, err := a.newServer()
	if err != nil {
		return err
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.Store).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
