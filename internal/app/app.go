package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/samiralam04/Note-app/internal/auth"
	"github.com/samiralam04/Note-app/internal/config"
	"github.com/samiralam04/Note-app/internal/event"
	handler "github.com/samiralam04/Note-app/internal/handler/http"
	"github.com/samiralam04/Note-app/internal/mailer"
	"github.com/samiralam04/Note-app/internal/repository/postgres"
	"github.com/samiralam04/Note-app/internal/repository/redis"
	"github.com/samiralam04/Note-app/internal/service"
	"github.com/samiralam04/Note-app/migrations"
	"github.com/samiralam04/Note-app/pkg/database"
	"github.com/samiralam04/Note-app/pkg/health"
	pkgkafka "github.com/samiralam04/Note-app/pkg/kafka"
	"github.com/samiralam04/Note-app/pkg/middleware"
	"github.com/samiralam04/Note-app/pkg/tracing"
)

const serviceVersion = "0.1.0"

// App wires together all dependencies and runs the note-app server.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	limiter        *middleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    handler.ServiceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, handler.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTokenExpiry)
	userRepo := postgres.NewUserRepository(pool)
	noteRepo := postgres.NewNoteRepository(pool)

	authOpts := []service.AuthOption{service.WithOTPTTL(cfg.OTPTTL)}

	// Optional Redis-backed OTP throttle.
	if cfg.RedisEnabled {
		redisCfg := database.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
		client, err := database.NewRedisClient(ctx, redisCfg, logger)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		authOpts = append(authOpts, service.WithThrottle(
			redis.NewOTPThrottle(client, cfg.OTPResendCooldown, cfg.OTPMaxAttempts, cfg.OTPTTL),
		))
		healthHandler.RegisterOptional("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		logger.Info("otp throttle enabled", slog.String("addr", redisCfg.Addr()))
	}

	// Optional Kafka event publishing.
	if cfg.KafkaEnabled {
		producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.producer = producer
		authOpts = append(authOpts, service.WithEventPublisher(event.NewProducer(producer, logger)))
		healthHandler.RegisterOptional("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Optional Google sign-in.
	if cfg.GoogleEnabled() {
		authOpts = append(authOpts, service.WithIdentityVerifier(auth.NewGoogleVerifier(auth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})))
		logger.Info("google sign-in enabled")
	}

	authService := service.NewAuthService(userRepo, newMailer(cfg, logger), jwtManager, logger, authOpts...)
	noteService := service.NewNoteService(noteRepo, logger)

	proxies, err := middleware.ParseTrustedProxies(cfg.RateLimitTrustedProxies)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	a.limiter = middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow).WithTrustedProxies(proxies)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	router := handler.NewRouter(handler.RouterConfig{
		AuthService:   authService,
		NoteService:   noteService,
		JWTManager:    jwtManager,
		HealthHandler: healthHandler,
		RateLimiter:   a.limiter,
		CORS:          corsCfg,
		Logger:        logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// newMailer selects SMTP behind a circuit breaker when a host is configured,
// and the log mailer otherwise. The log mailer includes message bodies only in
// development.
func newMailer(cfg *config.Config, logger *slog.Logger) mailer.Mailer {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, OTP emails are written to the log")
		return mailer.NewLogMailer(logger, cfg.IsDevelopment())
	}

	smtpCfg := mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom(),
	}
	logger.Info("smtp mailer configured", slog.String("addr", smtpCfg.Addr()))
	return mailer.NewBreaker(mailer.NewSMTPMailer(smtpCfg), mailer.DefaultBreakerConfig(), logger)
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	go a.limiter.Run(time.Minute, stopCleanup)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer, Redis client, PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeAll releases whatever NewApp managed to open. It is safe to call on a
// partially constructed App.
func (a *App) closeAll() error {
	var errs []error

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}

	return errors.Join(errs...)
}
