package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/intranet/auth-server-go/internal/config"
	"github.com/intranet/auth-server-go/internal/database"
	"github.com/intranet/auth-server-go/internal/handler"
	"github.com/intranet/auth-server-go/internal/jobs"
	"github.com/intranet/auth-server-go/internal/ratelimit"
	"github.com/intranet/auth-server-go/internal/redis"
	"github.com/intranet/auth-server-go/internal/repository"
	"github.com/intranet/auth-server-go/internal/service"
	"github.com/intranet/auth-server-go/internal/session"
	"github.com/intranet/auth-server-go/internal/util"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	isProduction := os.Getenv("APP_ENV") == "production"
	if !isProduction {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Msg("failed to read .env")
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	trustedProxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if len(trustedProxies) == 0 {
		log.Info().Msg("TRUSTED_PROXIES not set: forwarding headers are ignored")
	}

	identityDB := connect(cfg.IdentityDatabaseURL, "identity")
	defer identityDB.Close()
	contentDB := connect(cfg.ContentDatabaseURL, "content")
	defer contentDB.Close()

	if cfg.RunMigrations {
		migrate(identityDB, database.SchemaIdentity)
		migrate(contentDB, database.SchemaContent)
	}

	var (
		sessionStore session.Store
		limiter      ratelimit.Limiter
	)
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")

		sessionStore = session.NewRedisStore(redisClient.Client)
		limiter = ratelimit.NewRedisLimiter(redisClient.Client)
	} else {
		log.Warn().Msg("REDIS_URL not set: using in-process session store and rate limiter")
		sessionStore = session.NewMemoryStore()
		limiter = ratelimit.NewMemoryLimiter()
	}

	identity := repository.NewIdentityStore(identityDB)
	content := repository.NewContentStore(contentDB)

	sweeper := jobs.NewSweeper(cfg.CleanupChance())
	loginLimiter := service.NewLoginLimiter(identity, service.LoginLimiterConfig{
		MaxFailures: cfg.LoginMaxFailures,
		Window:      cfg.LoginWindow(),
		Retention:   cfg.AttemptRetention(),
	}, sweeper)
	sessions := service.NewSessionManager(sessionStore, identity, cfg.SessionSecret, cfg.SessionLifetime())
	perms := service.NewPermissionService(identity)
	authService := service.NewAuthService(
		identity, content, loginLimiter, sessions, util.NewSealer(cfg.EncryptionKey), cfg.TOTPIssuer,
	)
	invitationService := service.NewInvitationService(identity, content, perms, service.InvitationServiceConfig{
		DefaultTTL: cfg.InvitationTTL(),
		Retention:  cfg.AttemptRetention(),
	})
	userService := service.NewUserService(identity, content, perms)

	sweeper.Register(jobs.Task{Name: "login attempts", Run: loginLimiter.CleanupOldAttempts})
	sweeper.Register(jobs.Task{Name: "expired invitations", Run: invitationService.CleanupExpired})

	r := handler.NewRouter(handler.Dependencies{
		Auth:                 authService,
		Users:                userService,
		Invitations:          invitationService,
		Permissions:          perms,
		Sessions:             sessions,
		Limiter:              limiter,
		RedeemLimitPerMinute: cfg.RedeemLimitPerMinute,
		SecureCookie:         cfg.CookieSecure,
		TrustedProxies:       trustedProxies,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	sweeper.Wait()

	log.Info().Msg("server stopped")
}

func connect(url, name string) *database.DB {
	db, err := database.Connect(url)
	if err != nil {
		log.Fatal().Err(err).Str("database", name).Msg("failed to connect to database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Str("database", name).Msg("failed to ping database")
	}
	log.Info().Str("database", name).Msg("database connected")
	return db
}

func migrate(db *database.DB, schema database.Schema) {
	ctx, cancel := context.WithTimeout(context.Background(), config.MigrationTimeout)
	defer cancel()
	if err := database.Migrate(ctx, db, schema); err != nil {
		log.Fatal().Err(err).Str("schema", string(schema)).Msg("failed to run migrations")
	}
	log.Info().Str("schema", string(schema)).Msg("migrations applied")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
