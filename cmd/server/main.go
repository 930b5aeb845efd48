package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rrens/omnichannel-session/internal/api"
	"github.com/Rrens/omnichannel-session/internal/api/handler"
	"github.com/Rrens/omnichannel-session/internal/config"
	"github.com/Rrens/omnichannel-session/internal/domain"
	"github.com/Rrens/omnichannel-session/internal/logger"
	"github.com/Rrens/omnichannel-session/internal/metrics"
	"github.com/Rrens/omnichannel-session/internal/repository/memory"
	"github.com/Rrens/omnichannel-session/internal/repository/postgres"
	"github.com/Rrens/omnichannel-session/internal/repository/redis"
	"github.com/Rrens/omnichannel-session/internal/repository/sqlite"
	"github.com/Rrens/omnichannel-session/internal/repository/supabase"
	"github.com/Rrens/omnichannel-session/internal/security"
	"github.com/Rrens/omnichannel-session/internal/service"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file - try multiple locations
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			fmt.Printf("Loaded .env from: %s\n", p)
			break
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCloser, err := logger.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	defer logCloser.Close()

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("durable_driver", cfg.Durable.Driver).
		Msg("Starting omnichannel session server")

	ctx := context.Background()

	// Customer database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := postgres.RunMigrations(cfg.Database.DSN(), cfg.Database.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Redis
	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Durable session backend
	backend, closeBackend, err := openDurable(ctx, cfg.Durable)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open durable session backend")
	}
	defer closeBackend()

	m := metrics.New()
	registry := memory.NewRegistry()
	identity := memory.NewIdentityIndex(redis.NewIdentityMirror(redisClient, cfg.Redis.IdentityTTL))
	seedCustomers(ctx, identity, cfg.Session.SeedFile)

	durable := service.NewDurableSync(backend, cfg.Durable, m)
	customers := service.NewCustomerService(postgres.NewCustomerRepository(db), identity)
	sessions := service.NewSessionService(registry, identity, durable, customers, m, service.NewSessionOptions(cfg.Session))
	auth := service.NewAuthService(
		customers,
		identity,
		sessions,
		security.NewPasswordHasher(cfg.Auth.BcryptCost),
		security.NewQRManager(cfg.Auth.QRSecret, cfg.Auth.QRTokenTTL),
		redis.NewQRTokenStore(redisClient),
		cfg.Auth.MinPasswordLength,
	)

	router := api.NewRouter(cfg, api.Dependencies{
		Sessions: sessions,
		Auth:     auth,
		Metrics:  m,
		Limiter:  redis.NewRateLimiter(redisClient, cfg.Security.RateLimit.RequestsPerMinute, cfg.Security.RateLimit.Burst),
		Ready: map[string]handler.Pinger{
			"database": db,
			"redis":    redisClient,
		},
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Drain queued durable writes before the backend closes
	if err := durable.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Durable sync did not drain")
	}

	log.Info().Msg("Server stopped")
}

func openDurable(ctx context.Context, cfg config.DurableConfig) (domain.DurableSessionBackend, func(), error) {
	switch cfg.Driver {
	case config.DurableSupabase:
		backend, err := supabase.New(cfg.Supabase)
		if err != nil {
			return nil, func() {}, err
		}
		return backend, func() {}, nil

	case config.DurableSQLite:
		backend, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, func() {}, err
		}
		return backend, func() {
			if err := backend.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close sqlite backend")
			}
		}, nil

	case config.DurableNone, "":
		log.Warn().Msg("Durable session backend disabled; sessions live only in memory")
		return nil, func() {}, nil

	default:
		return nil, func() {}, fmt.Errorf("unknown durable driver %q", cfg.Driver)
	}
}

func seedCustomers(ctx context.Context, identity *memory.IdentityIndex, path string) {
	if path == "" {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Customer seed file unavailable")
		return
	}
	defer f.Close()

	start := time.Now()
	n, err := identity.LoadCSV(ctx, f)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to load customer seed file")
		return
	}
	log.Info().Int("customers", n).Dur("took", time.Since(start)).Msg("Customer identities seeded")
}
