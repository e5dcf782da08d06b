package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"impactledger/internal/app"
	jwttoken "impactledger/internal/jwt_token"
	"impactledger/internal/ledger"
	"impactledger/internal/oracle"
	"impactledger/internal/platform/config"
	"impactledger/internal/platform/httpserver"
	"impactledger/internal/platform/kafka"
	"impactledger/internal/platform/logger"
	"impactledger/internal/platform/metrics"
	"impactledger/internal/platform/postgres"
	"impactledger/internal/platform/redis"
	ratelimit "impactledger/internal/ratelimit/middleware"
	ratelimitmodels "impactledger/internal/ratelimit/models"
	"impactledger/internal/ratelimit/store/bucket"
	httptransport "impactledger/internal/transport/http"
	auditpostgres "impactledger/pkg/platform/audit/store/postgres"
	"impactledger/pkg/platform/audit/worker"
	"impactledger/pkg/platform/circuit"
	"impactledger/pkg/platform/tx"
)

const (
	shutdownTimeout  = 10 * time.Second
	readinessTimeout = 2 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger HTTP API, payout dispatcher and outbox relay",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

// backend is the storage the app runs on. db is nil for the in-memory backend.
type backend struct {
	stores  app.Stores
	manager tx.Manager
	db      *sql.DB
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.FromEnv()
	log := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	genesis, err := loadGenesis(cfg.GenesisPath, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	if be.db != nil {
		defer be.db.Close()
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	a, err := app.New(be.stores, be.manager, app.Options{
		Genesis: genesis,
		Rates:   rateSource(cfg, redisClient, m, log),
		Payout:  cfg.Payout,
		Logger:  log,
		Metrics: m,
	})
	if err != nil {
		return fmt.Errorf("wire ledger: %w", err)
	}
	if err := a.Bootstrap(ctx); err != nil {
		return err
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)
	api := httptransport.NewRouter(log, jwttoken.NewJWTServiceAdapter(jwtService), rateLimiter(cfg, redisClient, log).RateLimit,
		httptransport.NewNGOHandler(a.NGOs, a.Donations, a.Transfers, log),
		httptransport.NewMilestoneHandler(a.Milestones, log),
		httptransport.NewGovernanceHandler(a.Governor, a.Tokens, a.Timelock, log),
		httptransport.NewRegistryHandler(a.Registry, a.Roles, a.Fees, a.Events, log),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/ready", httpserver.Readiness(readinessChecks(be, redisClient), readinessTimeout))
	mux.Handle("/", api)
	srv := httpserver.New(cfg.Addr, mux, httpserver.WithErrorLog(log))

	relay, closeRelay, err := outboxRelay(ctx, cfg, be, m, log)
	if err != nil {
		return err
	}
	defer closeRelay()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting impactledger", "addr", cfg.Addr, "postgres", be.db != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.Dispatcher.Run(gctx)
	})
	if relay != nil {
		g.Go(func() error {
			if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	log.Info("impactledger stopped")
	return err
}

func loadGenesis(path string, log *slog.Logger) (config.Genesis, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Warn("genesis file not found, using defaults", "path", path)
		return config.DefaultGenesis(), nil
	}
	return config.LoadGenesis(path)
}

// openBackend picks Postgres when DATABASE_URL is set and migrates it; the
// in-memory backend otherwise.
func openBackend(ctx context.Context, cfg config.Server, log *slog.Logger) (backend, error) {
	if cfg.Storage.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, ledger state is kept in memory")
		return backend{stores: app.MemoryStores(), manager: ledger.NewMemoryTx()}, nil
	}
	db, err := postgres.Open(ctx, cfg.Storage)
	if err != nil {
		return backend{}, err
	}
	results, err := postgres.Migrate(ctx, db)
	if err != nil {
		_ = db.Close()
		return backend{}, err
	}
	log.Info("database migrated", "applied", len(results))
	return backend{
		stores:  app.PostgresStores(db),
		manager: ledger.NewPostgresTx(db, cfg.Storage.TxTimeout),
		db:      db,
	}, nil
}

func readinessChecks(be backend, client *redis.Client) map[string]httpserver.Check {
	checks := map[string]httpserver.Check{}
	if be.db != nil {
		checks["postgres"] = be.db.PingContext
	}
	if client != nil {
		checks["redis"] = client.Check
	}
	return checks
}

// rateSource builds the external feed chain: Redis cache in front of a
// breaker-guarded HTTP feed. A nil source means the genesis static rates.
func rateSource(cfg config.Server, client *redis.Client, m *metrics.Metrics, log *slog.Logger) oracle.RateSource {
	if cfg.Oracle.FeedURL == "" {
		return nil
	}
	breaker := circuit.New("oracle-feed",
		circuit.WithFailureThreshold(cfg.Oracle.BreakerThreshold),
		circuit.WithCooldown(cfg.Oracle.BreakerCooldown))
	var source oracle.RateSource = oracle.NewGuarded(oracle.NewHTTPFeed(cfg.Oracle.FeedURL, cfg.Oracle.Timeout), breaker, log)
	if client == nil {
		return source
	}
	return oracle.NewRedisCache(client, source, cfg.Redis.RateTTL,
		oracle.WithCacheLogger(log), oracle.WithCacheMetrics(m))
}

func rateLimiter(cfg config.Server, client *redis.Client, log *slog.Logger) *ratelimit.Middleware {
	var store ratelimit.BucketStore = bucket.NewInMemoryBucketStore()
	if client != nil {
		store = bucket.NewRedisBucketStore(client)
	}
	limits := map[ratelimitmodels.EndpointClass]ratelimitmodels.Limit{
		ratelimitmodels.ClassRead:  {Requests: cfg.RateLimit.ReadsPerMinute, Window: time.Minute},
		ratelimitmodels.ClassWrite: {Requests: cfg.RateLimit.WritesPerMinute, Window: time.Minute},
	}
	return ratelimit.New(store, limits, log, ratelimit.WithDisabled(cfg.RateLimit.Disabled))
}

// outboxRelay publishes committed ledger events to Kafka. It needs the
// Postgres outbox; the memory backend has no relay.
func outboxRelay(ctx context.Context, cfg config.Server, be backend, m *metrics.Metrics, log *slog.Logger) (*worker.Relay, func(), error) {
	noop := func() {}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, noop, nil
	}
	if be.db == nil {
		log.Warn("KAFKA_BROKERS set without DATABASE_URL, outbox relay disabled")
		return nil, noop, nil
	}
	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return nil, noop, err
	}
	relay := worker.NewRelay(auditpostgres.New(be.db), producer, cfg.Kafka.TopicPrefix,
		worker.WithLogger(log),
		worker.WithMetrics(m),
		worker.WithInterval(cfg.Kafka.PollInterval),
		worker.WithBatchSize(cfg.Kafka.BatchSize),
		worker.WithTx(be.manager.RunInTx),
	)
	if err := producer.EnsureTopics(ctx, 1, relay.Topics()...); err != nil {
		producer.Close()
		return nil, noop, err
	}
	return relay, producer.Close, nil
}
