package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/qb411/cloud-health-map/internal/aggregator"
	"github.com/qb411/cloud-health-map/internal/config"
	"github.com/qb411/cloud-health-map/internal/feed"
	httpapi "github.com/qb411/cloud-health-map/internal/http"
	"github.com/qb411/cloud-health-map/internal/metrics"
	"github.com/qb411/cloud-health-map/internal/notifier"
	"github.com/qb411/cloud-health-map/internal/repository"
	"github.com/qb411/cloud-health-map/internal/scheduler"
	"github.com/qb411/cloud-health-map/internal/store"
)

// Service wires the orchestrator, scheduler, optional collaborators, and the
// HTTP server together, and owns their lifecycles.
type Service struct {
	cfg    *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	statusPub   *notifier.StatusPublisher
	streamNotif *notifier.StreamNotifier

	orch       *Orchestrator
	sched      *scheduler.Scheduler
	httpServer *httpapi.Server
}

func NewService(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	m := metrics.New()
	fetcher := feed.NewFetcher(cfg.Feed.URL, cfg.Feed.ProxyURL, cfg.Feed.Timeout, logger)
	agg := aggregator.New(cfg.Window.StatusWindow, logger)
	orch := NewOrchestrator(cfg, fetcher, agg, m, logger)

	s := &Service{
		cfg:    cfg,
		logger: logger,
		orch:   orch,
	}

	if cfg.Database.Enabled {
		db, err := openPostgres(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		orch.SetEventStore(repository.NewEventRepository(db, logger))
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			s.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.redisClient = client

		kv := store.NewRedisKV(client)
		orch.SetWindowCache(store.NewWindowCache(kv, cfg.Window.Retention, logger))

		s.streamNotif = notifier.NewStreamNotifier(client, cfg.Notify.Stream, uuid.NewString(), logger)
		orch.SetRefreshNotifier(s.streamNotif)
	}

	if cfg.MQTT.Enabled {
		pub, err := notifier.NewStatusPublisher(
			cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic, cfg.MQTT.QoS, logger)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to create status publisher: %w", err)
		}
		s.statusPub = pub
		orch.SetStatusNotifier(pub)
	}

	cycle := func(ctx context.Context) bool {
		unhealthy := orch.RunCycle(ctx)
		if unhealthy {
			m.SetRefreshInterval(cfg.Poll.ElevatedInterval)
		} else {
			m.SetRefreshInterval(cfg.Poll.NormalInterval)
		}
		return unhealthy
	}
	s.sched = scheduler.New(cfg.Poll.NormalInterval, cfg.Poll.ElevatedInterval, cycle, logger)
	orch.SetScheduler(s.sched)

	handlers := httpapi.NewHandlers(orch, logger)
	router := httpapi.NewRouter(handlers, m.Handler())
	s.httpServer = httpapi.NewServer(cfg.HTTP.Addr, router, logger)

	return s, nil
}

// Start hydrates state, launches the HTTP server and the refresh-signal
// consumer, and then blocks on the scheduler loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting cloud-health-map service",
		zap.String("feed_url", s.cfg.Feed.URL),
		zap.Bool("persistence", s.db != nil),
		zap.Bool("cache", s.redisClient != nil),
		zap.Bool("status_publisher", s.statusPub != nil),
	)

	s.orch.Hydrate(ctx)

	if s.streamNotif != nil {
		go s.streamNotif.Consume(ctx, s.orch.TriggerRefresh)
	}

	go func() {
		if err := s.httpServer.Start(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return s.sched.Run(ctx)
}

// Stop shuts the HTTP server down and releases every collaborator.
func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("Stopping cloud-health-map service")

	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping HTTP server", zap.Error(err))
		}
	}
	s.close()

	s.logger.Info("Service stopped")
	return nil
}

func (s *Service) close() {
	if s.statusPub != nil {
		s.statusPub.Close()
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Error closing redis connection", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}
}

func openPostgres(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
