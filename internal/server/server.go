package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/quizinho/internal/api"
	"github.com/victornm/quizinho/internal/event"
	"github.com/victornm/quizinho/internal/ident"
	"github.com/victornm/quizinho/internal/lifecycle"
	"github.com/victornm/quizinho/internal/payment"
	"github.com/victornm/quizinho/internal/qrcode"
	"github.com/victornm/quizinho/internal/retention"
	"github.com/victornm/quizinho/internal/store"
	"github.com/victornm/quizinho/internal/telemetry"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Log struct {
		Level  string
		Format string
	}

	PublicBaseURL string
	CronSecret    string

	Store struct {
		Backend string
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Pubsub struct {
		Prefix string
	}

	Postgres struct {
		DSN string
	}

	ImgBB struct {
		APIKey string
	}

	Stripe struct {
		SecretKey     string
		WebhookSecret string
		Price         string
		Currency      string
	}

	Retention struct {
		Concurrency int
	}
}

// DefaultConfig is what Load starts from before reading the file and the environment.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.PublicBaseURL = "http://localhost:8080"
	c.Store.Backend = BackendRedis
	c.Redis.Addrs = []string{"localhost:6379"}
	c.Redis.Prefix = "quizinho"
	c.Pubsub.Prefix = "quizinho"
	c.Stripe.Price = "5.00"
	c.Stripe.Currency = "brl"
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	store struct {
		quizzes lifecycle.Store
		redis   *store.Redis
	}

	service struct {
		lifecycle *lifecycle.Service
		retention *retention.Service
	}

	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	health   *health.Server

	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	switch s.c.Store.Backend {
	case BackendRedis, "":
	case BackendPostgres:
		if err := s.initPostgres(); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	default:
		return fmt.Errorf("unknown store backend %q", s.c.Store.Backend)
	}

	return nil
}

// initRedis connects the client shared by the quiz store, webhook dedup and pubsub.
func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(s.c.Postgres.DSN)
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() error {
	s.store.redis = store.NewRedis(s.infra.redis, s.c.Redis.Prefix)
	s.store.quizzes = s.store.redis
	if s.infra.postgres != nil {
		s.store.quizzes = store.NewPostgres(s.infra.postgres)
	}

	gw, err := payment.NewGateway(payment.Config{
		SecretKey:     s.c.Stripe.SecretKey,
		WebhookSecret: s.c.Stripe.WebhookSecret,
		PublicBaseURL: s.c.PublicBaseURL,
		Price:         s.c.Stripe.Price,
		Currency:      s.c.Stripe.Currency,
	})
	if err != nil {
		return fmt.Errorf("payment: %w", err)
	}

	s.service.lifecycle = lifecycle.NewService(lifecycle.Config{
		EventBus:      s.eb,
		Store:         s.store.quizzes,
		IDs:           ident.NewAllocator(),
		Publisher:     qrcode.NewPublisher(qrcode.Config{APIKey: s.c.ImgBB.APIKey}),
		Gateway:       gw,
		Claimer:       s.store.redis,
		PublicBaseURL: s.c.PublicBaseURL,
	})

	s.service.retention = retention.NewService(retention.Config{
		EventBus:    s.eb,
		Store:       s.store.quizzes,
		Concurrency: s.c.Retention.Concurrency,
	})

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = telemetry.NewMetrics(s.registry)
	s.metrics.Subscribe(s.eb)

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.HTTPLogger(), s.metrics.HTTPMiddleware())
	e.GET("/healthz", s.healthz)

	s.grpc = grpc.NewServer(telemetry.GRPCServerOptions()...)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Lifecycle:    s.service.lifecycle,
		Retention:    s.service.retention,
		Redis:        s.infra.redis,
		PubsubPrefix: s.c.Pubsub.Prefix,
		CronSecret:   s.c.CronSecret,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.infra.redis.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	if s.infra.postgres != nil {
		if err := s.infra.postgres.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

// Sweep runs one retention pass outside the HTTP trigger.
func (s *Server) Sweep(ctx context.Context) (retention.SweepResult, error) {
	return s.service.retention.Sweep(ctx)
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	if err := s.infra.redis.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close redis failed", "error", err)
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
