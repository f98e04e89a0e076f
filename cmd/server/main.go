package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"

	sessionv1 "authcore/api/session/v1"
	"authcore/internal/audit"
	auditrepo "authcore/internal/audit/repository"
	"authcore/internal/config"
	"authcore/internal/db"
	healthcheck "authcore/internal/health"
	policyengine "authcore/internal/policy/engine"
	"authcore/internal/security"
	"authcore/internal/server"
	"authcore/internal/server/interceptors"
	"authcore/internal/session/cleanup"
	sessionrepo "authcore/internal/session/repository"
	"authcore/internal/session/service"
	"authcore/internal/telemetry"
	otelsetup "authcore/internal/telemetry/otel"
	"authcore/internal/telemetry/producer"
	"authcore/internal/user/cache"
	userrepo "authcore/internal/user/repository"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireAuth(); err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Insecure:    cfg.OTelInsecure,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()

	emitters := []telemetry.EventEmitter{otelsetup.NewEventEmitter(providers.LoggerProvider)}
	if brokers := cfg.TelemetryKafkaBrokersList(); len(brokers) > 0 {
		kp := producer.NewKafkaProducer(brokers, cfg.TelemetryKafkaTopic)
		defer kp.Close()
		emitters = append(emitters, kp)
		logger.Info("telemetry events published to kafka", zap.Strings("brokers", brokers), zap.String("topic", cfg.TelemetryKafkaTopic))
	}
	events := telemetry.Multi(emitters...)

	users := userrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(conn), interceptors.ClientIP, logger.Named("audit"))

	tokens, err := security.NewTokenCodec(security.TokenConfig{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.RefreshSecret(),
		Issuer:        cfg.JWTIssuer,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
	})
	if err != nil {
		return err
	}
	if tokens.SharesSecret() {
		logger.Warn("JWT_REFRESH_SECRET is not set; refresh tokens are signed with the access secret", zap.Bool("security", true))
	}

	opts := service.Options{
		Audit:  auditLogger,
		Events: events,
		Meter:  providers.MeterProvider.Meter("authcore/session"),
		Logger: logger,
	}
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rc.Close()
		opts.Cache = cache.NewStatusCache(rc, cfg.UserStatusCacheTTL())
		logger.Info("access tokens checked against user status cache", zap.String("redis_addr", cfg.RedisAddr))
	}

	engine := service.NewEngine(users, sessions, security.NewHasher(cfg.BcryptCost), tokens, service.Config{
		MaxSessionsPerUser: cfg.MaxSessionsPerUser,
		CleanupBatchSize:   cfg.CleanupBatchSize,
	}, opts)

	authz, err := policyengine.NewOPAAuthorizer(ctx, "", logger)
	if err != nil {
		return err
	}

	healthSrv := health.NewServer()
	readiness := healthcheck.NewReadiness(healthSrv, conn, authz, logger, sessionv1.ServiceName)
	go readiness.Watch(ctx, healthcheck.DefaultCheckInterval)

	if cfg.CleanupInProcess {
		sched := cleanup.New(engine, cleanup.Config{
			Interval:     cfg.CleanupInterval(),
			DeepInterval: cfg.DeepCleanupInterval(),
			MaxIdle:      cfg.SessionMaxIdle(),
		}, logger)
		go sched.Run(ctx)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	s := server.NewGRPCServer(server.Deps{
		Engine: engine,
		Users:  users,
		Authz:  authz,
		Audit:  auditLogger,
		Events: events,
		Health: healthSrv,
		Logger: logger,
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		serveErr <- s.Serve(lis)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down gRPC server")
	healthSrv.Shutdown()
	s.GracefulStop()
	// let in-flight async emits finish before the exporters go away
	time.Sleep(telemetry.ShutdownDrainDuration)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("otel shutdown", zap.Error(err))
	}
	logger.Info("gRPC server stopped")
	return nil
}
