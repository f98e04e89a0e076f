// Worker runs the session cleanup sweeps and, when KAFKA_BROKERS and LOKI_URL are set, relays
// telemetry events from Kafka to Loki. Run one worker per deployment; set CLEANUP_IN_PROCESS=false
// on the servers so sweeps are not duplicated.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"authcore/internal/config"
	"authcore/internal/db"
	"authcore/internal/security"
	"authcore/internal/session/cleanup"
	sessionrepo "authcore/internal/session/repository"
	"authcore/internal/session/service"
	"authcore/internal/telemetry/loki"
	"authcore/internal/telemetry/relay"
	userrepo "authcore/internal/user/repository"
)

func main() {
	once := flag.String("once", "", "run a single sweep and exit: daily or weekly")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger, *once); err != nil {
		logger.Fatal("worker exited", zap.Error(err))
	}
}

func run(logger *zap.Logger, once string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if err := cfg.RequireAuth(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

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
	engine := service.NewEngine(userrepo.NewPostgresRepository(conn), sessionrepo.NewPostgresRepository(conn),
		security.NewHasher(cfg.BcryptCost), tokens,
		service.Config{MaxSessionsPerUser: cfg.MaxSessionsPerUser, CleanupBatchSize: cfg.CleanupBatchSize},
		service.Options{Logger: logger})

	sched := cleanup.New(engine, cleanup.Config{
		Interval:     cfg.CleanupInterval(),
		DeepInterval: cfg.DeepCleanupInterval(),
		MaxIdle:      cfg.SessionMaxIdle(),
		RunOnStart:   true,
	}, logger)

	switch once {
	case "":
	case "daily":
		sched.RunDaily(ctx)
		return nil
	case "weekly":
		sched.RunWeekly(ctx)
		return nil
	default:
		return errors.New("-once must be daily or weekly")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	brokers := cfg.TelemetryKafkaBrokersList()
	if len(brokers) > 0 && cfg.LokiURL != "" {
		lc, err := loki.NewClient(cfg.LokiURL, "authcore-telemetry")
		if err != nil {
			stop()
			wg.Wait()
			return err
		}
		reader := relay.NewReader(brokers, cfg.TelemetryKafkaTopic, cfg.KafkaGroupID)
		defer reader.Close()
		logger.Info("relaying telemetry",
			zap.String("topic", cfg.TelemetryKafkaTopic), zap.String("group", cfg.KafkaGroupID), zap.String("loki", cfg.LokiURL))
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Run(ctx, reader, lc, logger)
		}()
	}

	wg.Wait()
	logger.Info("worker stopped")
	return nil
}
