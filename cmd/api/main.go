package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/config"
	appHTTP "github.com/cmlabs-hris/hris-attendance-engine/internal/handler/http"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/cache"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/clock"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/cron"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/database"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/jwt"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/repository/postgresql"
	attendanceService "github.com/cmlabs-hris/hris-attendance-engine/internal/service/attendance"
	periodService "github.com/cmlabs-hris/hris-attendance-engine/internal/service/period"
	queueService "github.com/cmlabs-hris/hris-attendance-engine/internal/service/queue"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/service/statuscache"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		slog.Error("Application stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.App.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL(), database.PoolConfig{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	if cfg.Database.AutoMigrate {
		if err := postgresql.Migrate(ctx, db); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
		logger.Info("Database schema migrated")
	}

	store, closeStore, err := newStore(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	realClock := clock.Real()

	resolver := periodService.NewResolver(periodService.Config{
		Location:             cfg.Location(),
		EarlyCheckIn:         cfg.Period.EarlyCheckIn,
		OvertimeEarlyCheckIn: cfg.Period.OvertimeEarlyCheckIn,
		LateCheckIn:          cfg.Period.LateCheckIn,
		LateCheckOut:         cfg.Period.LateCheckOut,
		VeryLateCheckOut:     cfg.Period.VeryLateCheckOut,
		TransitionLookahead:  cfg.Period.TransitionLookahead,
		TransitionGrace:      cfg.Period.TransitionGrace,
		RelevanceLookback:    cfg.Period.RelevanceLookback,
		StateCacheTTL:        cfg.Period.StateCacheTTL,
		CacheGranularity:     cfg.Period.CacheGranularity,
	}, logger)

	bridge := statuscache.NewBridge(statuscache.Config{
		FreshTTL: cfg.StatusCache.FreshTTL,
		StaleTTL: cfg.StatusCache.StaleTTL,
		LockTTL:  cfg.StatusCache.LockTTL,
		LockWait: cfg.StatusCache.LockWait,
	}, store, realClock, logger)

	attendanceRepo := postgresql.NewAttendanceRepository(db)
	scheduleRepo := postgresql.NewScheduleRepository(db)
	txManager := postgresql.NewTxManager(db)

	attendanceSvc := attendanceService.NewAttendanceService(
		attendanceRepo,
		scheduleRepo,
		txManager,
		resolver,
		bridge,
		attendanceService.Config{
			Queue: queueService.Config{
				Capacity:         cfg.Queue.Capacity,
				HardTimeout:      cfg.Queue.HardTimeout,
				OperationTimeout: cfg.Queue.OperationTimeout,
				Retention:        cfg.Queue.Retention,
			},
			StalledThreshold:  cfg.Queue.StalledThreshold,
			AutoCompleteBatch: cfg.Queue.AutoCompleteBatch,
		},
		realClock,
		logger,
	)

	queueCtx, cancelQueue := context.WithCancel(context.Background())
	defer cancelQueue()
	attendanceSvc.Queue().Start(queueCtx)

	scheduler := cron.NewScheduler(logger)
	cron.NewAttendanceJobs(
		attendanceSvc,
		attendanceSvc.Queue(),
		cfg.Cron.AutoCompleteInterval,
		cfg.Cron.SweepInterval,
		realClock,
		logger,
	).RegisterJobs(scheduler)
	scheduler.Start()

	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.Skew)
	attendanceHandler := appHTTP.NewAttendanceHandler(attendanceSvc, logger)
	router := appHTTP.NewRouter(appHTTP.RouterConfig{
		Env:            cfg.App.Env,
		Version:        version,
		AllowedOrigins: cfg.App.AllowedOrigins,
		RatePerSecond:  cfg.RateLimit.PerSecond,
		RateBurst:      cfg.RateLimit.Burst,
	}, JWTService, attendanceHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// wait=true requests hold the connection until the queue answers.
		WriteTimeout: cfg.Queue.HardTimeout + 10*time.Second,
		IdleTimeout:  time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server running", "addr", srv.Addr, "env", cfg.App.Env, "timezone", cfg.App.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down server", "error", err)
	}
	scheduler.Stop()
	if err := attendanceSvc.Queue().Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to drain processing queue", "error", err)
	}
	logger.Info("Shutdown complete")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// newStore picks Redis when configured. The in-memory store only coordinates a
// single instance.
func newStore(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (cache.Store, func(), error) {
	if cfg.URL == "" {
		logger.Warn("REDIS_URL not set, status cache is process-local")
		return cache.NewMemoryStore(time.Minute), func() {}, nil
	}
	client, err := cache.NewRedisClient(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Connected to redis")
	return cache.NewRedisStore(client, cfg.Prefix), func() {
		if err := client.Close(); err != nil {
			logger.Error("Failed to close redis client", "error", err)
		}
	}, nil
}
