package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"taskflow/api"
	"taskflow/cache"
	"taskflow/common"
	"taskflow/config"
	"taskflow/reminder"
	"taskflow/scheduler"
	"taskflow/storage/sqlite"
	"taskflow/system"
	"taskflow/ws"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := common.InitLogger(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		log.Fatalf("initialising logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.InitDB(ctx, cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	var locker reminder.Locker
	if cfg.Redis.Addr != "" {
		client, err := cache.InitRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable, running without cache and rate limiting", zap.Error(err))
		} else {
			defer client.Close()
			cache.RedisClient = client
			locker = cache.NewLocker(client, logger)
			logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
		}
	}

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	notifications := sqlite.NewNotificationStore(db)
	pool := system.NewNotificationWorkerPool(notifications, hub, cfg.Workers.Notifications, logger)
	pool.Start(ctx)
	defer pool.Stop()

	mode, err := reminder.ParseDedupMode(cfg.Reminder.DedupMode)
	if err != nil {
		return err
	}
	engine := reminder.NewEngine(sqlite.NewTaskStore(db), notifications, logger, reminder.Options{
		Mode:      mode,
		Lookback:  cfg.Reminder.Lookback,
		PageSize:  cfg.Reminder.PageSize,
		Timeout:   cfg.Reminder.Timeout,
		Publisher: hub,
		Locker:    locker,
	})

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	sched, err := scheduler.New(ctx, engine, scheduler.Config{
		ImminentSpec: cfg.Reminder.ImminentCron,
		UpcomingSpec: cfg.Reminder.UpcomingCron,
		Location:     loc,
	}, logger)
	if err != nil {
		return err
	}
	sched.Start()
	logger.Info("deadline reminders scheduled",
		zap.String("dedup_mode", string(engine.Mode())),
		zap.String("imminent", cfg.Reminder.ImminentCron),
		zap.String("upcoming", cfg.Reminder.UpcomingCron))

	h := system.NewHandler(db, pool, common.NewJWT(cfg.JWT.Secret, cfg.JWT.TTL), logger)
	router, err := api.NewRouter(h, hub, cfg, common.AccessLogWriter(cfg.Log.File), logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server is running", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler did not stop cleanly", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
