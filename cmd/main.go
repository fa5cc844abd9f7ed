package main

import (
	"chatgogo/realtime/internal/api/handler"
	"chatgogo/realtime/internal/chathub"
	"chatgogo/realtime/internal/config"
	"chatgogo/realtime/internal/localization"
	"chatgogo/realtime/internal/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func setupDependencies(cfg *config.Config, log *slog.Logger) (*storage.Service, *redis.Client, error) {
	// 1. PostgreSQL
	db, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	store := storage.NewStorageService(db, log)

	// 2. Міграції (Створення таблиць)
	if err := store.AutoMigrate(); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// 3. Redis потрібен лише для redis-стратегій
	var rdb *redis.Client
	if cfg.Realtime.NeedsRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect Redis: %w", err)
		}
	}

	log.Info("database and redis connections established, migrations complete", "redis", rdb != nil)
	return store, rdb, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(log)
	log.Info("starting chatgogo realtime", "environment", cfg.Environment)

	// 1. Ініціалізація залежностей
	store, rdb, err := setupDependencies(cfg, log)
	if err != nil {
		log.Error("failed to set up dependencies", "error", err)
		os.Exit(1)
	}

	texts, err := localization.NewLocalizer(cfg.Locale.Dir)
	if err != nil {
		log.Error("failed to load locales", "error", err, "dir", cfg.Locale.Dir)
		os.Exit(1)
	}

	// 2. Ядро: хаб, реєстр, кеші, черга, стратегія розсилки
	rt, err := buildRealtime(cfg, rdb, texts, log)
	if err != nil {
		log.Error("failed to build realtime core", "error", err)
		os.Exit(1)
	}
	rooms := chathub.NewRoomHandlers(chathub.Deps{
		Store:        store,
		Hub:          rt.hub,
		Registry:     rt.registry,
		Participants: rt.participants,
		Recent:       rt.recent,
		Queue:        rt.queue,
		InitialLoad:  cfg.Realtime.InitialMessageLoad,
		Texts:        texts,
		Language:     cfg.Locale.Language,
		Log:          log,
	})

	runCtx, stopRun := context.WithCancel(context.Background())
	if err := rt.start(runCtx); err != nil {
		log.Error("failed to start realtime core", "error", err)
		os.Exit(1)
	}

	// 3. Налаштування Gin та роутингу
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	checks := map[string]handler.HealthCheck{"postgres": store.Ping}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	h := handler.NewHandler(handler.Deps{
		Hub:      rt.hub,
		Registry: rt.registry,
		Rooms:    rooms,
		Store:    store,
		Recent:   rt.recent,
		Queue:    rt.queue,
		Auth:     handler.NewAuthenticator(cfg.JWT),
		Checks:   checks,
		Log:      log,
	})

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        handler.NewRouter(h),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		log.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	// HTTP зупиняється першим, ядро чекає на нього перед дренажем черги
	httpDone := make(chan struct{})
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Server.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				defer close(httpDone)
				return server.Shutdown(ctx)
			},
			"realtime": func(ctx context.Context) error {
				select {
				case <-httpDone:
				case <-ctx.Done():
				}
				defer stopRun()
				err := rt.stop(ctx, cfg.Realtime.QueueShutdownGrace, log)

				if rdb != nil {
					if cerr := rdb.Close(); cerr != nil && err == nil {
						err = cerr
					}
				}
				if cerr := store.Close(); cerr != nil && err == nil {
					err = cerr
				}
				return err
			},
		},
	)

	exitCode := <-wait
	log.Info("application exited", "code", exitCode)
	os.Exit(exitCode)
}
