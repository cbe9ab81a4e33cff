package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/lmittmann/tint"

	"github.com/confmesh/sfu/internal/config"
	"github.com/confmesh/sfu/internal/media"
	"github.com/confmesh/sfu/internal/recorder"
	"github.com/confmesh/sfu/internal/room"
	"github.com/confmesh/sfu/internal/signalling"
	"github.com/confmesh/sfu/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configDir := "conf"
	if dir := os.Getenv("SFU_CONFIG_DIR"); dir != "" {
		configDir = dir
	}
	manager, err := config.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := manager.Get()

	setupLogging(cfg.Server.LogLevel)
	log := slog.Default()

	pool, err := media.NewPool(log, media.Config{
		WorkerBin:      cfg.Media.WorkerBin,
		NumWorkers:     cfg.Media.NumWorkers,
		ListenIP:       cfg.Media.ListenIP,
		AnnouncedIP:    cfg.Media.AnnouncedIP,
		RtcMinPort:     cfg.Media.MinPort,
		RtcMaxPort:     cfg.Media.MaxPort,
		SingleListener: cfg.Media.SingleListener,
		LogLevel:       cfg.Server.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("spawn media workers: %w", err)
	}
	defer pool.Close()

	roomStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer roomStore.Close()

	registry := room.NewRegistry(log, pool, roomStore, func() room.Settings {
		current := manager.Get()
		return room.Settings{
			Room:               current.Room,
			Recording:          current.Recording,
			MaxIncomingBitrate: current.Media.MaxIncomingBitrate,
		}
	})

	var uploader recorder.Uploader
	if cfg.Recording.UploadToS3 {
		s3up, err := recorder.NewS3Uploader(context.Background(), cfg.Recording.S3)
		if err != nil {
			return fmt.Errorf("s3 uploader: %w", err)
		}
		uploader = s3up
	}
	sink := recorder.NewSink(log, cfg.Recording, uploader)

	app := fiber.New(fiber.Config{
		BodyLimit:             50 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	server := signalling.NewServer(log, &cfg, app, registry, sink)
	server.SetWorkerHealth(pool)
	server.SetupRoutes()
	defer server.Close()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		_ = app.Shutdown()
	}()

	addr := cfg.Server.ListenIP + ":" + strconv.Itoa(cfg.Server.ListenPort)
	log.Info("listening", "addr", addr)
	if cfg.Server.TLSCrtFile != nil && cfg.Server.TLSKeyFile != nil {
		return app.ListenTLS(addr, *cfg.Server.TLSCrtFile, *cfg.Server.TLSKeyFile)
	}
	return app.Listen(addr)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: lvl})))
}

func openStore(cfg config.AppConfig, log *slog.Logger) (store.RoomStore, error) {
	if cfg.Redis.Addr == "" {
		return store.NewMemoryStore(), nil
	}
	redisStore, err := store.NewRedisStore(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("redis store: %w", err)
	}
	log.Info("using redis store", "addr", cfg.Redis.Addr)
	return redisStore, nil
}
