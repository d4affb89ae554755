package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duet/internal/auth"
	"duet/internal/commands"
	"duet/internal/config"
	"duet/internal/http"
	"duet/internal/logging"
	"duet/internal/notify"
	"duet/internal/pipeline"
	"duet/internal/storage"
	"duet/internal/ws"

	"golang.org/x/sync/errgroup"
)

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		return storage.NewRedisStore(ctx, cfg.RedisURL)
	case config.StoreBackendBolt:
		return storage.NewBboltStorage(cfg.DBFile)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func newNotifier(cfg *config.Config) notify.Notifier {
	if len(cfg.KafkaBrokers) == 0 {
		slog.Info("KAFKA_BROKERS not set, push notifications disabled")
		return notify.Nop{}
	}
	return notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("duet", flag.ContinueOnError)
	addUser := fs.String("add-user", "", "User id to register through the admin API of a running server")
	displayName := fs.String("display-name", "", "Display name for -add-user")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*addUser != "")
	if err != nil {
		return err
	}

	slog.SetDefault(logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat))

	if *addUser != "" {
		return commands.AddUser(*addUser, *displayName, cfg, os.Stdout)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	authService, err := auth.NewAuthService(ctx, cfg.AuthConfig())
	if err != nil {
		return err
	}

	hub := ws.NewHub()
	pipe := pipeline.New(store, hub, newNotifier(cfg))
	defer func() {
		if err := pipe.Close(); err != nil {
			slog.Error("Failed to close notifier", "error", err)
		}
	}()

	adminServer := http.NewAdminServer(store, cfg.AdminAddr)
	apiServer := http.NewAPIServer(authService, hub, store, pipe, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Admin server shutdown error", "error", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Application error", "error", err)
		os.Exit(1)
	}
}
