package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ble-adv-parser/config"
	"ble-adv-parser/devices"
	"ble-adv-parser/scanner"

	"go.uber.org/zap"
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

// realMain returns the process exit code so deferred calls run before exit.
func realMain(args []string) int {
	fs := flag.NewFlagSet("ble-adv-parser", flag.ContinueOnError)
	configPath := fs.String("c", "", "Path to an optional YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("starting BLE advertising parser")
	cfg.PrintConfig(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("parser stopped with error", zap.Error(err))
		return 1
	}
	logger.Info("BLE advertising parser stopped")
	return 0
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := connectDB(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer store.Close()

	var publisher callbackPublisher
	if cfg.PubSubEnabled() {
		pub, err := newPubSubPublisher(ctx, cfg.PubSub, logger)
		if err != nil {
			return fmt.Errorf("init pubsub: %w", err)
		}
		defer pub.Close()
		publisher = pub
	} else {
		logger.Info("pubsub not configured; callbacks disabled")
	}

	tracker := devices.NewTracker()
	pruner, err := devices.NewPruner(tracker, cfg.Devices.PruneSchedule, cfg.Devices.MaxAge, logger)
	if err != nil {
		return err
	}
	pruner.Start()
	defer pruner.Stop()

	var wg sync.WaitGroup

	var bleScanner *scanner.Scanner
	if cfg.Scanner.Enabled {
		bleScanner = scanner.New(scanner.Filter{
			MACAddresses: cfg.Scanner.MACAddresses,
			NameContains: cfg.Scanner.NameContains,
		}, func(c scanner.Capture) {
			tracker.Observe(devices.Observation{
				Address: c.Address,
				Name:    c.Name,
				RSSI:    c.RSSI,
				Raw:     c.Raw,
				SeenAt:  c.SeenAt,
			})
		}, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bleScanner.Start(ctx); err != nil {
				logger.Error("BLE scanner failed", zap.Error(err))
			}
		}()
	}

	srv := newServer(store, publisher, tracker, logger, cfg.HTTP.PayloadPreviewChars)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("parser listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok {
			runErr = fmt.Errorf("ListenAndServe: %w", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown http server", zap.Error(err))
	}

	if bleScanner != nil {
		if err := bleScanner.Stop(); err != nil {
			logger.Error("failed to stop BLE scanner", zap.Error(err))
		}
	}

	logger.Info("waiting for goroutines to finish")
	wg.Wait()

	return runErr
}
