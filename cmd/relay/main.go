package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"whiteboard-relay/auth"
	"whiteboard-relay/infrastructure/http/server"
	"whiteboard-relay/internal"
	"whiteboard-relay/observability"
	"whiteboard-relay/runtime"
	"whiteboard-relay/runtime/workers"

	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the relay and serves until a signal arrives or the listener fails.
// Deferred cleanups always run before the exit code reaches main.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Relay core
	registry := runtime.NewRegistry()
	metrics := observability.NewMetrics(registry)
	relay := runtime.NewRelay(logger, registry, metrics)

	probe, err := observability.NewProcessProbe()
	if err != nil {
		// /stats still works without process figures
		logger.Warn("process probe unavailable", "error", err)
	}

	// 4. Background workers
	var processReader workers.ProcessReader
	if probe != nil {
		processReader = probe
	}
	reporter := workers.NewStatsReporterWorker(logger, registry, processReader, config.StatsInterval)
	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		supervisor.Add(reporter).Run(ctx)
	}()

	var signer *auth.Signer
	if config.AuthSecret != "" {
		signer = auth.NewSigner(config.AuthSecret)
		logger.Info("Token authentication enabled on /ws")
	}

	relayServer := server.NewRelayServer(logger, relay, registry, metrics, probe, server.Options{
		AllowedOrigins: config.Origins(),
		Conn:           config.ConnOptions(),
		Signer:         signer,
	})

	// 5. HTTP Server
	// Every request context derives from ctx, so a shutdown signal also
	// closes the hijacked websocket connections.
	httpServer := &http.Server{
		Addr:              config.Addr(),
		Handler:           relayServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting relay server", "address", config.Addr(), "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	if err := awaitStop(ctx, stop, errChan, supervisorDone); err != nil {
		return exitRuntime, err
	}
	logger.Info("Shutdown signal received")

	// 7. Graceful Shutdown
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("shutdown: %w", err)
	}
	<-supervisorDone

	rooms, connections := registry.Stats()
	logger.Info("Program stopped cleanly", "rooms", rooms, "connections", connections)
	return exitOK, nil
}

// awaitStop blocks until ctx ends or the listener fails. On failure it
// cancels the workers and waits for them before returning the error.
func awaitStop(ctx context.Context, stop context.CancelFunc, errChan <-chan error, workersDone <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		stop()
		<-workersDone
		return err
	}
}
