// main package for the voice-gateway service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/book-expert/voice-gateway/internal/config"
	"github.com/book-expert/voice-gateway/internal/core"
	"github.com/book-expert/voice-gateway/internal/engine"
	"github.com/book-expert/voice-gateway/internal/objectstore"
	"github.com/book-expert/voice-gateway/internal/server"
	"github.com/book-expert/voice-gateway/internal/worker"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "voice-gateway.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// buildRegistry registers a builder per engine. Construction stays lazy: a
// missing runtime only surfaces when a request first needs that engine.
func buildRegistry(cfg *config.Config, log *logger.Logger) *engine.Registry {
	registry := engine.NewRegistry(log)

	registry.Register(engine.KindEdgeTTS, func() (core.Engine, error) {
		return engine.NewEdgeTTS(cfg.Engines.EdgeTTS, log)
	})

	registry.Register(engine.KindIndexTTS, func() (core.Engine, error) {
		return engine.NewIndexTTS(cfg.Engines.IndexTTS, log)
	})

	registry.Register(engine.KindCoquiTTS, func() (core.Engine, error) {
		return engine.NewCoquiTTS(cfg.Engines.CoquiTTS, log)
	})

	return registry
}

// startWorker connects to NATS and runs the chunk-rendering worker. It is
// only called when a NATS URL is configured.
func startWorker(
	ctx context.Context,
	cfg *config.Config,
	registry *engine.Registry,
	log *logger.Logger,
) error {
	natsConnection, connectErr := nats.Connect(cfg.NATS.URL)
	if connectErr != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, connectErr)
	}
	defer natsConnection.Close()

	jetstreamContext, jsErr := natsConnection.JetStream()
	if jsErr != nil {
		return fmt.Errorf("failed to create JetStream context: %w", jsErr)
	}

	textStore, textErr := objectstore.NewBucket(jetstreamContext, cfg.NATS.TextObjectStoreBucket)
	if textErr != nil {
		return fmt.Errorf("failed to open text bucket: %w", textErr)
	}

	audioStore, audioErr := objectstore.NewBucket(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if audioErr != nil {
		return fmt.Errorf("failed to open audio bucket: %w", audioErr)
	}

	eng, engineErr := registry.Get(engine.KindEdgeTTS)
	if engineErr != nil {
		return fmt.Errorf("failed to load rendering engine: %w", engineErr)
	}

	renderer, isRenderer := eng.(worker.Renderer)
	if !isRenderer {
		return engine.ErrUnsupportedOperation
	}

	workDir := cfg.Paths.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}

	natsWorker := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.TextProcessedSubject,
		textStore,
		audioStore,
		renderer,
		workDir,
		log,
	)

	runErr := natsWorker.Run(ctx)
	if runErr != nil {
		return fmt.Errorf("worker stopped: %w", runErr)
	}

	return nil
}

func run() error {
	bootstrapLog, bootstrapErr := setupLogger(os.TempDir())
	if bootstrapErr != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", bootstrapErr)

		return bootstrapErr
	}

	cfg, configErr := config.Load(bootstrapLog)
	if configErr != nil {
		bootstrapLog.Error("Failed to load configuration: %v", configErr)

		return fmt.Errorf("failed to load configuration: %w", configErr)
	}

	finalLog, logErr := setupLogger(cfg.Paths.BaseLogsDir)
	if logErr != nil {
		bootstrapLog.Error("Failed to create final logger: %v", logErr)

		return fmt.Errorf("failed to create final logger: %w", logErr)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	registry := buildRegistry(cfg, finalLog)

	srv, serverErr := server.New(cfg, finalLog, registry)
	if serverErr != nil {
		finalLog.Error("Failed to create server: %v", serverErr)

		return fmt.Errorf("failed to create server: %w", serverErr)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	finalLog.System(
		"Voice gateway starting on %s:%d", cfg.HTTP.Host, cfg.HTTP.Port,
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return srv.Run(groupCtx)
	})

	if cfg.NATS.URL != "" {
		group.Go(func() error {
			return startWorker(groupCtx, cfg, registry, finalLog)
		})
	}

	waitErr := group.Wait()
	if waitErr != nil {
		return fmt.Errorf("service stopped: %w", waitErr)
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
