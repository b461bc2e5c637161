package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"lumen-backend/internal/bootstrap"
	"lumen-backend/internal/shared/config"
	"lumen-backend/internal/shared/storage/db"
	"lumen-backend/internal/shared/telemetry"
)

const (
	defaultWorkerConcurrency  = 2
	defaultPopTimeoutSeconds  = 10
	defaultShutdownTimeoutSec = 120
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	concurrency := envInt("WORKER_CONCURRENCY", defaultWorkerConcurrency)
	popTimeout := envInt("WORKER_POP_TIMEOUT_SECONDS", defaultPopTimeoutSeconds)
	shutdownTimeout := time.Duration(envInt("SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	bootstrap.DBOptions = db.DefaultWorkerOptions
	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	go app.Cleaner.RunLoop(ctx, cfg.CleanupInterval)

	log.Printf("worker started queue=%s concurrency=%d", cfg.QueueName, concurrency)

	var wg sync.WaitGroup
	for i := 0; i < max(1, concurrency); i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runWorker(ctx, app, id, popTimeout)
		}(i)
	}

	<-ctx.Done()
	log.Printf("shutdown requested, waiting up to %s for in-flight jobs", shutdownTimeout)

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight jobs")
	}
}

func runWorker(ctx context.Context, app *bootstrap.App, id, popTimeout int) {
	for {
		jobID, err := app.Queue.Pop(ctx, popTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			telemetry.Error("worker.pop_failed", map[string]any{
				"worker": id,
				"error":  err.Error(),
			})
			time.Sleep(time.Second)
			continue
		}
		if jobID == "" {
			continue
		}

		// The job's own failure is already recorded on the row; the
		// worker keeps polling either way.
		if err := app.Processor.Process(ctx, jobID); err != nil {
			telemetry.Error("worker.job_failed", map[string]any{
				"worker": id,
				"job_id": jobID,
				"error":  err.Error(),
			})
		}
	}
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return def
	}
	return val
}
