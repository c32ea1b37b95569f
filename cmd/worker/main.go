package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/classguard/internal/config"
	"github.com/your-org/classguard/internal/models"
	"github.com/your-org/classguard/internal/observability"
	"github.com/your-org/classguard/internal/pipeline"
	"github.com/your-org/classguard/internal/queue"
	"github.com/your-org/classguard/internal/storage"
	"github.com/your-org/classguard/internal/vision"
	"github.com/your-org/classguard/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting classguard photo worker",
		"workers", cfg.Vision.WorkerCount,
		"cpu_cores", runtime.NumCPU(),
	)

	// Initialize ONNX Runtime
	if err := vision.InitRuntime(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer vision.DestroyRuntime()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	blobs, err := storage.NewBlobStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Load models and wire the pipeline
	pipe, cleanup, err := pipeline.NewONNX(cfg, db, blobs)
	if err != nil {
		slog.Error("init pipeline", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.Info("pipeline initialized")

	// Create NATS consumer
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start consuming photo jobs
	err = consumer.ConsumeJobs(ctx, "photo-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var job models.PhotoJob
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			slog.Error("unmarshal photo job", "error", err)
			return nil // Don't retry on unmarshal errors
		}

		res, err := pipe.ProcessStored(ctx, job.JobID, job.ClassName, job.SourceKey)
		if err != nil {
			return fmt.Errorf("process photo %s: %w", job.JobID, err)
		}

		evt := dto.WSEvent{
			Type:      "photo_processed",
			ClassName: res.ClassName,
			ResultID:  res.ID,
			Faces:     len(res.Faces),
			OutputRef: res.OutputKey,
		}
		if res.Status == models.StatusFailed {
			evt.Type = "photo_failed"
			evt.Error = res.Error
		} else {
			for _, f := range res.Faces {
				if f.Redacted {
					evt.Redacted++
				}
			}
		}
		if err := producer.PublishEvent(ctx, res.ClassName, evt); err != nil {
			slog.Warn("publish completion event", "error", err)
		}

		return nil
	}, cfg.Vision.WorkerCount)
	if err != nil {
		slog.Error("start photo consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", ":8082")
		if err := http.ListenAndServe(":8082", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
