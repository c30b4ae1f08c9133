// Command outbox-relay runs the outbox relay and reaper against a
// PostgreSQL-backed event store until terminated, then drains in-flight
// work within its configured shutdown grace period.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/jackc/pgx/v5/stdlib"

	"database/sql"

	"github.com/velmie/outbox"
	"github.com/velmie/outbox/postgres"
	"github.com/velmie/outbox/promoutbox"
)

const exitBootstrapFailure = 1

type stdLogger struct {
	logger *log.Logger
}

func (l stdLogger) Debug(msg string, args ...any) { l.logger.Printf("DEBUG %s %s", msg, formatArgs(args)) }
func (l stdLogger) Info(msg string, args ...any)  { l.logger.Printf("INFO %s %s", msg, formatArgs(args)) }
func (l stdLogger) Warn(msg string, args ...any)  { l.logger.Printf("WARN %s %s", msg, formatArgs(args)) }
func (l stdLogger) Error(msg string, args ...any) { l.logger.Printf("ERROR %s %s", msg, formatArgs(args)) }

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		val := any("<missing>")
		if i+1 < len(args) {
			val = args[i+1]
		}
		pairs = append(pairs, fmt.Sprintf("%v=%v", args[i], val))
	}

	return strings.Join(pairs, " ")
}

func main() {
	configPath := flag.String("config", "", "Directory containing outbox-relay.yaml")
	flag.Parse()

	settings, err := loadSettings(*configPath)
	if err != nil {
		log.Print(err)
		os.Exit(exitBootstrapFailure)
	}

	if err := run(settings); err != nil {
		log.Print(err)
		os.Exit(exitBootstrapFailure)
	}
}

func run(settings *Settings) error {
	logger := stdLogger{logger: log.New(os.Stdout, "", log.LstdFlags)}

	db, err := sql.Open("pgx", settings.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	store, err := postgres.NewStore(db,
		postgres.WithTable(settings.Table),
		postgres.WithIdempotencyTable(settings.IdempotencyTable),
		postgres.WithDefaultMaxRetries(settings.MaxRetries),
	)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	metrics := promoutbox.NewMetrics()
	publisher := outbox.PublisherFunc(func(ctx context.Context, event outbox.Event) (outbox.PublishResult, error) {
		// The relay is transport-agnostic; a real deployment wires an
		// application-specific Publisher here (message broker, webhook,
		// gRPC call). This default treats every event as terminally
		// undeliverable so the process is safe to run as a smoke test.
		return outbox.PublishResult{Success: false, Retriable: false, Reason: "no publisher configured"}, nil
	})

	limiter := outbox.NewBacklogLimiter(store, settings.MaxBacklogSize, parseLimitAction(settings.OnLimitExceeded), logger)
	health := outbox.NewHealthChecker(store, outbox.HealthCheckerConfig{BacklogLimiter: limiter})

	relay, err := outbox.NewRelay(store, publisher,
		outbox.WithBatchSize(settings.BatchSize),
		outbox.WithLeaseSeconds(settings.LeaseSeconds),
		outbox.WithPollInterval(settings.PollInterval),
		outbox.WithConcurrency(settings.Concurrency),
		outbox.WithHeartbeatInterval(settings.HeartbeatInterval),
		outbox.WithRetryPolicy(outbox.BackoffPolicy{
			Base:         settings.RetryBackoffBase,
			Max:          settings.RetryBackoffMax,
			JitterFactor: settings.RetryJitterFactor,
		}),
		outbox.WithLogger(logger),
		outbox.WithMetrics(metrics),
		outbox.WithMetricsInterval(5*time.Second),
		outbox.WithBacklogLimiter(limiter),
	)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reaper *outbox.Reaper
	if settings.ReaperEnabled {
		reaper, err = outbox.NewReaper(store, outbox.ReaperConfig{
			Interval:     settings.ReaperInterval,
			LeaseSeconds: settings.LeaseSeconds,
			Logger:       logger,
			Metrics:      metrics,
		})
		if err != nil {
			return fmt.Errorf("init reaper: %w", err)
		}
	}

	httpServer := startHTTPServer(settings, health, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- relay.Run(ctx) }()
	if reaper != nil {
		go func() {
			if err := reaper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	}

	<-ctx.Done()
	logger.Info("outbox relay: shutdown signal received")

	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func parseLimitAction(s string) outbox.LimitAction {
	switch s {
	case "throw":
		return outbox.LimitThrow
	case "drop":
		return outbox.LimitDrop
	default:
		return outbox.LimitWarn
	}
}

func startHTTPServer(settings *Settings, health *outbox.HealthChecker, logger outbox.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		report := health.Check(r.Context())
		status := http.StatusOK
		if report.Status == outbox.HealthUnhealthy {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
		fmt.Fprintf(w, "%s\n", report.Status)
	})

	addr := settings.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("outbox relay: http server failed", "err", err)
		}
	}()

	return server
}
