package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tvermeulen/disporelay/internal/api"
	"github.com/tvermeulen/disporelay/internal/backend"
	"github.com/tvermeulen/disporelay/internal/config"
	"github.com/tvermeulen/disporelay/internal/draft"
	"github.com/tvermeulen/disporelay/internal/metrics"
	"github.com/tvermeulen/disporelay/internal/netmon"
	"github.com/tvermeulen/disporelay/internal/queue"
	"github.com/tvermeulen/disporelay/internal/retry"
	"github.com/tvermeulen/disporelay/internal/storage"
	"github.com/tvermeulen/disporelay/internal/submission"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "disporelay",
		Short: "disporelay — resilient availability-submission relay",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(queueCmd(&configPath))
	rootCmd.AddCommand(metricsCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the disporelay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// A broken local store degrades offline support, it never
			// stops the relay from serving.
			var store storage.Store
			if s, err := openStore(ctx, cfg.Storage, log); err != nil {
				log.Warn().Err(err).Msg("local store unavailable, running degraded")
			} else {
				store = s
				defer s.Close()
			}

			p := buildPipeline(ctx, cfg, store, log)
			p.agg.Start(ctx)
			defer p.agg.Stop()
			p.prober.Start(ctx)
			defer p.prober.Stop()

			server := api.NewServer(cfg.Server, p.svc, p.queue, p.agg, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Str("backend", cfg.Backend.URL).
				Bool("queue_available", p.queue.Available()).
				Msg("disporelay is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			log.Info().Msg("disporelay stopped")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := openStore(context.Background(), cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer store.Close()

			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func queueCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay the offline queue",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List pending submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cleanup, err := pipelineFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			pending, err := p.queue.GetAll(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list queue: %w", err)
			}
			if len(pending) == 0 {
				fmt.Println("Queue is empty.")
				return nil
			}
			for _, entry := range pending {
				fmt.Printf("  %s  session=%s email=%s attempts=%d enqueued=%s\n",
					entry.ID, entry.Payload.SessionID, entry.Payload.Email,
					entry.Attempts, entry.EnqueuedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Replay all pending submissions against the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cleanup, err := pipelineFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			result := p.svc.ProcessQueue(context.Background())
			out, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}

	discardCmd := &cobra.Command{
		Use:   "discard <id>",
		Short: "Remove a pending submission without delivering it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("usage: disporelay queue discard <id>")
			}

			p, cleanup, err := pipelineFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := p.queue.Dequeue(context.Background(), args[0]); err != nil {
				return fmt.Errorf("failed to discard %s: %w", args[0], err)
			}
			fmt.Printf("discarded %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(listCmd, processCmd, discardCmd)
	return cmd
}

func metricsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show pipeline metrics from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			url := fmt.Sprintf("http://%s:%d/api/v1/metrics", cfg.Server.Host, cfg.Server.Port)
			resp, err := http.Get(url)
			if err != nil {
				return fmt.Errorf("failed to reach server: %w", err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			fmt.Println(string(body))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("disporelay v%s\n", version)
		},
	}
}

type pipeline struct {
	svc    *submission.Service
	queue  *queue.Queue
	agg    *metrics.Aggregator
	prober *netmon.Prober
}

func buildPipeline(ctx context.Context, cfg *config.Config, store storage.Store, log zerolog.Logger) *pipeline {
	be := backend.NewClient(cfg.Backend.URL, cfg.Backend.APIKey, cfg.Backend.SigningSecret, cfg.Backend.Timeout, log)

	monitor := netmon.New(true)
	prober := netmon.NewProber(monitor, be.Health, cfg.Backend.ProbeInterval,
		log.With().Str("component", "netmon").Logger())

	retrier := retry.NewOrchestrator(retry.Policy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
	}, monitor, log.With().Str("component", "retry").Logger())

	q := queue.New(ctx, store, queue.Retention{
		MaxAttempts: cfg.Queue.MaxAttempts,
		MaxAge:      cfg.Queue.MaxAge,
	}, log.With().Str("component", "queue").Logger())

	drafts := draft.New(ctx, store, cfg.Draft.Debounce,
		log.With().Str("component", "draft").Logger())

	var sink metrics.Sink = metrics.NewLogSink(log)
	if cfg.Metrics.SinkURL != "" {
		sink = metrics.NewHTTPSink(cfg.Metrics.SinkURL, cfg.Metrics.SinkTimeout)
	}
	agg := metrics.NewAggregator(cfg.Metrics.Capacity, sink, cfg.Metrics.FlushInterval,
		log.With().Str("component", "metrics").Logger())

	svc := submission.NewService(be, q, drafts, monitor, retrier, agg,
		log.With().Str("component", "submission").Logger())

	return &pipeline{svc: svc, queue: q, agg: agg, prober: prober}
}

func pipelineFromConfig(configPath string) (*pipeline, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging)
	ctx := context.Background()

	store, err := openStore(ctx, cfg.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	p := buildPipeline(ctx, cfg, store, log)
	return p, func() { store.Close() }, nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openStore(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		store, err := storage.NewSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
