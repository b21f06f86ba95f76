package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/tether"
	"github.com/aretw0/tether/internal/config"
	"github.com/aretw0/tether/internal/logging"
	"github.com/aretw0/tether/pkg/adapters/httpbatch"
	redisAdapter "github.com/aretw0/tether/pkg/adapters/redis"
	wsAdapter "github.com/aretw0/tether/pkg/adapters/websocket"
	"github.com/aretw0/tether/pkg/observability"
	"github.com/aretw0/tether/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the RPC server",
	Long:  `Starts a server exposing the session protocol over a websocket endpoint and an HTTP batch endpoint, with optional Redis transport and Prometheus metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfgPath, _ := cmd.Flags().GetString("config")
		listen, _ := cmd.Flags().GetString("listen")

		cfg := config.Default()
		if cfgPath != "" {
			loaded, err := config.Load(cfgPath)
			if err != nil {
				fmt.Printf("Error loading config: %v\n", err)
				os.Exit(1)
			}
			cfg = loaded
		}
		if listen != "" {
			cfg.Listen = listen
		}

		logger := logging.New(parseLevel(cfg.LogLevel))
		target := demoTarget()

		metrics := observability.New(prometheus.DefaultRegisterer)

		r := chi.NewRouter()
		r.Mount(cfg.Path, httpbatch.NewHandler(func() *tether.Session {
			metrics.SessionOpened()
			return tether.New(target,
				tether.WithLogger(logger),
				tether.WithOnBroken(func(string) { metrics.SessionBroken() }),
			)
		}))
		r.Handle(cfg.Path+"/ws", wsAdapter.NewHandler(target,
			wsAdapter.WithLogger(logger),
		))
		if cfg.Metrics {
			r.Handle("/metrics", promhttp.Handler())
		}

		if cfg.Redis != nil {
			go serveRedis(logger, cfg.Redis, target)
		}

		srv := &http.Server{
			Addr:    cfg.Listen,
			Handler: r,
		}

		serverErrors := make(chan error, 1)
		go func() {
			fmt.Printf("Starting Tether Server on %s\n", srv.Addr)
			fmt.Printf("RPC endpoint: %s (batch) and %s/ws (stream)\n", cfg.Path, cfg.Path)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			fmt.Println("Tether Server stopped gracefully")
		}
	},
}

func serveRedis(logger *slog.Logger, cfg *config.Redis, target ports.Target) {
	ctx := context.Background()
	client := backend.NewClient(&backend.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	out := redisAdapter.NewFromClient(ctx, client, cfg.Channel+":out", redisAdapter.WithLogger(logger))
	sess := tether.New(target,
		tether.WithLogger(logger),
		tether.WithTransport(out),
	)
	if err := redisAdapter.Serve(ctx, sess, client, cfg.Channel+":in", redisAdapter.WithLogger(logger)); err != nil {
		logger.Error("redis transport stopped", "err", err)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Listen address (overrides config)")
}
