package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/events"
	"github.com/fjod/go_cart/storefront/internal/inventory"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	sessionID  string

	rootCmd = &cobra.Command{
		Use:           "storefront",
		Short:         "Storefront session service and cart tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("STOREFRONT_CONFIG"), "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, cartCmd, reconcileCmd)
}

// app holds the process-wide dependencies shared by all commands.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	store     *store.Store
	client    *api.Client
	publisher events.Publisher
	outbox    *events.Outbox
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	backend, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	log.Info("store opened", zap.String("driver", cfg.Store.Driver))

	client, err := api.New(api.Options{
		BaseURL:         cfg.API.BaseURL,
		Timeout:         cfg.API.Timeout,
		RateLimit:       cfg.API.RateLimit,
		RateBurst:       cfg.API.RateBurst,
		BreakerFailures: cfg.API.BreakerFailures,
		BreakerTimeout:  cfg.API.BreakerTimeout,
		Logger:          log.Named("api"),
		Metrics:         m,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}

	var publisher events.Publisher = events.NopPublisher{}
	var outbox *events.Outbox
	if len(cfg.Kafka.Brokers) > 0 {
		outbox = events.NewOutbox(events.NewKafkaPublisher(cfg.Kafka.Topic, cfg.Kafka.Brokers...), backend, log.Named("outbox"))
		publisher = outbox
		log.Info("publishing order events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	return &app{
		cfg:       cfg,
		log:       log,
		registry:  reg,
		metrics:   m,
		store:     store.New(backend, log.Named("store")),
		client:    client,
		publisher: publisher,
		outbox:    outbox,
	}, nil
}

func (a *app) sessionDeps(autoReconcile bool) session.Deps {
	return session.Deps{
		Store:     a.store,
		API:       a.client,
		Publisher: a.publisher,
		Inventory: inventory.Options{
			PerPage:  a.cfg.Inventory.PerPage,
			MaxPages: a.cfg.Inventory.MaxPages,
		},
		AutoReconcile: autoReconcile,
		Logger:        a.log,
		Metrics:       a.metrics,
	}
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		a.log.Warn("failed to close event publisher", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close store", zap.Error(err))
	}
	_ = a.log.Sync()
}
