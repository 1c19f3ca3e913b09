package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/events"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the storefront HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions := session.NewRegistry(a.sessionDeps(true))
	defer sessions.Close()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sessions.Run(sweepCtx, a.cfg.Session.SweepInterval, a.cfg.Session.IdleTimeout)

	if a.outbox != nil {
		outboxCtx, cancelOutbox := context.WithCancel(ctx)
		defer cancelOutbox()
		go a.outbox.Run(outboxCtx)
	}

	// Each instance reads every order event to refresh its live sessions.
	if len(a.cfg.Kafka.Brokers) > 0 {
		host, _ := os.Hostname()
		consumer := events.NewConsumer(a.cfg.Kafka.Topic, "storefront-"+host, sessions.HandleOrderPlaced, a.log.Named("consumer"), a.cfg.Kafka.Brokers...)
		defer consumer.Close()
		go consumer.Run(ctx)
	}

	srv := &http.Server{
		Addr: ":" + a.cfg.HTTP.Port,
		Handler: h.NewRouter(h.Options{
			Sessions:           sessions,
			StorageURL:         a.cfg.API.StorageURL,
			RequestTimeout:     a.cfg.HTTP.RequestTimeout,
			MaxRequestBodySize: a.cfg.HTTP.MaxRequestBodySize,
			Gatherer:           a.registry,
			Logger:             a.log.Named("http"),
		}),
		ReadTimeout:  a.cfg.HTTP.RequestTimeout,
		WriteTimeout: a.cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("storefront listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	a.log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.log.Info("server exited")
	return nil
}
