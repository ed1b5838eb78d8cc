package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/aml-helpdesk/internal/console/handler"
	"github.com/xela07ax/aml-helpdesk/internal/console/server"
	"github.com/xela07ax/aml-helpdesk/internal/infra/auth"
	"github.com/xela07ax/aml-helpdesk/internal/stats"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API хелпдеска",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts.configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	logger := a.logger

	// Фоновые задачи живут до сигнала остановки
	if a.mirror != nil {
		go a.mirror.Listen(ctx, a.summary.Invalidate)
	}
	go stats.NewRefresher(a.summary, a.cfg.Stats.RefreshInterval, a.rdb, logger).Run(ctx)

	var validator auth.TokenValidator
	v, err := auth.NewValidatorFromPEM(a.cfg.Auth.PublicKey)
	if err != nil {
		return err
	}
	if v != nil {
		validator = v
	} else {
		logger.Warn("auth public key is not configured, analyst API is open")
	}

	var metricsHandler http.Handler
	if a.cfg.Metrics.Enabled {
		metricsHandler = promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{})
	}

	var inspector handler.StoreInspector
	if a.store != nil {
		inspector = a.store
	}

	h := server.Handlers{
		Predict:  handler.NewPredictHandler(a.service, a.cfg.Server.MaxBodyBytes, logger),
		Realtime: handler.NewRealtimeHandler(a.reader),
		Stats:    handler.NewStatsHandler(a.summary, logger),
		Debug:    handler.NewDebugHandler(inspector, a.summary, logger),
	}

	srv := &http.Server{
		Addr:         a.cfg.Server.Addr(),
		Handler:      server.New(a.cfg, logger, h, validator, metricsHandler),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("helpdesk API started",
			zap.String("addr", srv.Addr),
			zap.Bool("store", a.store != nil),
			zap.Bool("redis", a.rdb != nil),
			zap.Bool("save_predictions", a.persister != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("helpdesk API stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("helpdesk API exited properly")
	return nil
}
