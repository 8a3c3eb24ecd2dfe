// Package main запускает HTTP-сервер ядра заказов gopherfood.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/gopherfood/internal/config"
	"github.com/mmeshcher/gopherfood/internal/handler"
	"github.com/mmeshcher/gopherfood/internal/middleware"
	"github.com/mmeshcher/gopherfood/internal/notify"
	"github.com/mmeshcher/gopherfood/internal/repository"
	"github.com/mmeshcher/gopherfood/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	if cfg.AuthSecret == "" {
		sugar.Warn("AUTH_SECRET is empty, tokens are signed with a random key until restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret, cfg.AdminIDs)
	if cfg.IssueTokenFor > 0 {
		token, err := authMiddleware.Token(cfg.IssueTokenFor)
		if err != nil {
			sugar.Fatalw("token error", "error", err.Error())
		}
		fmt.Println(token)
		return
	}

	repo, err := newRepository(cfg, sugar)
	if err != nil {
		sugar.Fatalw("storage initialization error", "error", err.Error())
	}

	sinks := []notify.Sink{notify.NewLogSink(logger)}
	if cfg.NotifyAddress != "" {
		sinks = append(sinks, notify.NewWebhookClient(cfg.NotifyAddress))
	}
	if cfg.AMQPURL != "" {
		amqpSink, err := notify.NewAMQPSink(cfg.AMQPURL)
		if err != nil {
			sugar.Fatalw("amqp initialization error", "error", err.Error())
		}
		defer amqpSink.Close()
		sinks = append(sinks, amqpSink)
	}
	dispatcher := notify.NewDispatcher(logger, cfg.EventBuffer, sinks...)

	svc := service.NewService(repo, dispatcher, service.Options{
		CartTTL:        cfg.CartTTL,
		MinOrderAmount: cfg.MinOrderAmount,
		CancelWindow:   cfg.CancelWindow,
		AccrualRate:    cfg.AccrualRate,
		PointsPerUnit:  cfg.PointsPerUnit,
	}, logger)
	defer svc.Close()

	h := handler.NewHandler(svc, logger, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Доставка событий останавливается после сервера, чтобы не потерять события последних запросов
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	g.Go(func() error {
		return dispatcher.Run(dispatchCtx)
	})

	g.Go(func() error {
		sugar.Infow("starting gopherfood server", "addr", cfg.RunAddress, "sinks", len(sinks))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		defer stopDispatch()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newRepository(cfg *config.Config, sugar *zap.SugaredLogger) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		sugar.Warn("DATABASE_URI is empty, using in-memory storage")
		return repository.NewMemoryRepository(), nil
	}
	pg, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}
	return pg, nil
}
