package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"cyclebot/internal/api"
	"cyclebot/internal/models"
	"cyclebot/internal/websocket"
	"cyclebot/pkg/utils"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, WebSocket stream and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := utils.InitGlobalLogger(cfg.LogConfig())
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg.Server.ShutdownTimeout, func(ctx context.Context) (*app, error) {
				return newApp(ctx, cfg, log)
			})
		},
	}
}

// serve поднимает HTTP сервер вокруг движка и ждёт отмены ctx
func serve(ctx context.Context, shutdownTimeout time.Duration, build func(context.Context) (*app, error)) (err error) {
	a, err := build(ctx)
	if err != nil {
		return err
	}
	cfg, log := a.cfg, a.log

	// Инициализация WebSocket hub
	hub := websocket.NewHub()
	hub.SetAllowedOrigins(cfg.Server.AllowedOrigins)
	go hub.Run()
	detach := hub.AttachEngine(a.engine)
	a.engine.OnBalances(hub.BroadcastBalances)

	deps := &api.Dependencies{
		Engine:      a.engine,
		Session:     a.engine,
		Risk:        a.engine.Risk(),
		Balances:    a.engine,
		Hub:         hub,
		Defaults:    cfg.Bot.Engine,
		TokenHash:   cfg.Security.APITokenHash,
		CORSOrigins: cfg.Server.AllowedOrigins,
	}
	if stats := a.ledgers.stats; stats != nil {
		deps.Ledger = stats
		stats.SetWebSocketHub(hub)
		// пересчёт статистики после каждой сделки
		unsubscribe := a.engine.Subscribe(nil, nil, func(models.TradeRecord) {
			go stats.Refresh(ctx)
		})
		defer unsubscribe()
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.SetupRoutes(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", utils.String("addr", server.Addr), utils.Bool("https", cfg.Server.UseHTTPS))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	if cfg.Bot.AutoStart {
		if err := a.engine.Start(ctx, cfg.Bot.Engine); err != nil {
			log.Warn("Auto start rejected", utils.Err(err))
		}
	}

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err = <-serverErr:
		log.Error("Server failed", utils.Err(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = multierr.Append(err, server.Shutdown(shutdownCtx))
	// финальный статус движка ещё уходит в hub
	err = multierr.Append(err, a.close())
	detach()
	hub.Stop()

	log.Info("Server exited")
	return err
}
