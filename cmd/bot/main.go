package main

import (
	"context"
	"log"

	"go.uber.org/fx"

	"deriv_bot/internal/modules/candles"
	"deriv_bot/internal/modules/config"
	derivws "deriv_bot/internal/modules/deriv_ws"
	"deriv_bot/internal/modules/executor"
	"deriv_bot/internal/modules/health"
	"deriv_bot/internal/modules/journal"
	"deriv_bot/internal/modules/notify"
	"deriv_bot/internal/modules/panel"
	"deriv_bot/internal/modules/scheduler"
	"deriv_bot/internal/modules/signals"
	"deriv_bot/pkg/logger"
	"deriv_bot/pkg/tracing"
)

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	logger.SetServiceName("deriv_bot")

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		fx.Invoke(initTracing),
		health.Module(),
		derivws.Module(),
		candles.Module(),
		journal.Module(),
		signals.Module(),
		executor.Module(),
		notify.Module(),
		scheduler.Module(),
		panel.Module(),
	)
	app.Run()
}

func initTracing(lc fx.Lifecycle, cfg *config.Config) {
	if cfg.Jaeger.Host == "" {
		return
	}
	tracing.SetServiceName("deriv_bot")
	_, closer, err := tracing.InitTracer(tracing.Config{
		Host: cfg.Jaeger.Host,
		Port: cfg.Jaeger.Port,
	})
	if err != nil {
		log.Printf("[TRACING] init: %v", err)
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			closer()
			return nil
		},
	})
}
