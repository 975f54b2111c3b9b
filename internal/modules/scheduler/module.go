package scheduler

import (
	"context"

	"go.uber.org/fx"

	"deriv_bot/internal/modules/config"
	derivsvc "deriv_bot/internal/modules/deriv_ws/service"
	execsvc "deriv_bot/internal/modules/executor/service"
	notifysvc "deriv_bot/internal/modules/notify/service"
	"deriv_bot/internal/modules/scheduler/service"
	signalsvc "deriv_bot/internal/modules/signals/service"
)

// Module поднимает менеджера ботов и гасит все циклы на остановке.
func Module() fx.Option {
	return fx.Module("scheduler",
		fx.Provide(newManager),
		fx.Invoke(func(lc fx.Lifecycle, m *service.Manager) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					m.Shutdown()
					return nil
				},
			})
		}),
	)
}

func newManager(
	cfg *config.Config,
	engine *signalsvc.Engine,
	exec execsvc.Executor,
	feed *derivsvc.Client,
	notif notifysvc.Notifier,
	journal service.TradeJournal,
) *service.Manager {
	return service.NewManager(engine, exec, feed, notif, journal, service.Options{
		PollInterval:  cfg.PollInterval,
		Cooldown:      cfg.Cooldown,
		MinConfidence: cfg.MinConfidence,
	})
}
