package executor

import (
	"go.uber.org/fx"

	"deriv_bot/internal/modules/config"
	derivsvc "deriv_bot/internal/modules/deriv_ws/service"
	"deriv_bot/internal/modules/executor/service"
)

// Module выбирает исполнителя по конфигу: deriv — живые контракты
// через фид, всё остальное — бумажная симуляция.
func Module() fx.Option {
	return fx.Module("executor",
		fx.Provide(newExecutor),
	)
}

func newExecutor(cfg *config.Config, feed *derivsvc.Client) service.Executor {
	if cfg.Executor == "deriv" {
		return service.NewDerivExecutor(cfg, feed)
	}
	return service.NewPaperExecutor()
}
