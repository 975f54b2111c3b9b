package candles

import (
	"deriv_bot/internal/modules/candles/service"

	"go.uber.org/fx"
)

// Module поднимает агрегатор свечей.
func Module() fx.Option {
	return fx.Module("candles",
		fx.Provide(
			service.NewAggregator,
		),
	)
}
