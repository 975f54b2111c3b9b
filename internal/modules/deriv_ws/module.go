package deriv_ws

import (
	"context"

	"go.uber.org/fx"

	healthsvc "deriv_bot/internal/modules/health/service"

	"deriv_bot/internal/modules/config"
	"deriv_bot/internal/modules/deriv_ws/service"
)

// Module поднимает фид Deriv. Подписчики (агрегатор, движок) вешаются в
// своих модулях до OnStart.
func Module() fx.Option {
	return fx.Module("deriv_ws",
		fx.Provide(
			func(cfg *config.Config, state *healthsvc.State) *service.Client {
				return service.NewClient(cfg, state)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, c *service.Client, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go c.Start(ctx)
					return nil
				},
			})
		}),
	)
}
