package journal

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/fx"

	"deriv_bot/internal/modules/config"
	"deriv_bot/internal/modules/journal/service"
	schedsvc "deriv_bot/internal/modules/scheduler/service"
	signalsvc "deriv_bot/internal/modules/signals/service"
	"deriv_bot/pkg/db"
)

// Module поднимает журнал сигналов и сделок поверх постгреса.
// Пустой db_dsn — журнал работает как no-op.
func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			newJournal,
			func(j *service.Journal) signalsvc.SignalJournal { return j },
			func(j *service.Journal) schedsvc.TradeJournal { return j },
		),
		fx.Invoke(func(lc fx.Lifecycle, j *service.Journal) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return j.Migrate(ctx)
				},
			})
		}),
	)
}

func newJournal(ctx context.Context, cfg *config.Config) (*service.Journal, error) {
	if cfg.DB == "" {
		log.Println("[JOURNAL] db_dsn не задан — журнал выключен")
		return service.NewJournal(nil), nil
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to create poolMaster: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		return nil, err
	}
	return service.NewJournal(db.NewPgTxManager(pool)), nil
}
