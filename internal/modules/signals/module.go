package signals

import (
	"go.uber.org/fx"

	"deriv_bot/internal/models"
	candlesvc "deriv_bot/internal/modules/candles/service"
	derivsvc "deriv_bot/internal/modules/deriv_ws/service"
	"deriv_bot/internal/modules/signals/service"
)

// Module связывает фид, агрегатор и движок: тики размножаются по сериям,
// закрытые свечи и бутстрап-пачки ведут к переоценке.
func Module() fx.Option {
	return fx.Module("signals",
		fx.Provide(
			service.NewEngine,
		),
		fx.Invoke(func(feed *derivsvc.Client, agg *candlesvc.Aggregator, e *service.Engine) {
			feed.OnTick(func(t models.Tick) {
				for _, g := range feed.WatchedFor(t.Symbol) {
					agg.IngestTick(t, g)
				}
			})
			feed.OnCandle(agg.IngestClosed)
			feed.OnHistoryReady(e.HistoryReady)
			agg.SubscribeClosed(e.OnCandleClosed)
		}),
	)
}
