package notify

import (
	"log"

	"go.uber.org/fx"

	"deriv_bot/internal/models"
	"deriv_bot/internal/modules/config"
	"deriv_bot/internal/modules/notify/service"
	signalsvc "deriv_bot/internal/modules/signals/service"
)

// Module подключает нотифайер: телеграм при наличии токена, иначе лог.
// Каждый торговый сигнал движка уходит в чат.
func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(newNotifier),
		fx.Invoke(subscribe),
	)
}

func newNotifier(cfg *config.Config) service.Notifier {
	if cfg.Telegram.Token == "" {
		return service.NewStdout()
	}
	t, err := service.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
	if err != nil {
		log.Printf("[NOTIFY] telegram init: %v — падаем на stdout", err)
		return service.NewStdout()
	}
	return t
}

func subscribe(n service.Notifier, engine *signalsvc.Engine) {
	engine.OnSignal(func(sig models.Signal) {
		if !sig.Direction.Tradable() {
			return
		}
		n.Sendf("📡 %s %s/%ds conf=%d%% [%s] %s",
			sig.Direction, sig.Symbol, sig.Granularity, sig.Confidence, sig.Strategy, sig.Reason)
	})
}
