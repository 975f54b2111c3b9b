package config

import "go.uber.org/fx"

// Module отдаёт конфиг как fx-провайдер: yaml + env-оверрайды.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
		),
	)
}
