package panel

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/fx"

	"deriv_bot/internal/modules/config"
	derivsvc "deriv_bot/internal/modules/deriv_ws/service"
	journalsvc "deriv_bot/internal/modules/journal/service"
	"deriv_bot/internal/modules/panel/service"
	schedsvc "deriv_bot/internal/modules/scheduler/service"
	signalsvc "deriv_bot/internal/modules/signals/service"
)

// Module поднимает админку на service.admin_port.
func Module() fx.Option {
	return fx.Module("panel",
		fx.Provide(newServer),
		fx.Invoke(runHTTP),
	)
}

func newServer(manager *schedsvc.Manager, engine *signalsvc.Engine, feed *derivsvc.Client, journal *journalsvc.Journal) *service.Server {
	return service.NewServer(manager, engine, feed, journal)
}

func runHTTP(lc fx.Lifecycle, cfg *config.Config, s *service.Server) {
	port := cfg.Service.AdminPort
	if port == 0 {
		port = 8081
	}
	addr := cfg.Service.Host + ":" + strconv.Itoa(port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
