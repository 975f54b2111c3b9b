package service

import (
	"context"

	"deriv_bot/internal/models"
)

// defaultDurationTicks используется, когда бот не задал длительность.
const defaultDurationTicks = 5

// Result — исход исполнения. Settled=true только когда исход известен
// сразу (paper); живой контракт рассчитывается на стороне площадки.
type Result struct {
	ContractID string
	Settled    bool
	Won        bool
	Payout     float64
}

// Executor — граница с исполнением сделок. Внутренности площадки не
// реимплементируем: либо RPC через фид, либо симуляция.
type Executor interface {
	Execute(ctx context.Context, sig models.Signal, stake float64, durationTicks int) (Result, error)
}
