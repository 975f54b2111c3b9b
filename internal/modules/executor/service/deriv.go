package service

import (
	"context"
	"log"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"deriv_bot/internal/models"
	"deriv_bot/internal/modules/config"
	derivsvc "deriv_bot/internal/modules/deriv_ws/service"
)

// DerivExecutor покупает контракт через тот же сокет, что и фид:
// buy с parameters, basis=stake. Требует авторизованный токен.
type DerivExecutor struct {
	cfg  *config.Config
	feed *derivsvc.Client
}

func NewDerivExecutor(cfg *config.Config, feed *derivsvc.Client) *DerivExecutor {
	return &DerivExecutor{cfg: cfg, feed: feed}
}

func (e *DerivExecutor) Execute(
	ctx context.Context,
	sig models.Signal,
	stake float64,
	durationTicks int,
) (Result, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "executor.buy")
	defer span.Finish()
	span.SetTag("symbol", sig.Symbol)
	span.SetTag("direction", string(sig.Direction))

	if !sig.Direction.Tradable() {
		return Result{}, errors.Errorf("refusing non-tradable direction %q", sig.Direction)
	}
	if stake <= 0 {
		return Result{}, errors.New("stake must be positive")
	}
	if durationTicks <= 0 {
		durationTicks = defaultDurationTicks
	}

	contractType := "CALL"
	if sig.Direction == models.DirectionPut {
		contractType = "PUT"
	}

	raw, err := e.feed.Request(ctx, map[string]any{
		"buy":   1,
		"price": stake,
		"parameters": map[string]any{
			"contract_type": contractType,
			"symbol":        sig.Symbol,
			"duration":      durationTicks,
			"duration_unit": "t",
			"basis":         "stake",
			"amount":        stake,
			"currency":      "USD",
		},
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "buy request")
	}

	var resp struct {
		Buy struct {
			ContractID int64   `json:"contract_id"`
			BuyPrice   float64 `json:"buy_price"`
			Payout     float64 `json:"payout"`
		} `json:"buy"`
	}
	if err := sonic.Unmarshal(raw, &resp); err != nil {
		return Result{}, errors.Wrap(err, "decode buy response")
	}
	if resp.Buy.ContractID == 0 {
		return Result{}, errors.New("buy response without contract_id")
	}

	id := strconv.FormatInt(resp.Buy.ContractID, 10)
	log.Printf("[EXEC] %s %s %dt stake=%.2f -> contract %s (payout %.2f)",
		sig.Symbol, contractType, durationTicks, stake, id, resp.Buy.Payout)

	// Расчёт контракта приходит позже отдельным потоком; здесь сделка
	// считается открытой, Settled остаётся false.
	return Result{ContractID: id, Payout: resp.Buy.Payout}, nil
}
