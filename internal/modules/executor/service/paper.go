package service

import (
	"context"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"deriv_bot/internal/models"
)

// payoutRatio — типичная выплата бинарного контракта на синтетиках.
const payoutRatio = 0.95

// PaperExecutor симулирует сделку мгновенно: исход разыгрывается с
// вероятностью, равной уверенности сигнала. Реальных денег нет.
type PaperExecutor struct {
	mu  sync.Mutex
	rnd *rand.Rand
	seq int64
}

func NewPaperExecutor() *PaperExecutor {
	return NewPaperExecutorWithSeed(time.Now().UnixNano())
}

// NewPaperExecutorWithSeed — с фиксированным зерном результаты
// воспроизводимы, удобно в тестах.
func NewPaperExecutorWithSeed(seed int64) *PaperExecutor {
	return &PaperExecutor{rnd: rand.New(rand.NewSource(seed))}
}

func (e *PaperExecutor) Execute(
	ctx context.Context,
	sig models.Signal,
	stake float64,
	durationTicks int,
) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if !sig.Direction.Tradable() {
		return Result{}, errors.Errorf("refusing non-tradable direction %q", sig.Direction)
	}
	if stake <= 0 {
		return Result{}, errors.New("stake must be positive")
	}
	if durationTicks <= 0 {
		durationTicks = defaultDurationTicks
	}

	prob := float64(sig.Confidence) / 100
	if prob < 0 {
		prob = 0
	}
	if prob > 1 {
		prob = 1
	}

	e.mu.Lock()
	e.seq++
	id := "paper-" + strconv.FormatInt(e.seq, 10)
	won := e.rnd.Float64() < prob
	e.mu.Unlock()

	res := Result{ContractID: id, Settled: true, Won: won}
	if won {
		res.Payout = stake * (1 + payoutRatio)
	}
	log.Printf("[EXEC] paper %s %s stake=%.2f prob=%.2f win=%v",
		sig.Symbol, sig.Direction, stake, prob, won)
	return res, nil
}
