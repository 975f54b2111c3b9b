package service

import (
	"context"
	"log"
	"time"

	"deriv_bot/internal/models"
)

// runLoop — жизнь одного активного бота: опрос последнего сигнала,
// сделка, кулдаун. Ошибки исполнителя не валят цикл и не трогают
// других ботов. cancel и done приходят параметрами: b.cancel/b.done
// обнуляет stop(), горутина их не читает.
func (m *Manager) runLoop(ctx context.Context, b *bot, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[SCHED] %s: loop panic: %v", b.id, r)
			cancel()
			m.mu.Lock()
			b.stats.LastError = "loop panic"
			if b.state == models.BotActive && b.done == done {
				b.state = models.BotInactive
				b.cancel, b.done = nil, nil
			}
			m.mu.Unlock()
		}
	}()

	log.Printf("[SCHED] %s: loop started (%s/%ds)", b.id, b.spec.Symbol, b.spec.Granularity)
	for {
		sig, ok := m.engine.Latest(b.spec.Symbol, b.spec.Granularity)
		if !ok || !sig.Direction.Tradable() || sig.Confidence < m.minConfidence {
			if !sleep(ctx, m.pollInterval) {
				return
			}
			continue
		}

		m.trade(ctx, b, sig)

		if !sleep(ctx, m.cooldown) {
			return
		}
	}
}

func (m *Manager) trade(ctx context.Context, b *bot, sig models.Signal) {
	res, err := m.exec.Execute(ctx, sig, b.spec.Stake, b.spec.DurationTicks)

	m.mu.Lock()
	if err != nil {
		b.stats.LastError = err.Error()
		m.mu.Unlock()
		if ctx.Err() == nil {
			log.Printf("[SCHED] %s: execute: %v", b.id, err)
		}
		return
	}
	b.stats.Trades++
	b.stats.LastTrade = time.Now()
	b.stats.LastError = ""
	if res.Settled {
		if res.Won {
			b.stats.Wins++
		} else {
			b.stats.Losses++
		}
	}
	m.mu.Unlock()

	if m.notif != nil {
		m.notif.Sendf("🤖 %s: %s %s stake=%.2f conf=%d%% (%s)",
			b.id, sig.Direction, sig.Symbol, b.spec.Stake, sig.Confidence, res.ContractID)
	}
	if m.journal != nil {
		m.journal.RecordTrade(ctx, b.id, sig, b.spec.Stake, res)
	}
}

// sleep — прерываемый контекстом сон; false когда пора выходить.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
