package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"deriv_bot/internal/indicators"
	"deriv_bot/internal/models"
	candlesvc "deriv_bot/internal/modules/candles/service"
	"deriv_bot/internal/modules/config"
)

// SignalJournal — куда пишем вынесенные вердикты. Реализация в модуле
// journal, пустой DSN даёт no-op.
type SignalJournal interface {
	RecordSignal(ctx context.Context, sig models.Signal)
}

// Engine держит таблицу последних сигналов по (symbol, granularity).
// Сам ничего не пишет в буферы свечей: читает окно агрегатора на каждой
// закрытой свече и пересчитывает всё с нуля.
type Engine struct {
	cfg     *config.Config
	agg     *candlesvc.Aggregator
	journal SignalJournal
	params  indicators.Params
	th      thresholds

	mu     sync.RWMutex
	latest map[models.SeriesKey]models.Signal
	ready  map[models.SeriesKey]bool // история загружена, можно решать

	subMu sync.RWMutex
	subs  []func(models.Signal)
}

func NewEngine(cfg *config.Config, agg *candlesvc.Aggregator, journal SignalJournal) *Engine {
	return &Engine{
		cfg:     cfg,
		agg:     agg,
		journal: journal,
		params: indicators.Params{
			EMAFast:    cfg.EMAFast,
			EMASlow:    cfg.EMASlow,
			EMAMacro:   cfg.EMAMacro,
			RSIPeriod:  cfg.RSIPeriod,
			BBPeriod:   cfg.BBPeriod,
			BBStdK:     cfg.BBStdK,
			StochK:     cfg.StochK,
			StochD:     cfg.StochD,
			TrendSpan:  cfg.TrendSpan,
			TrendScale: cfg.TrendScale,
		},
		th: thresholds{
			TrendThreshold: cfg.TrendThreshold,
			RSIOverbought:  cfg.RSIOverbought,
			RSIOversold:    cfg.RSIOversold,
		},
		latest: make(map[models.SeriesKey]models.Signal),
		ready:  make(map[models.SeriesKey]bool),
	}
}

// OnSignal — подписка на направленные сигналы (нотификатор).
func (e *Engine) OnSignal(fn func(models.Signal)) {
	e.subMu.Lock()
	e.subs = append(e.subs, fn)
	e.subMu.Unlock()
}

// HistoryReady: бутстрап-пачка фида заменяет буфер агрегатора и открывает
// ворота решений по серии. После реконнекта приходит заново — до этого
// момента по серии ничего не решаем.
func (e *Engine) HistoryReady(symbol string, granularity int, batch []models.Candle) {
	e.agg.LoadHistory(symbol, granularity, batch)

	key := models.SeriesKey{Symbol: symbol, Granularity: granularity}
	e.mu.Lock()
	e.ready[key] = true
	e.mu.Unlock()

	log.Printf("[ENGINE] %s history ready (%d candles)", key, len(batch))
	e.evaluate(key)
}

// OnCandleClosed — одна закрытая свеча, одна переоценка серии.
func (e *Engine) OnCandleClosed(c models.Candle) {
	key := models.SeriesKey{Symbol: c.Symbol, Granularity: c.Granularity}

	e.mu.RLock()
	ready := e.ready[key]
	e.mu.RUnlock()
	if !ready {
		// свеча пришла раньше истории — решать рано
		return
	}
	e.evaluate(key)
}

func (e *Engine) evaluate(key models.SeriesKey) {
	span := opentracing.StartSpan("signal.evaluate")
	span.SetTag("symbol", key.Symbol)
	span.SetTag("granularity", key.Granularity)
	defer span.Finish()

	window := e.agg.Window(key.Symbol, key.Granularity, e.cfg.BufferCapacity)
	snap, err := indicators.Snapshot(window, e.params)
	switch err {
	case nil:
	case indicators.ErrNotReady:
		// не ошибка: ждём, пока окно дорастёт
		span.SetTag("skipped", "not_ready")
		return
	case indicators.ErrComputation:
		log.Printf("[ENGINE] %s computation fault, snapshot discarded", key)
		span.SetTag("skipped", "computation_fault")
		return
	default:
		log.Printf("[ENGINE] %s snapshot: %v", key, err)
		return
	}

	v := decide(snap, e.th)
	sig := models.Signal{
		Symbol:      key.Symbol,
		Granularity: key.Granularity,
		Direction:   v.Direction,
		Confidence:  v.Confidence,
		Regime:      v.Regime,
		Strategy:    v.Strategy,
		Reason:      v.Reason,
		GeneratedAt: time.Now().UTC(),
	}
	span.SetTag("direction", string(sig.Direction))
	span.SetTag("confidence", sig.Confidence)

	// last-write-wins: новый вердикт всегда перетирает старый
	e.mu.Lock()
	e.latest[key] = sig
	e.mu.Unlock()

	if sig.Direction.Tradable() {
		log.Printf("[SIGNAL] %s %s %d%% (%s)", key, sig.Direction, sig.Confidence, sig.Strategy)
		if e.journal != nil {
			e.journal.RecordSignal(context.Background(), sig)
		}
		e.subMu.RLock()
		subs := e.subs
		e.subMu.RUnlock()
		for _, fn := range subs {
			fn(sig)
		}
	}
}

// Latest — последний сигнал по ключу. ok=false — данных ещё недостаточно.
func (e *Engine) Latest(symbol string, granularity int) (models.Signal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sig, ok := e.latest[models.SeriesKey{Symbol: symbol, Granularity: granularity}]
	return sig, ok
}
