package service

import (
	"log"
	"sync"

	"deriv_bot/internal/models"
	"deriv_bot/internal/modules/config"
)

// Aggregator — единственный владелец буферов свечей. Никто снаружи не
// читает и не мутирует буфер напрямую, только через Window/LoadHistory/
// Ingest*. Писатель один (горутина фида), читатели — кто угодно.
type Aggregator struct {
	mu       sync.Mutex
	capacity int
	series   map[models.SeriesKey]*series

	subMu sync.RWMutex
	subs  []func(models.Candle)
}

type series struct {
	candles []models.Candle
	// последний закоммиченный bucketStart — защита от дублей и реплеев
	lastCommitted int64
	// формирующийся бакет, ещё не закрыт
	open *models.Candle
}

func NewAggregator(cfg *config.Config) *Aggregator {
	capacity := cfg.BufferCapacity
	if capacity <= 0 {
		capacity = 500
	}
	return &Aggregator{
		capacity: capacity,
		series:   make(map[models.SeriesKey]*series),
	}
}

// SubscribeClosed добавляет наблюдателя закрытых свечей. Список, не
// одиночный перезаписываемый слот: подписчиков может быть несколько.
// Регистрироваться надо до старта фида.
func (a *Aggregator) SubscribeClosed(fn func(models.Candle)) {
	a.subMu.Lock()
	a.subs = append(a.subs, fn)
	a.subMu.Unlock()
}

// IngestTick кладёт тик в бакет floor(epoch/granularity)*granularity.
// Новый бакет закрывает предыдущий. Тики в уже закоммиченные бакеты
// молча отбрасываются — повторная подача ничего не меняет.
func (a *Aggregator) IngestTick(t models.Tick, granularity int) {
	if granularity <= 0 || t.Epoch <= 0 {
		return
	}
	bucket := t.Epoch - t.Epoch%int64(granularity)

	a.mu.Lock()
	s := a.getSeries(models.SeriesKey{Symbol: t.Symbol, Granularity: granularity})

	if bucket <= s.lastCommitted && s.lastCommitted != 0 {
		a.mu.Unlock()
		return
	}

	var closed *models.Candle
	switch {
	case s.open == nil:
		s.open = &models.Candle{
			Symbol:      t.Symbol,
			Granularity: granularity,
			Open:        t.Quote,
			High:        t.Quote,
			Low:         t.Quote,
			Close:       t.Quote,
			BucketStart: bucket,
		}
	case bucket == s.open.BucketStart:
		if t.Quote > s.open.High {
			s.open.High = t.Quote
		}
		if t.Quote < s.open.Low {
			s.open.Low = t.Quote
		}
		s.open.Close = t.Quote
	case bucket > s.open.BucketStart:
		closed = a.commitLocked(s, *s.open)
		s.open = &models.Candle{
			Symbol:      t.Symbol,
			Granularity: granularity,
			Open:        t.Quote,
			High:        t.Quote,
			Low:         t.Quote,
			Close:       t.Quote,
			BucketStart: bucket,
		}
	default:
		// тик старее открытого бакета — опоздал, его бакет уже ушёл
	}
	a.mu.Unlock()

	if closed != nil {
		a.notify(*closed)
	}
}

// IngestClosed принимает уже закрытую свечу (ohlc-стрим фида). Идёт через
// ту же защиту от дублей, что и тиковый путь.
func (a *Aggregator) IngestClosed(c models.Candle) {
	if c.Granularity <= 0 {
		return
	}

	a.mu.Lock()
	s := a.getSeries(models.SeriesKey{Symbol: c.Symbol, Granularity: c.Granularity})

	if c.BucketStart <= s.lastCommitted && s.lastCommitted != 0 {
		a.mu.Unlock()
		return
	}
	// закрытая свеча с того же бакета главнее тикового черновика
	if s.open != nil && s.open.BucketStart <= c.BucketStart {
		s.open = nil
	}
	closed := a.commitLocked(s, c)
	a.mu.Unlock()

	if closed != nil {
		a.notify(*closed)
	}
}

// LoadHistory полностью заменяет буфер серии (не дописывает). Последний
// bucketStart истории становится базой защиты от дублей, открытый бакет
// сбрасывается: после реконнекта черновик почти наверняка неполный.
func (a *Aggregator) LoadHistory(symbol string, granularity int, candles []models.Candle) {
	if granularity <= 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.getSeries(models.SeriesKey{Symbol: symbol, Granularity: granularity})
	s.open = nil
	s.candles = s.candles[:0]
	s.lastCommitted = 0

	prev := int64(0)
	for _, c := range candles {
		if c.BucketStart <= prev {
			// история обязана быть строго возрастающей — мусор дропаем
			log.Printf("[AGG] history for %s@%ds is not monotonic at %d", symbol, granularity, c.BucketStart)
			continue
		}
		c.Symbol = symbol
		c.Granularity = granularity
		s.candles = append(s.candles, c)
		prev = c.BucketStart
	}
	if len(s.candles) > a.capacity {
		s.candles = append(s.candles[:0], s.candles[len(s.candles)-a.capacity:]...)
	}
	if len(s.candles) > 0 {
		s.lastCommitted = s.candles[len(s.candles)-1].BucketStart
	}
}

// Window отдаёт до n последних закрытых свечей, от старой к новой. Копия.
func (a *Aggregator) Window(symbol string, granularity, n int) []models.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.series[models.SeriesKey{Symbol: symbol, Granularity: granularity}]
	if !ok || n <= 0 {
		return nil
	}
	start := 0
	if len(s.candles) > n {
		start = len(s.candles) - n
	}
	out := make([]models.Candle, len(s.candles)-start)
	copy(out, s.candles[start:])
	return out
}

// Len — сколько закрытых свечей накоплено по серии.
func (a *Aggregator) Len(symbol string, granularity int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.series[models.SeriesKey{Symbol: symbol, Granularity: granularity}]
	if !ok {
		return 0
	}
	return len(s.candles)
}

func (a *Aggregator) getSeries(key models.SeriesKey) *series {
	s, ok := a.series[key]
	if !ok {
		s = &series{candles: make([]models.Candle, 0, a.capacity)}
		a.series[key] = s
	}
	return s
}

// commitLocked — коммит под мьютексом; вернёт свечу для нотификации или
// nil, если её срезала защита от дублей.
func (a *Aggregator) commitLocked(s *series, c models.Candle) *models.Candle {
	if c.BucketStart <= s.lastCommitted && s.lastCommitted != 0 {
		return nil
	}
	s.candles = append(s.candles, c)
	if len(s.candles) > a.capacity {
		// кольцевая семантика: старейшая свеча уходит первой
		s.candles = append(s.candles[:0], s.candles[1:]...)
	}
	s.lastCommitted = c.BucketStart
	return &c
}

// notify зовёт подписчиков вне мьютекса буфера, в порядке коммитов.
func (a *Aggregator) notify(c models.Candle) {
	a.subMu.RLock()
	subs := a.subs
	a.subMu.RUnlock()
	for _, fn := range subs {
		fn(c)
	}
}
