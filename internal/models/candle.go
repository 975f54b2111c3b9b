package models

import (
	"strconv"
	"time"
)

// Tick — одно ценовое обновление из фида. Живёт только до агрегации.
type Tick struct {
	Symbol string
	Quote  float64
	Epoch  int64 // unix seconds
}

func (t Tick) Time() time.Time { return time.Unix(t.Epoch, 0) }

// Candle — закрытая свеча. После закрытия не мутируется.
type Candle struct {
	Symbol      string
	Granularity int // секунды: 60, 120, 300...
	Open        float64
	High        float64
	Low         float64
	Close       float64
	BucketStart int64 // unix seconds, начало бакета
}

func (c Candle) Start() time.Time { return time.Unix(c.BucketStart, 0) }
func (c Candle) End() time.Time {
	return time.Unix(c.BucketStart+int64(c.Granularity), 0)
}

// SeriesKey — ключ серии свечей и сигналов.
type SeriesKey struct {
	Symbol      string
	Granularity int
}

func (k SeriesKey) String() string {
	return k.Symbol + "@" + strconv.Itoa(k.Granularity) + "s"
}
