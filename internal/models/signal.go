package models

import "time"

// Direction — направление сделки.
type Direction string

const (
	DirectionNone Direction = "NEUTRAL"
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
)

func (d Direction) Tradable() bool {
	return d == DirectionCall || d == DirectionPut
}

// Regime — режим рынка по trend-strength.
type Regime string

const (
	RegimeTrending Regime = "TRENDING"
	RegimeRanging  Regime = "RANGING"
)

// StrategyTag — какое правило движка отработало.
type StrategyTag string

const (
	StrategySniper    StrategyTag = "sniper-reversal"
	StrategyTrend     StrategyTag = "trend-rider"
	StrategyCrossover StrategyTag = "crossover"
	StrategyIdle      StrategyTag = "idle"
)

// Signal — последний вердикт движка по ключу (symbol, granularity).
// Иммутабельный, новый всегда перетирает старый (last-write-wins).
type Signal struct {
	Symbol      string
	Granularity int
	Direction   Direction
	Confidence  int // 0..100
	Regime      Regime
	Strategy    StrategyTag
	Reason      string
	GeneratedAt time.Time
}

// IndicatorSnapshot — индикаторы по текущему окну. Ok=false пока окно
// короче минимального для любого из полей.
type IndicatorSnapshot struct {
	RSI           float64
	EMAFast       float64
	EMASlow       float64
	EMAMacro      float64
	BBUpper       float64
	BBMiddle      float64
	BBLower       float64
	StochK        float64
	StochD        float64
	TrendStrength float64
	LastPrice     float64
}
