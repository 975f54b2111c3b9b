package indicators

import (
	"math"

	"github.com/pkg/errors"

	"deriv_bot/internal/models"
)

// ErrNotReady — окно короче минимального. Это не сбой: вызывающий ждёт
// следующих свечей.
var ErrNotReady = errors.New("indicators: window below minimum length")

// ErrComputation — индикатор дал NaN/Inf. Снапшот бракуется целиком и
// пересчитывается на следующей свече; в CALL/PUT такое не превращаем.
var ErrComputation = errors.New("indicators: non-finite value")

// Params — периоды для сборки снапшота.
type Params struct {
	EMAFast    int
	EMASlow    int
	EMAMacro   int
	RSIPeriod  int
	BBPeriod   int
	BBStdK     float64
	StochK     int
	StochD     int
	TrendSpan  int
	TrendScale float64
}

// MinWindow — сколько закрытых свечей нужно, чтобы снапшот собрался.
func (p Params) MinWindow() int {
	need := p.EMAMacro
	if 2*p.RSIPeriod > need {
		need = 2 * p.RSIPeriod
	}
	if p.BBPeriod > need {
		need = p.BBPeriod
	}
	if p.TrendSpan > need {
		need = p.TrendSpan
	}
	return need
}

// Snapshot пересобирает все индикаторы по окну закрытых свечей.
// Стохастик не входит в обязательный набор: правила движка его не читают,
// он идёт только в rationale.
func Snapshot(window []models.Candle, p Params) (models.IndicatorSnapshot, error) {
	var snap models.IndicatorSnapshot
	if len(window) == 0 {
		return snap, ErrNotReady
	}

	closes := make([]float64, len(window))
	highs := make([]float64, len(window))
	lows := make([]float64, len(window))
	for i, c := range window {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	var ok bool
	if snap.EMAFast, ok = EMA(closes, p.EMAFast); !ok {
		return snap, ErrNotReady
	}
	if snap.EMASlow, ok = EMA(closes, p.EMASlow); !ok {
		return snap, ErrNotReady
	}
	if snap.EMAMacro, ok = EMA(closes, p.EMAMacro); !ok {
		return snap, ErrNotReady
	}
	if snap.RSI, ok = RSI(closes, p.RSIPeriod); !ok {
		return snap, ErrNotReady
	}
	if snap.BBUpper, snap.BBMiddle, snap.BBLower, ok = Bollinger(closes, p.BBPeriod, p.BBStdK); !ok {
		return snap, ErrNotReady
	}
	if snap.TrendStrength, ok = TrendStrength(closes, p.TrendSpan, p.TrendScale); !ok {
		return snap, ErrNotReady
	}
	snap.StochK, _ = StochK(highs, lows, closes, p.StochK)
	snap.StochD, _ = StochD(highs, lows, closes, p.StochK, p.StochD)
	snap.LastPrice = closes[len(closes)-1]

	if !finite(snap.RSI) || !finite(snap.EMAFast) || !finite(snap.EMASlow) ||
		!finite(snap.EMAMacro) || !finite(snap.BBUpper) || !finite(snap.BBLower) ||
		!finite(snap.TrendStrength) || !finite(snap.LastPrice) {
		return models.IndicatorSnapshot{}, ErrComputation
	}

	return snap, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
