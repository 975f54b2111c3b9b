package service

import (
	"fmt"

	"deriv_bot/internal/models"
)

// Ступени уверенности. Приоритет правил фиксированный:
// extreme reversal > macro-confirmed trend > crossover fallback > neutral.
// Порядок менять нельзя.
const (
	confExtreme  = 92
	confTrend    = 85
	confFallback = 60
)

// относительный допуск "EMA примерно равны" — нет внятного пересечения
const crossoverEps = 1e-4

type thresholds struct {
	TrendThreshold float64
	RSIOverbought  float64
	RSIOversold    float64
}

type verdict struct {
	Direction  models.Direction
	Confidence int
	Regime     models.Regime
	Strategy   models.StrategyTag
	Reason     string
}

// decide — чистая табличка правил поверх готового снапшота. Никакого
// состояния: одинаковый снапшот всегда даёт одинаковый вердикт.
func decide(s models.IndicatorSnapshot, th thresholds) verdict {
	regime := models.RegimeRanging
	if s.TrendStrength > th.TrendThreshold {
		regime = models.RegimeTrending
	}

	emaDiff := s.EMAFast - s.EMASlow
	flat := s.LastPrice != 0 && abs(emaDiff)/s.LastPrice < crossoverEps

	if regime == models.RegimeTrending {
		switch {
		case !flat && emaDiff > 0 && s.LastPrice > s.EMAMacro:
			return verdict{
				Direction:  models.DirectionCall,
				Confidence: confTrend,
				Regime:     regime,
				Strategy:   models.StrategyTrend,
				Reason: fmt.Sprintf(
					"confirmed trend: EMA fast %.4f > slow %.4f, price %.4f above macro EMA %.4f, trend-strength %.1f > %.1f",
					s.EMAFast, s.EMASlow, s.LastPrice, s.EMAMacro, s.TrendStrength, th.TrendThreshold),
			}
		case !flat && emaDiff < 0 && s.LastPrice < s.EMAMacro:
			return verdict{
				Direction:  models.DirectionPut,
				Confidence: confTrend,
				Regime:     regime,
				Strategy:   models.StrategyTrend,
				Reason: fmt.Sprintf(
					"confirmed trend: EMA fast %.4f < slow %.4f, price %.4f below macro EMA %.4f, trend-strength %.1f > %.1f",
					s.EMAFast, s.EMASlow, s.LastPrice, s.EMAMacro, s.TrendStrength, th.TrendThreshold),
			}
		case !flat:
			// короткие EMA дают направление, но макрофильтр против —
			// против старшего горизонта не торгуем
			return verdict{
				Direction:  models.DirectionNone,
				Confidence: 0,
				Regime:     regime,
				Strategy:   models.StrategyIdle,
				Reason: fmt.Sprintf(
					"trend exhaustion / macro reversal warning: EMA fast %.4f vs slow %.4f, price %.4f on wrong side of macro EMA %.4f",
					s.EMAFast, s.EMASlow, s.LastPrice, s.EMAMacro),
			}
		default:
			return verdict{
				Direction:  models.DirectionNone,
				Confidence: 0,
				Regime:     regime,
				Strategy:   models.StrategyIdle,
				Reason:     fmt.Sprintf("awaiting crossover: EMA fast %.4f ~ slow %.4f", s.EMAFast, s.EMASlow),
			}
		}
	}

	// RANGING
	switch {
	case s.RSI > th.RSIOverbought && s.LastPrice >= s.BBUpper:
		return verdict{
			Direction:  models.DirectionPut,
			Confidence: confExtreme,
			Regime:     regime,
			Strategy:   models.StrategySniper,
			Reason: fmt.Sprintf(
				"extreme reversal: RSI %.1f > %.0f and price %.4f at/above upper band %.4f (stoch %%K %.1f)",
				s.RSI, th.RSIOverbought, s.LastPrice, s.BBUpper, s.StochK),
		}
	case s.RSI < th.RSIOversold && s.LastPrice <= s.BBLower:
		return verdict{
			Direction:  models.DirectionCall,
			Confidence: confExtreme,
			Regime:     regime,
			Strategy:   models.StrategySniper,
			Reason: fmt.Sprintf(
				"extreme reversal: RSI %.1f < %.0f and price %.4f at/below lower band %.4f (stoch %%K %.1f)",
				s.RSI, th.RSIOversold, s.LastPrice, s.BBLower, s.StochK),
		}
	case s.RSI > th.RSIOverbought || s.RSI < th.RSIOversold:
		// импульс без касания полосы — частый ложный вход, сидим ровно
		return verdict{
			Direction:  models.DirectionNone,
			Confidence: 0,
			Regime:     regime,
			Strategy:   models.StrategyIdle,
			Reason: fmt.Sprintf(
				"RSI extreme %.1f without band touch (upper %.4f, lower %.4f, price %.4f) — no exhaustion, skipping",
				s.RSI, s.BBUpper, s.BBLower, s.LastPrice),
		}
	case !flat && emaDiff > 0:
		return verdict{
			Direction:  models.DirectionCall,
			Confidence: confFallback,
			Regime:     regime,
			Strategy:   models.StrategyCrossover,
			Reason: fmt.Sprintf(
				"crossover fallback: EMA fast %.4f > slow %.4f, RSI %.1f in neutral zone",
				s.EMAFast, s.EMASlow, s.RSI),
		}
	case !flat && emaDiff < 0:
		return verdict{
			Direction:  models.DirectionPut,
			Confidence: confFallback,
			Regime:     regime,
			Strategy:   models.StrategyCrossover,
			Reason: fmt.Sprintf(
				"crossover fallback: EMA fast %.4f < slow %.4f, RSI %.1f in neutral zone",
				s.EMAFast, s.EMASlow, s.RSI),
		}
	default:
		return verdict{
			Direction:  models.DirectionNone,
			Confidence: 0,
			Regime:     regime,
			Strategy:   models.StrategyIdle,
			Reason:     fmt.Sprintf("awaiting crossover: EMA fast %.4f ~ slow %.4f", s.EMAFast, s.EMASlow),
		}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
