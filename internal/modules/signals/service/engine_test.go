package service

import (
	"strings"
	"testing"

	"deriv_bot/internal/models"
	candlesvc "deriv_bot/internal/modules/candles/service"
	"deriv_bot/internal/modules/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		BufferCapacity: 500,
		EMAFast:        10,
		EMASlow:        30,
		EMAMacro:       100,
		RSIPeriod:      14,
		RSIOverbought:  70,
		RSIOversold:    30,
		BBPeriod:       20,
		BBStdK:         2,
		StochK:         14,
		StochD:         3,
		TrendSpan:      20,
		TrendScale:     25,
		TrendThreshold: 20,
	}
	return cfg
}

func testThresholds() thresholds {
	return thresholds{TrendThreshold: 20, RSIOverbought: 70, RSIOversold: 30}
}

func newTestEngine() (*Engine, *candlesvc.Aggregator) {
	cfg := testConfig()
	agg := candlesvc.NewAggregator(cfg)
	return NewEngine(cfg, agg, nil), agg
}

func risingHistory(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		price := 100 + 2*float64(i)
		out[i] = models.Candle{
			Symbol:      "R_100",
			Granularity: 60,
			Open:        price - 1,
			High:        price + 1,
			Low:         price - 2,
			Close:       price,
			BucketStart: int64(1700000000 + i*60),
		}
	}
	return out
}

// --- таблица правил ---

func trendingSnap() models.IndicatorSnapshot {
	return models.IndicatorSnapshot{
		RSI:           60,
		EMAFast:       110,
		EMASlow:       105,
		EMAMacro:      100,
		BBUpper:       130,
		BBMiddle:      110,
		BBLower:       90,
		TrendStrength: 30,
		LastPrice:     120,
	}
}

func TestDecideConfirmedTrendCall(t *testing.T) {
	v := decide(trendingSnap(), testThresholds())
	if v.Direction != models.DirectionCall {
		t.Fatalf("want CALL, got %s (%s)", v.Direction, v.Reason)
	}
	if v.Confidence != confTrend {
		t.Fatalf("want confirmed-trend tier %d, got %d", confTrend, v.Confidence)
	}
	if v.Regime != models.RegimeTrending || v.Strategy != models.StrategyTrend {
		t.Fatalf("wrong classification: %+v", v)
	}
	if !strings.Contains(v.Reason, "confirmed trend") {
		t.Fatalf("rationale must name the rule: %q", v.Reason)
	}
}

func TestDecideConfirmedTrendPut(t *testing.T) {
	s := trendingSnap()
	s.EMAFast, s.EMASlow = 105, 110
	s.LastPrice, s.EMAMacro = 90, 100
	v := decide(s, testThresholds())
	if v.Direction != models.DirectionPut || v.Confidence != confTrend {
		t.Fatalf("want PUT at trend tier, got %s %d", v.Direction, v.Confidence)
	}
}

func TestDecideMacroVeto(t *testing.T) {
	// короткие EMA зовут вверх, но цена под макро-EMA — не торгуем
	s := trendingSnap()
	s.LastPrice = 95
	v := decide(s, testThresholds())
	if v.Direction != models.DirectionNone {
		t.Fatalf("macro veto must give NEUTRAL, got %s", v.Direction)
	}
	if !strings.Contains(v.Reason, "macro reversal warning") {
		t.Fatalf("rationale must warn about the macro filter: %q", v.Reason)
	}
}

func TestDecideAwaitingCrossover(t *testing.T) {
	s := trendingSnap()
	s.EMAFast = 105.000001
	s.EMASlow = 105.000002
	v := decide(s, testThresholds())
	if v.Direction != models.DirectionNone {
		t.Fatalf("flat EMAs must give NEUTRAL, got %s", v.Direction)
	}
	if !strings.Contains(v.Reason, "awaiting crossover") {
		t.Fatalf("unexpected rationale: %q", v.Reason)
	}
}

func TestDecideExtremeReversalPut(t *testing.T) {
	// сценарий: RSI 82, закрытие над верхней полосой, режим RANGING
	s := models.IndicatorSnapshot{
		RSI:           82,
		EMAFast:       100,
		EMASlow:       101,
		EMAMacro:      100,
		BBUpper:       104.5,
		BBMiddle:      100,
		BBLower:       95.5,
		StochK:        91,
		TrendStrength: 10,
		LastPrice:     105,
	}
	v := decide(s, testThresholds())
	if v.Direction != models.DirectionPut {
		t.Fatalf("want PUT, got %s (%s)", v.Direction, v.Reason)
	}
	if v.Confidence != confExtreme {
		t.Fatalf("want extreme tier %d, got %d", confExtreme, v.Confidence)
	}
	if v.Strategy != models.StrategySniper || v.Regime != models.RegimeRanging {
		t.Fatalf("wrong classification: %+v", v)
	}
	if !strings.Contains(v.Reason, "RSI") || !strings.Contains(v.Reason, "band") {
		t.Fatalf("rationale must cite both RSI and the band: %q", v.Reason)
	}
}

func TestDecideExtremeReversalCall(t *testing.T) {
	s := models.IndicatorSnapshot{
		RSI:           22,
		EMAFast:       100,
		EMASlow:       99,
		EMAMacro:      100,
		BBUpper:       104.5,
		BBLower:       95.5,
		TrendStrength: 10,
		LastPrice:     95,
	}
	v := decide(s, testThresholds())
	if v.Direction != models.DirectionCall || v.Confidence != confExtreme {
		t.Fatalf("want CALL at extreme tier, got %s %d", v.Direction, v.Confidence)
	}
}

func TestDecideRSIExtremeWithoutBandTouch(t *testing.T) {
	// импульс без экстремума полосы — правило безопасности, NEUTRAL
	s := models.IndicatorSnapshot{
		RSI:           82,
		EMAFast:       102,
		EMASlow:       100,
		EMAMacro:      100,
		BBUpper:       110,
		BBLower:       95,
		TrendStrength: 10,
		LastPrice:     105,
	}
	v := decide(s, testThresholds())
	if v.Direction != models.DirectionNone {
		t.Fatalf("RSI extreme alone must give NEUTRAL, got %s (%s)", v.Direction, v.Reason)
	}
}

func TestDecideCrossoverFallback(t *testing.T) {
	s := models.IndicatorSnapshot{
		RSI:           55,
		EMAFast:       102,
		EMASlow:       100,
		EMAMacro:      101,
		BBUpper:       110,
		BBLower:       95,
		TrendStrength: 10,
		LastPrice:     103,
	}
	v := decide(s, testThresholds())
	if v.Direction != models.DirectionCall {
		t.Fatalf("want fallback CALL, got %s", v.Direction)
	}
	if v.Confidence != confFallback || v.Strategy != models.StrategyCrossover {
		t.Fatalf("want crossover tier: %+v", v)
	}
}

func TestDecideDeterminism(t *testing.T) {
	s := trendingSnap()
	v1 := decide(s, testThresholds())
	v2 := decide(s, testThresholds())
	if v1 != v2 {
		t.Fatalf("decide is not deterministic: %+v vs %+v", v1, v2)
	}
}

// --- движок целиком ---

func TestEngineInsufficientData(t *testing.T) {
	e, _ := newTestEngine()
	e.HistoryReady("R_100", 60, risingHistory(30)) // меньше minWindow

	if _, ok := e.Latest("R_100", 60); ok {
		t.Fatal("short window must report insufficient data, not a signal")
	}
}

func TestEngineGatesOnHistoryReady(t *testing.T) {
	e, agg := newTestEngine()
	// свечи без бутстрапа: решений быть не должно
	for _, c := range risingHistory(150) {
		agg.IngestClosed(c)
		e.OnCandleClosed(c)
	}
	if _, ok := e.Latest("R_100", 60); ok {
		t.Fatal("engine must not decide before history is ready")
	}
}

func TestEngineConfirmedTrendAfterBootstrap(t *testing.T) {
	e, _ := newTestEngine()

	var seen []models.Signal
	e.OnSignal(func(s models.Signal) { seen = append(seen, s) })

	e.HistoryReady("R_100", 60, risingHistory(150))

	sig, ok := e.Latest("R_100", 60)
	if !ok {
		t.Fatal("expected a signal after bootstrap")
	}
	if sig.Direction != models.DirectionCall {
		t.Fatalf("rising series must give CALL, got %s (%s)", sig.Direction, sig.Reason)
	}
	if sig.Confidence != confTrend {
		t.Fatalf("want confirmed-trend tier %d, got %d", confTrend, sig.Confidence)
	}
	if sig.Regime != models.RegimeTrending {
		t.Fatalf("want TRENDING regime, got %s", sig.Regime)
	}
	if len(seen) != 1 || seen[0].Direction != models.DirectionCall {
		t.Fatalf("directional signal must fan out to subscribers, got %d", len(seen))
	}
}

func TestEngineLastWriteWins(t *testing.T) {
	e, agg := newTestEngine()
	hist := risingHistory(150)
	e.HistoryReady("R_100", 60, hist)

	first, ok := e.Latest("R_100", 60)
	if !ok {
		t.Fatal("expected initial signal")
	}

	// длинный плоский хвост гасит тренд
	last := hist[len(hist)-1]
	for i := 1; i <= 200; i++ {
		c := models.Candle{
			Symbol:      "R_100",
			Granularity: 60,
			Open:        last.Close,
			High:        last.Close,
			Low:         last.Close,
			Close:       last.Close,
			BucketStart: last.BucketStart + int64(i*60),
		}
		agg.IngestClosed(c)
		e.OnCandleClosed(c)
	}

	second, ok := e.Latest("R_100", 60)
	if !ok {
		t.Fatal("expected a signal after the flat tail")
	}
	if second.GeneratedAt.Before(first.GeneratedAt) {
		t.Fatal("latest signal must supersede the previous one")
	}
	if second.Direction == first.Direction && second.Reason == first.Reason {
		t.Fatalf("flat tail should have changed the verdict: %+v", second)
	}
}
