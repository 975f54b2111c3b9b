package indicators

import (
	"math"
	"math/rand"
	"testing"
)

func almostEqual(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestEMAMinimumWindow(t *testing.T) {
	if _, ok := EMA([]float64{1, 2, 3}, 5); ok {
		t.Fatal("EMA should be undefined below span points")
	}
	if _, ok := EMA(nil, 5); ok {
		t.Fatal("EMA on empty series should be undefined")
	}
	v, ok := EMA([]float64{1, 2, 3, 4, 5}, 5)
	if !ok {
		t.Fatal("EMA should be defined at exactly span points")
	}
	if v <= 1 || v >= 5 {
		t.Fatalf("EMA out of series range: %v", v)
	}
}

func TestEMAConstantSeries(t *testing.T) {
	series := make([]float64, 50)
	for i := range series {
		series[i] = 123.45
	}
	v, ok := EMA(series, 10)
	if !ok || !almostEqual(v, 123.45, 1e-9) {
		t.Fatalf("EMA of constant series: got %v ok=%v", v, ok)
	}
}

// 14 одинаковых закрытий подряд: avgLoss == 0, RSI обязан быть ровно 100.
func TestRSIFlatSeriesIs100(t *testing.T) {
	series := make([]float64, 28)
	for i := range series {
		series[i] = 250.0
	}
	v, ok := RSI(series, 14)
	if !ok {
		t.Fatal("RSI should be defined at 2*period points")
	}
	if v != 100 {
		t.Fatalf("flat series must give RSI=100, got %v", v)
	}
}

func TestRSIMinimumWindow(t *testing.T) {
	series := make([]float64, 27)
	for i := range series {
		series[i] = float64(i)
	}
	if _, ok := RSI(series, 14); ok {
		t.Fatal("RSI should be undefined below 2*period points")
	}
}

func TestRSIStrictlyRisingNear100(t *testing.T) {
	series := make([]float64, 40)
	for i := range series {
		series[i] = 100 + float64(i)
	}
	v, ok := RSI(series, 14)
	if !ok {
		t.Fatal("RSI should be defined")
	}
	if v != 100 {
		t.Fatalf("strictly rising series has no losses, expected 100, got %v", v)
	}
}

// Property-проверка по случайным рядам: RSI в [0,100], upper >= lower,
// и одно и то же окно всегда даёт один и тот же результат.
func TestRandomSeriesProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		n := 40 + rng.Intn(200)
		series := make([]float64, n)
		price := 100 + rng.Float64()*100
		for i := range series {
			price += rng.NormFloat64()
			if price < 1 {
				price = 1
			}
			series[i] = price
		}

		r1, ok := RSI(series, 14)
		if !ok {
			t.Fatalf("trial %d: RSI undefined on %d points", trial, n)
		}
		if r1 < 0 || r1 > 100 {
			t.Fatalf("trial %d: RSI out of range: %v", trial, r1)
		}
		r2, _ := RSI(series, 14)
		if r1 != r2 {
			t.Fatalf("trial %d: RSI is not deterministic: %v vs %v", trial, r1, r2)
		}

		up, mid, lo, ok := Bollinger(series, 20, 2)
		if !ok {
			t.Fatalf("trial %d: bollinger undefined", trial)
		}
		if up < mid || mid < lo {
			t.Fatalf("trial %d: band ordering broken: %v %v %v", trial, up, mid, lo)
		}

		ts, ok := TrendStrength(series, 20, 25)
		if !ok {
			t.Fatalf("trial %d: trend strength undefined", trial)
		}
		if ts < 0 || ts > 45 {
			t.Fatalf("trial %d: trend strength out of [0,45]: %v", trial, ts)
		}
	}
}

func TestBollingerConstantSeries(t *testing.T) {
	series := make([]float64, 20)
	for i := range series {
		series[i] = 10
	}
	up, mid, lo, ok := Bollinger(series, 20, 2)
	if !ok {
		t.Fatal("bollinger should be defined at period points")
	}
	if up != 10 || mid != 10 || lo != 10 {
		t.Fatalf("constant series must collapse the bands: %v %v %v", up, mid, lo)
	}
}

func TestStochKRange(t *testing.T) {
	highs := []float64{11, 12, 13, 14, 15, 14, 13, 14, 15, 16, 15, 14, 15, 16}
	lows := []float64{9, 10, 11, 12, 13, 12, 11, 12, 13, 14, 13, 12, 13, 14}
	closes := []float64{10, 11, 12, 13, 14, 13, 12, 13, 14, 15, 14, 13, 14, 16}

	k, ok := StochK(highs, lows, closes, 14)
	if !ok {
		t.Fatal("stoch %K should be defined at kPeriod candles")
	}
	if k != 100 {
		// close == максимум диапазона
		t.Fatalf("close at range high must give %%K=100, got %v", k)
	}

	if _, ok := StochK(highs[:10], lows[:10], closes[:10], 14); ok {
		t.Fatal("stoch %K should be undefined below kPeriod candles")
	}
}

func TestStochKFlatRange(t *testing.T) {
	flat := make([]float64, 14)
	for i := range flat {
		flat[i] = 5
	}
	k, ok := StochK(flat, flat, flat, 14)
	if !ok || k != 50 {
		t.Fatalf("flat range should give %%K=50, got %v ok=%v", k, ok)
	}
}

func TestTrendStrengthFlatVsTrending(t *testing.T) {
	flat := make([]float64, 60)
	rising := make([]float64, 60)
	for i := range flat {
		flat[i] = 100
		rising[i] = 100 + 2*float64(i)
	}

	fv, ok := TrendStrength(flat, 20, 25)
	if !ok {
		t.Fatal("trend strength undefined on flat series")
	}
	rv, ok := TrendStrength(rising, 20, 25)
	if !ok {
		t.Fatal("trend strength undefined on rising series")
	}
	if fv != 0 {
		t.Fatalf("flat series must have zero trend strength, got %v", fv)
	}
	if rv <= fv {
		t.Fatalf("rising series must score above flat: %v <= %v", rv, fv)
	}
}

func TestTrendStrengthClamp(t *testing.T) {
	// взрывной рост: без клампа значение улетело бы далеко за 45
	series := make([]float64, 40)
	series[0] = 1
	for i := 1; i < len(series); i++ {
		series[i] = series[i-1] * 1.5
	}
	v, ok := TrendStrength(series, 20, 25)
	if !ok {
		t.Fatal("trend strength undefined")
	}
	if v > 45 {
		t.Fatalf("trend strength must be clamped to 45, got %v", v)
	}
}

func TestTrendStrengthDegenerateMeanIsNaN(t *testing.T) {
	// взаимно гасящиеся закрытия обнуляют среднее: это сбой счёта, а не
	// короткое окно, поэтому ok=true и NaN вместо ok=false
	series := make([]float64, 40)
	for i := range series {
		series[i] = 100
	}
	series[38] = 1e308
	series[39] = -1e308

	v, ok := TrendStrength(series, 20, 25)
	if !ok {
		t.Fatal("degenerate arithmetic must not be reported as a short window")
	}
	if !math.IsNaN(v) {
		t.Fatalf("expected NaN on zero mean, got %v", v)
	}
}
