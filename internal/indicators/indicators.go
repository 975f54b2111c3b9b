package indicators

import "math"

// Пакет чистых функций над упорядоченным окном цен. Каждая функция
// объявляет свой минимум данных и возвращает ok=false пока окно короче.
// Состояния между вызовами нет: на каждой закрытой свече всё пересчитывается
// с нуля по текущему окну, поэтому одинаковое окно всегда даёт одинаковый
// результат.

// EMA — экспоненциальное сглаживание с alpha = 2/(span+1), сид первым
// значением. Нужно минимум span точек.
func EMA(series []float64, span int) (float64, bool) {
	if span <= 0 || len(series) < span {
		return 0, false
	}
	k := 2.0 / float64(span+1)
	e := series[0]
	for _, v := range series[1:] {
		e = v*k + e*(1-k)
	}
	return e, true
}

// SMA по последним period точкам.
func SMA(series []float64, period int) (float64, bool) {
	if period <= 0 || len(series) < period {
		return 0, false
	}
	sum := 0.0
	for _, v := range series[len(series)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// StdDev — популяционное отклонение по последним period точкам.
func StdDev(series []float64, period int) (float64, bool) {
	m, ok := SMA(series, period)
	if !ok {
		return 0, false
	}
	var sum float64
	for _, v := range series[len(series)-period:] {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(period)), true
}

// RSI по Уайлдеру: сид — простое среднее gain/loss по первым period
// дельтам, дальше сглаживание alpha = 1/period. Нужно минимум 2*period
// точек. avgLoss == 0 => 100, деления на ноль нет.
func RSI(series []float64, period int) (float64, bool) {
	if period <= 0 || len(series) < 2*period {
		return 0, false
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := series[i] - series[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	alpha := 1.0 / float64(period)
	for i := period + 1; i < len(series); i++ {
		change := series[i] - series[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (1-alpha)*avgGain + alpha*gain
		avgLoss = (1-alpha)*avgLoss + alpha*loss
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// Bollinger — middle = SMA(period), полосы = middle ± k*stddev.
func Bollinger(series []float64, period int, k float64) (upper, middle, lower float64, ok bool) {
	middle, ok = SMA(series, period)
	if !ok {
		return 0, 0, 0, false
	}
	sd, _ := StdDev(series, period)
	return middle + k*sd, middle, middle - k*sd, true
}

// StochK — %K по диапазону последних kPeriod свечей. Плоский диапазон
// (max == min) считаем серединой, 50.
func StochK(highs, lows, closes []float64, kPeriod int) (float64, bool) {
	if kPeriod <= 0 || len(closes) < kPeriod || len(highs) < kPeriod || len(lows) < kPeriod {
		return 0, false
	}
	hi := highs[len(highs)-kPeriod]
	lo := lows[len(lows)-kPeriod]
	for i := len(highs) - kPeriod + 1; i < len(highs); i++ {
		if highs[i] > hi {
			hi = highs[i]
		}
	}
	for i := len(lows) - kPeriod + 1; i < len(lows); i++ {
		if lows[i] < lo {
			lo = lows[i]
		}
	}
	if hi == lo {
		return 50, true
	}
	return 100 * (closes[len(closes)-1] - lo) / (hi - lo), true
}

// StochD — dPeriod-SMA от %K. Пересчитываем %K по скользящим окнам хвоста.
func StochD(highs, lows, closes []float64, kPeriod, dPeriod int) (float64, bool) {
	if dPeriod <= 0 || len(closes) < kPeriod+dPeriod-1 {
		return 0, false
	}
	sum := 0.0
	for i := 0; i < dPeriod; i++ {
		end := len(closes) - i
		k, ok := StochK(highs[:end], lows[:end], closes[:end], kPeriod)
		if !ok {
			return 0, false
		}
		sum += k
	}
	return sum / float64(dPeriod), true
}

// TrendStrength — замена ADX для случаев, когда у вызывающего есть только
// закрытия: среднее абсолютное отклонение цены от собственной EMA,
// нормированное на среднюю цену, умноженное на scale и зажатое в [0, 45].
// Это осознанное упрощение, не учебниковый Average Directional Index;
// границу trending/ranging калибрует TrendThreshold в конфиге.
func TrendStrength(series []float64, span int, scale float64) (float64, bool) {
	if span <= 0 || len(series) < span {
		return 0, false
	}
	mean, _ := SMA(series, len(series))
	e, _ := EMA(series, span)

	// среднее |price - EMA| по последним span точкам
	var dev float64
	for _, v := range series[len(series)-span:] {
		dev += math.Abs(v - e)
	}
	v := scale * (dev / float64(span)) / mean * 100
	// нулевое среднее или переполнение — сбой счёта, а не «мало данных»:
	// отдаём NaN, чтобы снапшот забраковал окно как ErrComputation
	if mean == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), true
	}
	if v < 0 {
		v = 0
	}
	if v > 45 {
		v = 45
	}
	return v, true
}
