package service

import (
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"deriv_bot/internal/models"
)

// Протокол Deriv: JSON поверх WebSocket. Запросы — плоские объекты
// ({"authorize": token}, {"ticks": symbol, "subscribe": 1}, ...), ответы
// несут msg_type и echo_req с копией исходного запроса.

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type tickData struct {
	Symbol string  `json:"symbol"`
	Quote  float64 `json:"quote"`
	Epoch  int64   `json:"epoch"`
}

// ohlc-стрим шлёт цены строками
type ohlcData struct {
	Symbol      string `json:"symbol"`
	Granularity int    `json:"granularity"`
	OpenTime    int64  `json:"open_time"`
	Open        string `json:"open"`
	High        string `json:"high"`
	Low         string `json:"low"`
	Close       string `json:"close"`
	IsClosed    int    `json:"is_closed"`
}

type candleData struct {
	Epoch int64   `json:"epoch"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type echoReq struct {
	TicksHistory string `json:"ticks_history"`
	Granularity  int    `json:"granularity"`
}

type envelope struct {
	MsgType string       `json:"msg_type"`
	ReqID   int64        `json:"req_id"`
	Error   *apiError    `json:"error"`
	Tick    *tickData    `json:"tick"`
	OHLC    *ohlcData    `json:"ohlc"`
	Candles []candleData `json:"candles"`
	EchoReq echoReq      `json:"echo_req"`

	raw []byte
}

func parseEnvelope(raw []byte) (*envelope, error) {
	var env envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	env.raw = raw
	return &env, nil
}

func (e *envelope) tick() (models.Tick, bool) {
	if e.Tick == nil || e.Tick.Symbol == "" {
		return models.Tick{}, false
	}
	return models.Tick{
		Symbol: e.Tick.Symbol,
		Quote:  e.Tick.Quote,
		Epoch:  e.Tick.Epoch,
	}, true
}

// closedCandle — закрытая свеча из ohlc-кадра. Незакрытые пропускаем:
// агрегатору нужен только финальный срез бакета.
func (e *envelope) closedCandle() (models.Candle, bool) {
	o := e.OHLC
	if o == nil || o.IsClosed != 1 {
		return models.Candle{}, false
	}
	open, err1 := strconv.ParseFloat(o.Open, 64)
	high, err2 := strconv.ParseFloat(o.High, 64)
	low, err3 := strconv.ParseFloat(o.Low, 64)
	closep, err4 := strconv.ParseFloat(o.Close, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return models.Candle{}, false
	}
	if closep <= 0 {
		return models.Candle{}, false
	}
	return models.Candle{
		Symbol:      o.Symbol,
		Granularity: o.Granularity,
		Open:        open,
		High:        high,
		Low:         low,
		Close:       closep,
		BucketStart: o.OpenTime,
	}, true
}

// historyBatch — бутстрап-ответ на ticks_history style=candles.
func (e *envelope) historyBatch() (string, int, []models.Candle, bool) {
	if len(e.Candles) == 0 || e.EchoReq.TicksHistory == "" {
		return "", 0, nil, false
	}
	symbol := e.EchoReq.TicksHistory
	gran := e.EchoReq.Granularity
	out := make([]models.Candle, 0, len(e.Candles))
	for _, c := range e.Candles {
		out = append(out, models.Candle{
			Symbol:      symbol,
			Granularity: gran,
			Open:        c.Open,
			High:        c.High,
			Low:         c.Low,
			Close:       c.Close,
			BucketStart: c.Epoch,
		})
	}
	return symbol, gran, out, true
}
