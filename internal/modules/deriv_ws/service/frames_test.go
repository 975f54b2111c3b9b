package service

import "testing"

func TestParseTickFrame(t *testing.T) {
	raw := []byte(`{"msg_type":"tick","tick":{"symbol":"R_100","quote":1234.56,"epoch":1700000123},"subscription":{"id":"abc"}}`)
	env, err := parseEnvelope(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tick, ok := env.tick()
	if !ok {
		t.Fatal("expected a tick")
	}
	if tick.Symbol != "R_100" || tick.Quote != 1234.56 || tick.Epoch != 1700000123 {
		t.Fatalf("tick mismatch: %+v", tick)
	}
}

func TestParseOHLCFrame(t *testing.T) {
	raw := []byte(`{"msg_type":"ohlc","ohlc":{"symbol":"R_100","granularity":60,"open_time":1700000100,"open":"100.1","high":"101.2","low":"99.3","close":"100.7","is_closed":1}}`)
	env, err := parseEnvelope(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c, ok := env.closedCandle()
	if !ok {
		t.Fatal("expected a closed candle")
	}
	if c.Symbol != "R_100" || c.Granularity != 60 || c.BucketStart != 1700000100 {
		t.Fatalf("candle meta mismatch: %+v", c)
	}
	if c.Open != 100.1 || c.High != 101.2 || c.Low != 99.3 || c.Close != 100.7 {
		t.Fatalf("candle OHLC mismatch: %+v", c)
	}
}

func TestOpenOHLCFrameIsIgnored(t *testing.T) {
	raw := []byte(`{"msg_type":"ohlc","ohlc":{"symbol":"R_100","granularity":60,"open_time":1700000100,"open":"100.1","high":"101.2","low":"99.3","close":"100.7","is_closed":0}}`)
	env, err := parseEnvelope(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := env.closedCandle(); ok {
		t.Fatal("forming candle must not be emitted")
	}
}

func TestParseHistoryBatch(t *testing.T) {
	raw := []byte(`{
		"msg_type":"candles",
		"echo_req":{"ticks_history":"R_100","style":"candles","granularity":300,"count":3},
		"candles":[
			{"epoch":1700000000,"open":10,"high":12,"low":9,"close":11},
			{"epoch":1700000300,"open":11,"high":13,"low":10,"close":12},
			{"epoch":1700000600,"open":12,"high":14,"low":11,"close":13}
		]
	}`)
	env, err := parseEnvelope(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	symbol, gran, batch, ok := env.historyBatch()
	if !ok {
		t.Fatal("expected a history batch")
	}
	if symbol != "R_100" || gran != 300 || len(batch) != 3 {
		t.Fatalf("batch meta mismatch: %s %d %d", symbol, gran, len(batch))
	}
	if batch[0].BucketStart != 1700000000 || batch[2].Close != 13 {
		t.Fatalf("batch content mismatch: %+v", batch)
	}
	if batch[1].Symbol != "R_100" || batch[1].Granularity != 300 {
		t.Fatalf("series key not stamped on candles: %+v", batch[1])
	}
}

func TestParseAuthorizeError(t *testing.T) {
	raw := []byte(`{"msg_type":"authorize","req_id":1,"error":{"code":"InvalidToken","message":"The token is invalid."}}`)
	env, err := parseEnvelope(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Error == nil || env.Error.Code != "InvalidToken" {
		t.Fatalf("expected InvalidToken error, got %+v", env.Error)
	}
	if env.ReqID != 1 {
		t.Fatalf("req_id mismatch: %d", env.ReqID)
	}
}

func TestMalformedFrame(t *testing.T) {
	if _, err := parseEnvelope([]byte(`{"msg_type":`)); err == nil {
		t.Fatal("expected decode error")
	}
}
