package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"deriv_bot/internal/models"
	execsvc "deriv_bot/internal/modules/executor/service"
	schedsvc "deriv_bot/internal/modules/scheduler/service"
)

type fixedSignals map[models.SeriesKey]models.Signal

func (f fixedSignals) Latest(symbol string, granularity int) (models.Signal, bool) {
	sig, ok := f[models.SeriesKey{Symbol: symbol, Granularity: granularity}]
	return sig, ok
}

type noopExec struct{}

func (noopExec) Execute(ctx context.Context, sig models.Signal, stake float64, durationTicks int) (execsvc.Result, error) {
	return execsvc.Result{ContractID: "x", Settled: true, Won: true}, nil
}

type noopFeed struct{}

func (noopFeed) Watch(symbol string, granularity int) {}
func (noopFeed) Status() string                       { return "READY" }

func newTestServer(src schedsvc.SignalSource) (*Server, *schedsvc.Manager) {
	m := schedsvc.NewManager(src, noopExec{}, noopFeed{}, nil, nil, schedsvc.Options{
		PollInterval:  time.Hour, // циклы в этих тестах не должны торговать
		Cooldown:      time.Hour,
		MinConfidence: 60,
	})
	return NewServer(m, src, noopFeed{}, emptyLog{}), m
}

type emptyLog struct{}

func (emptyLog) RecentSignals(ctx context.Context, symbol string, granularity, limit int) ([]models.Signal, error) {
	return nil, nil
}

func doJSON(t *testing.T, s *Server, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestBotLifecycleOverHTTP(t *testing.T) {
	s, m := newTestServer(fixedSignals{})
	defer m.Shutdown()

	w, created := doJSON(t, s, http.MethodPost, "/bots",
		`{"name":"r100","symbol":"R_100","granularity":60,"stake":1.5}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("create response without id: %v", created)
	}

	w, snap := doJSON(t, s, http.MethodPost, "/bots/"+id+"/activate", "")
	if w.Code != http.StatusOK || snap["state"] != string(models.BotActive) {
		t.Fatalf("activate: %d %v", w.Code, snap)
	}

	w, snap = doJSON(t, s, http.MethodPost, "/bots/"+id+"/pause", "")
	if w.Code != http.StatusOK || snap["state"] != string(models.BotPaused) {
		t.Fatalf("pause: %d %v", w.Code, snap)
	}

	w, _ = doJSON(t, s, http.MethodGet, "/bots", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), id) {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}

	w, _ = doJSON(t, s, http.MethodDelete, "/bots/"+id, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	w, _ = doJSON(t, s, http.MethodGet, "/bots/"+id, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", w.Code)
	}
}

func TestCreateRejectsBadSpec(t *testing.T) {
	s, m := newTestServer(fixedSignals{})
	defer m.Shutdown()

	w, _ := doJSON(t, s, http.MethodPost, "/bots", `{"symbol":"","granularity":60,"stake":1}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty symbol: %d", w.Code)
	}
	w, _ = doJSON(t, s, http.MethodPost, "/bots", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("garbage body: %d", w.Code)
	}
}

func TestTransitionUnknownBot(t *testing.T) {
	s, m := newTestServer(fixedSignals{})
	defer m.Shutdown()

	w, _ := doJSON(t, s, http.MethodPost, "/bots/bot-99/activate", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown bot: %d", w.Code)
	}
}

func TestSignalEndpoint(t *testing.T) {
	src := fixedSignals{
		{Symbol: "R_100", Granularity: 60}: {
			Symbol: "R_100", Granularity: 60,
			Direction: models.DirectionCall, Confidence: 85,
			Regime: models.RegimeTrending, Strategy: models.StrategyTrend,
			Reason: "ema(10) over ema(30)", GeneratedAt: time.Now(),
		},
	}
	s, m := newTestServer(src)
	defer m.Shutdown()

	w, out := doJSON(t, s, http.MethodGet, "/signal?symbol=R_100&granularity=60", "")
	if w.Code != http.StatusOK {
		t.Fatalf("signal: %d %s", w.Code, w.Body.String())
	}
	if out["direction"] != "CALL" || out["confidence"] != float64(85) {
		t.Fatalf("signal body: %v", out)
	}

	// серия без данных — 409
	w, _ = doJSON(t, s, http.MethodGet, "/signal?symbol=R_50&granularity=60", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("no data must be 409, got %d", w.Code)
	}

	// кривые параметры — 400
	w, _ = doJSON(t, s, http.MethodGet, "/signal?symbol=R_50", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing granularity must be 400, got %d", w.Code)
	}

	// хвост журнала: пустая база — пустой список, не ошибка
	w, _ = doJSON(t, s, http.MethodGet, "/signals/recent?symbol=R_100&granularity=60", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("recent: %d %q", w.Code, w.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, m := newTestServer(fixedSignals{})
	defer m.Shutdown()

	if _, err := m.Create(models.BotSpec{Symbol: "R_100", Granularity: 60, Stake: 1}); err != nil {
		t.Fatal(err)
	}

	w, out := doJSON(t, s, http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if out["feedState"] != "READY" || out["bots"] != float64(1) || out["botsActive"] != float64(0) {
		t.Fatalf("status body: %v", out)
	}
}
