package service

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"deriv_bot/internal/models"
	schedsvc "deriv_bot/internal/modules/scheduler/service"
)

// maxBodyBytes ограничивает тело запроса на создание бота.
const maxBodyBytes = 1 << 16

// FeedStatus — строка состояния фида для /status.
type FeedStatus interface {
	Status() string
}

// SignalLog — хвост журнала сигналов (модуль journal).
type SignalLog interface {
	RecentSignals(ctx context.Context, symbol string, granularity, limit int) ([]models.Signal, error)
}

// Server — админка: управление ботами и чтение сигналов. Свой тип,
// чтобы не путаться с health-мультиплексором.
type Server struct {
	mux     *http.ServeMux
	manager *schedsvc.Manager
	engine  schedsvc.SignalSource
	feed    FeedStatus
	journal SignalLog
	started time.Time
}

func NewServer(manager *schedsvc.Manager, engine schedsvc.SignalSource, feed FeedStatus, journal SignalLog) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		manager: manager,
		engine:  engine,
		feed:    feed,
		journal: journal,
		started: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.mux.HandleFunc("POST /bots", s.handleCreate)
	s.mux.HandleFunc("GET /bots", s.handleList)
	s.mux.HandleFunc("GET /bots/{id}", s.handleGet)
	s.mux.HandleFunc("POST /bots/{id}/activate", s.handleTransition(s.manager.Activate))
	s.mux.HandleFunc("POST /bots/{id}/pause", s.handleTransition(s.manager.Pause))
	s.mux.HandleFunc("POST /bots/{id}/deactivate", s.handleTransition(s.manager.Deactivate))
	s.mux.HandleFunc("DELETE /bots/{id}", s.handleTransition(s.manager.Delete))
	s.mux.HandleFunc("GET /signal", s.handleSignal)
	s.mux.HandleFunc("GET /signals/recent", s.handleRecent)
	s.mux.HandleFunc("GET /status", s.handleStatus)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var spec models.BotSpec
	if err := sonic.Unmarshal(body, &spec); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.manager.Create(spec)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.manager.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "bot not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleTransition(op func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := op(id); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		snap, ok := s.manager.Get(id)
		if !ok {
			// удалённый бот: подтверждаем без тела
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	granularity, err := strconv.Atoi(r.URL.Query().Get("granularity"))
	if symbol == "" || err != nil || granularity <= 0 {
		http.Error(w, "symbol and granularity are required", http.StatusBadRequest)
		return
	}

	sig, ok := s.engine.Latest(symbol, granularity)
	if !ok {
		http.Error(w, "insufficient data", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, signalJSON(sig))
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	granularity, err := strconv.Atoi(r.URL.Query().Get("granularity"))
	if symbol == "" || err != nil || granularity <= 0 {
		http.Error(w, "symbol and granularity are required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var sigs []models.Signal
	if s.journal != nil {
		sigs, err = s.journal.RecentSignals(r.Context(), symbol, granularity, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	out := make([]map[string]any, 0, len(sigs))
	for _, sig := range sigs {
		out = append(out, signalJSON(sig))
	}
	writeJSON(w, http.StatusOK, out)
}

func signalJSON(sig models.Signal) map[string]any {
	return map[string]any{
		"symbol":      sig.Symbol,
		"granularity": sig.Granularity,
		"direction":   sig.Direction,
		"confidence":  sig.Confidence,
		"regime":      sig.Regime,
		"strategy":    sig.Strategy,
		"reason":      sig.Reason,
		"generatedAt": sig.GeneratedAt,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	bots := s.manager.List()
	active := 0
	for _, b := range bots {
		if b.State == models.BotActive {
			active++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feedState":  s.feed.Status(),
		"bots":       len(bots),
		"botsActive": active,
		"uptimeSec":  int64(time.Since(s.started).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	raw, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(raw)
}
