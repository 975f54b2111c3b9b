package service

import (
	"sync/atomic"
	"time"
)

// State — здоровье фида для пробок и /healthz. Пишет deriv_ws, читают
// http-хендлеры, поэтому всё на атомиках.
type State struct {
	ready     atomic.Bool // READY-сессия: авторизация и бутстрап позади
	startedAt time.Time

	wsConnected  atomic.Bool
	lastTickUnix atomic.Int64 // unix seconds
	ticksTotal   atomic.Int64
	seriesReady  atomic.Int64 // загруженных бутстрап-пачек, монотонный
}

func NewState() *State {
	return &State{startedAt: time.Now()}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) TouchTick(t time.Time) {
	s.lastTickUnix.Store(t.Unix())
	s.ticksTotal.Add(1)
}

func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) TicksTotal() int64 { return s.ticksTotal.Load() }

func (s *State) MarkSeriesReady()  { s.seriesReady.Add(1) }
func (s *State) SeriesReady() bool { return s.seriesReady.Load() > 0 }

// TickFresh — был ли тик за последние maxAge. Синтетики Deriv тикают
// каждые пару секунд: долгое молчание при живом сокете — признак беды.
func (s *State) TickFresh(maxAge time.Duration) bool {
	t := s.LastTick()
	return !t.IsZero() && time.Since(t) <= maxAge
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
