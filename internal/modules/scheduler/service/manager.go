package service

import (
	"context"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"deriv_bot/internal/models"
	execsvc "deriv_bot/internal/modules/executor/service"
	notifysvc "deriv_bot/internal/modules/notify/service"
)

// stopWait — сколько ждём выхода цикла при деактивации.
const stopWait = 5 * time.Second

// ErrBotNotFound — операция над незарегистрированным ботом.
var ErrBotNotFound = errors.New("bot not found")

// Feed нужен менеджеру только чтобы заказать серию под нового бота.
type Feed interface {
	Watch(symbol string, granularity int)
}

// SignalSource — таблица последних сигналов (движок).
type SignalSource interface {
	Latest(symbol string, granularity int) (models.Signal, bool)
}

// TradeJournal пишет сделки; nil — не пишем.
type TradeJournal interface {
	RecordTrade(ctx context.Context, botID string, sig models.Signal, stake float64, res execsvc.Result)
}

type bot struct {
	id    string
	spec  models.BotSpec
	state models.BotState
	stats models.BotStats

	// cancel/done существуют только пока бот ACTIVE
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager владеет ботами: на каждого активного — ровно одна горутина
// цикла. Все мутации состояния под одним мьютексом, исполнение сделок
// вне его.
type Manager struct {
	engine  SignalSource
	exec    execsvc.Executor
	feed    Feed
	notif   notifysvc.Notifier
	journal TradeJournal

	pollInterval  time.Duration
	cooldown      time.Duration
	minConfidence int

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu   sync.Mutex
	seq  int64
	bots map[string]*bot
}

type Options struct {
	PollInterval  time.Duration
	Cooldown      time.Duration
	MinConfidence int
}

func NewManager(engine SignalSource, exec execsvc.Executor, feed Feed, notif notifysvc.Notifier, journal TradeJournal, opts Options) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		engine:        engine,
		exec:          exec,
		feed:          feed,
		notif:         notif,
		journal:       journal,
		pollInterval:  opts.PollInterval,
		cooldown:      opts.Cooldown,
		minConfidence: opts.MinConfidence,
		rootCtx:       ctx,
		rootCancel:    cancel,
		bots:          make(map[string]*bot),
	}
}

// Create регистрирует бота в INACTIVE и заказывает его серию у фида.
func (m *Manager) Create(spec models.BotSpec) (string, error) {
	if spec.Symbol == "" {
		return "", errors.New("symbol is required")
	}
	if spec.Granularity <= 0 {
		return "", errors.New("granularity must be positive")
	}
	if spec.Stake <= 0 {
		return "", errors.New("stake must be positive")
	}
	if spec.Name == "" {
		spec.Name = spec.Symbol
	}

	m.mu.Lock()
	m.seq++
	id := "bot-" + strconv.FormatInt(m.seq, 10)
	m.bots[id] = &bot{id: id, spec: spec, state: models.BotInactive}
	m.mu.Unlock()

	if m.feed != nil {
		m.feed.Watch(spec.Symbol, spec.Granularity)
	}
	log.Printf("[SCHED] created %s (%s/%ds)", id, spec.Symbol, spec.Granularity)
	return id, nil
}

// Activate запускает цикл. Для уже активного — no-op.
func (m *Manager) Activate(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bots[id]
	if !ok {
		return errors.Wrap(ErrBotNotFound, id)
	}
	if b.state == models.BotActive {
		return nil
	}

	ctx, cancel := context.WithCancel(m.rootCtx)
	done := make(chan struct{})
	b.cancel, b.done = cancel, done
	b.state = models.BotActive
	go m.runLoop(ctx, b, cancel, done)

	log.Printf("[SCHED] %s activated", id)
	return nil
}

// Pause гасит цикл, но бот остаётся в списке как PAUSED.
func (m *Manager) Pause(id string) error { return m.stop(id, models.BotPaused) }

// Deactivate гасит цикл. Для неактивного — no-op.
func (m *Manager) Deactivate(id string) error { return m.stop(id, models.BotInactive) }

func (m *Manager) stop(id string, to models.BotState) error {
	m.mu.Lock()
	b, ok := m.bots[id]
	if !ok {
		m.mu.Unlock()
		return errors.Wrap(ErrBotNotFound, id)
	}
	if b.state != models.BotActive {
		b.state = to
		m.mu.Unlock()
		return nil
	}
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.state = to
	m.mu.Unlock()

	// ждём выхода цикла вне мьютекса
	cancel()
	select {
	case <-done:
	case <-time.After(stopWait):
		log.Printf("[SCHED] %s: loop did not exit in %s", id, stopWait)
	}
	log.Printf("[SCHED] %s -> %s", id, to)
	return nil
}

// Delete останавливает и выкидывает бота.
func (m *Manager) Delete(id string) error {
	if err := m.stop(id, models.BotInactive); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.bots, id)
	m.mu.Unlock()
	log.Printf("[SCHED] %s deleted", id)
	return nil
}

// Get — снапшот одного бота.
func (m *Manager) Get(id string) (models.BotSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[id]
	if !ok {
		return models.BotSnapshot{}, false
	}
	return snapshot(b), true
}

// List — снапшоты всех ботов, отсортированы по id.
func (m *Manager) List() []models.BotSnapshot {
	m.mu.Lock()
	out := make([]models.BotSnapshot, 0, len(m.bots))
	for _, b := range m.bots {
		out = append(out, snapshot(b))
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown гасит все циклы при остановке приложения.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.bots))
	for id, b := range m.bots {
		if b.state == models.BotActive {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Deactivate(id)
	}
	m.rootCancel()
}

func snapshot(b *bot) models.BotSnapshot {
	return models.BotSnapshot{
		ID:          b.id,
		Name:        b.spec.Name,
		Symbol:      b.spec.Symbol,
		Granularity: b.spec.Granularity,
		Stake:       b.spec.Stake,
		StopLoss:    b.spec.StopLoss,
		TakeProfit:  b.spec.TakeProfit,
		State:       b.state,
		Stats:       b.stats,
	}
}
