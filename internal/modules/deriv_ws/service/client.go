package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"deriv_bot/internal/models"
	"deriv_bot/internal/modules/config"
)

// ErrAuthFailed — авторизация отклонена. Фатально: наружу сразу, без
// ретраев. Всё остальное (обрыв, таймаут) — транзиентно, переподключаемся.
var ErrAuthFailed = errors.New("deriv: authorization rejected")

// ErrNoHistory — ticks_history вернул пустую пачку свечей. Серия без
// истории не готова к решениям, сессия уходит в reconnect.
var ErrNoHistory = errors.New("deriv: empty history batch")

// ErrNotConnected — запрос в сокет, которого сейчас нет.
var ErrNotConnected = errors.New("deriv: not connected")

// State — состояние соединения. Одна машина состояний и одна политика
// backoff вместо размазанных по коду reconnect-циклов.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthorizing
	StateBootstrapping
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthorizing:
		return "AUTHORIZING"
	case StateBootstrapping:
		return "BOOTSTRAPPING"
	case StateReady:
		return "READY"
	default:
		return "DISCONNECTED"
	}
}

// StatusSink — куда фид репортит своё здоровье (health-модуль).
type StatusSink interface {
	SetReady(v bool)
	SetWSConnected(v bool)
	TouchTick(t time.Time)
	MarkSeriesReady()
}

// Client — сессия с Deriv: connect, authorize, subscribe, бутстрап
// истории, reconnect с ограниченным экспоненциальным backoff. Единственный
// писатель тиков и свечей для даунстрима.
type Client struct {
	cfg  *config.Config
	sink StatusSink

	dialer *websocket.Dialer
	state  atomic.Int32

	runCtx context.Context

	connMu sync.Mutex // сериализует записи в сокет
	conn   *websocket.Conn

	watchMu sync.Mutex
	watch   map[models.SeriesKey]struct{}

	// списки подписчиков, не одиночный перезаписываемый слот
	subMu       sync.RWMutex
	tickSubs    []func(models.Tick)
	candleSubs  []func(models.Candle)
	historySubs []func(symbol string, granularity int, candles []models.Candle)

	reqID     atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]chan *envelope

	fatalMu  sync.Mutex
	fatalErr error
}

func NewClient(cfg *config.Config, sink StatusSink) *Client {
	return &Client{
		cfg:     cfg,
		sink:    sink,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		watch:   make(map[models.SeriesKey]struct{}),
		pending: make(map[int64]chan *envelope),
	}
}

func (c *Client) url() string {
	return "wss://ws.derivws.com/websockets/v3?app_id=" + c.cfg.Deriv.AppID
}

func (c *Client) State() State { return State(c.state.Load()) }

// FatalErr — фатальная ошибка сессии (сейчас только авторизация).
func (c *Client) FatalErr() error {
	c.fatalMu.Lock()
	defer c.fatalMu.Unlock()
	return c.fatalErr
}

// OnTick регистрирует наблюдателя тиков. Регистрироваться до Start.
func (c *Client) OnTick(fn func(models.Tick)) {
	c.subMu.Lock()
	c.tickSubs = append(c.tickSubs, fn)
	c.subMu.Unlock()
}

// OnCandle — закрытые свечи ohlc-стрима.
func (c *Client) OnCandle(fn func(models.Candle)) {
	c.subMu.Lock()
	c.candleSubs = append(c.candleSubs, fn)
	c.subMu.Unlock()
}

// OnHistoryReady — бутстрап-пачка по серии. После реконнекта приходит
// заново: история обязана встать до того, как решения возобновятся.
func (c *Client) OnHistoryReady(fn func(symbol string, granularity int, candles []models.Candle)) {
	c.subMu.Lock()
	c.historySubs = append(c.historySubs, fn)
	c.subMu.Unlock()
}

// Watch добавляет серию в отслеживаемые. Если сессия уже READY —
// подписка и бутстрап уходят сразу, иначе подхватятся при следующем
// (пере)подключении.
func (c *Client) Watch(symbol string, granularity int) {
	key := models.SeriesKey{Symbol: symbol, Granularity: granularity}

	c.watchMu.Lock()
	_, known := c.watch[key]
	c.watch[key] = struct{}{}
	c.watchMu.Unlock()

	if known || c.State() != StateReady || c.runCtx == nil {
		return
	}
	go func() {
		if err := c.bootstrapSeries(c.runCtx, key); err != nil {
			log.Printf("[WS] late bootstrap %s: %v", key, err)
		}
	}()
}

// Start крутит сессии до отмены ctx. Авторизационный отказ — выход без
// ретраев, всё остальное — reconnect с backoff (base*2^n, cap).
func (c *Client) Start(ctx context.Context) {
	c.runCtx = ctx
	backoff := c.cfg.BackoffBase
	if backoff <= 0 {
		backoff = time.Second
	}

	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		reachedReady, err := c.session(ctx)
		if errors.Is(err, ErrAuthFailed) {
			c.fatalMu.Lock()
			c.fatalErr = err
			c.fatalMu.Unlock()
			c.setState(StateDisconnected)
			log.Printf("[WS] fatal: %v — not retrying", err)
			return
		}
		if err != nil && ctx.Err() == nil {
			log.Printf("[WS] session ended: %v", err)
		}

		c.setState(StateDisconnected)
		if reachedReady {
			backoff = c.cfg.BackoffBase
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, c.cfg.BackoffMax)
	}
}

// nextBackoff удваивает паузу до потолка.
func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if max > 0 && cur > max {
		cur = max
	}
	return cur
}

// session — одна жизнь сокета: dial → authorize → bootstrap → read loop.
func (c *Client) session(ctx context.Context) (reachedReady bool, err error) {
	c.setState(StateConnecting)
	log.Printf("[WS] connecting %s", c.url())

	conn, _, err := c.dialer.DialContext(ctx, c.url(), nil)
	if err != nil {
		return false, errors.Wrap(err, "dial")
	}
	c.setConn(conn)
	if c.sink != nil {
		c.sink.SetWSConnected(true)
	}
	defer func() {
		c.setConn(nil)
		_ = conn.Close()
		if c.sink != nil {
			c.sink.SetWSConnected(false)
			c.sink.SetReady(false)
		}
		c.failPending()
	}()

	readErr := make(chan error, 1)
	go c.readLoop(conn, readErr)

	// keepalive, иначе Deriv рвёт молчащий сокет
	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.pingLoop(ctx, stopPing)

	if token := c.cfg.Deriv.Token; token != "" {
		c.setState(StateAuthorizing)
		authCtx, cancel := context.WithTimeout(ctx, c.cfg.AuthTimeout)
		env, err := c.request(authCtx, map[string]any{"authorize": token})
		cancel()
		if err != nil {
			return false, errors.Wrap(err, "authorize")
		}
		if env.Error != nil {
			return false, errors.Wrapf(ErrAuthFailed, "%s: %s", env.Error.Code, env.Error.Message)
		}
		log.Printf("[WS] authorized")
	}

	c.setState(StateBootstrapping)
	done := make(map[models.SeriesKey]bool)
	for _, key := range c.watched() {
		if err := c.bootstrapSeries(ctx, key); err != nil {
			return false, errors.Wrapf(err, "bootstrap %s", key)
		}
		done[key] = true
	}

	c.setState(StateReady)
	if c.sink != nil {
		c.sink.SetReady(true)
	}

	// серии, добавленные пока шёл бутстрап
	for _, key := range c.watched() {
		if done[key] {
			continue
		}
		if err := c.bootstrapSeries(ctx, key); err != nil {
			log.Printf("[WS] late bootstrap %s: %v", key, err)
		}
	}
	log.Printf("[WS] ready, watching %d series", len(c.watched()))

	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case err := <-readErr:
		return true, err
	}
}

// bootstrapSeries грузит историю (заменяя буфер даунстрима) и включает
// стримы ohlc и тиков по серии.
func (c *Client) bootstrapSeries(ctx context.Context, key models.SeriesKey) error {
	bctx, cancel := context.WithTimeout(ctx, c.cfg.BootstrapTimeout)
	defer cancel()

	env, err := c.request(bctx, map[string]any{
		"ticks_history": key.Symbol,
		"style":         "candles",
		"granularity":   key.Granularity,
		"count":         c.cfg.HistoryCount,
		"end":           "latest",
		"subscribe":     1,
	})
	if err != nil {
		return err
	}
	if env.Error != nil {
		return errors.Errorf("ticks_history %s: %s", env.Error.Code, env.Error.Message)
	}
	symbol, gran, batch, ok := env.historyBatch()
	if !ok {
		return errors.Wrapf(ErrNoHistory, "ticks_history %s", key)
	}
	c.emitHistory(symbol, gran, batch)
	log.Printf("[WS] history %s: %d candles", key, len(batch))

	if err := c.writeJSON(map[string]any{"ticks": key.Symbol, "subscribe": 1}); err != nil {
		return errors.Wrap(err, "subscribe ticks")
	}
	return nil
}

func (c *Client) pingLoop(ctx context.Context, stop <-chan struct{}) {
	interval := c.cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-t.C:
			_ = c.writeJSON(map[string]any{"ping": 1})
		}
	}
}

// readLoop владеет чтением сокета. Кадры с req_id из pending уходят
// ожидающему запросу (одноразово), остальное — в общий диспатч.
func (c *Client) readLoop(conn *websocket.Conn, out chan<- error) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			out <- err
			return
		}
		env, err := parseEnvelope(raw)
		if err != nil {
			continue
		}

		if env.ReqID != 0 {
			if ch := c.takePending(env.ReqID); ch != nil {
				ch <- env
				continue
			}
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env *envelope) {
	if env.Error != nil {
		log.Printf("[WS] stream error %s: %s", env.Error.Code, env.Error.Message)
		return
	}

	switch env.MsgType {
	case "tick":
		if t, ok := env.tick(); ok {
			if c.sink != nil {
				c.sink.TouchTick(t.Time())
			}
			c.subMu.RLock()
			subs := c.tickSubs
			c.subMu.RUnlock()
			for _, fn := range subs {
				fn(t)
			}
		}
	case "ohlc":
		if cd, ok := env.closedCandle(); ok {
			c.subMu.RLock()
			subs := c.candleSubs
			c.subMu.RUnlock()
			for _, fn := range subs {
				fn(cd)
			}
		}
	case "candles":
		// поздний бутстрап, запрошенный вне request()
		if symbol, gran, batch, ok := env.historyBatch(); ok {
			c.emitHistory(symbol, gran, batch)
		}
	}
}

func (c *Client) emitHistory(symbol string, granularity int, batch []models.Candle) {
	c.subMu.RLock()
	subs := c.historySubs
	c.subMu.RUnlock()
	for _, fn := range subs {
		fn(symbol, granularity, batch)
	}
	if c.sink != nil {
		c.sink.MarkSeriesReady()
	}
}

// request — RPC поверх сокета: навешиваем req_id, ждём ответ или ctx.
func (c *Client) request(ctx context.Context, payload map[string]any) (*envelope, error) {
	id := c.reqID.Add(1)
	payload["req_id"] = id

	ch := make(chan *envelope, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.writeJSON(payload); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case env, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		return env, nil
	}
}

// Request — то же, но для внешних вызовов (исполнитель сделок). Работает
// только в READY. Ошибку API возвращает как error, тело фрейма — как есть.
func (c *Client) Request(ctx context.Context, payload map[string]any) ([]byte, error) {
	if c.State() != StateReady {
		return nil, ErrNotConnected
	}
	env, err := c.request(ctx, payload)
	if err != nil {
		return nil, err
	}
	if env.Error != nil {
		return nil, errors.Errorf("api error %s: %s", env.Error.Code, env.Error.Message)
	}
	return env.raw, nil
}

func (c *Client) takePending(id int64) chan *envelope {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	ch, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return ch
}

// failPending будит всех ожидающих при смерти сокета.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

func (c *Client) writeJSON(v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(v)
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Client) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		log.Printf("[WS] %s -> %s", old, s)
	}
}

// WatchedFor — все отслеживаемые гранулярности символа. Для размножения
// тика по сериям агрегатора.
func (c *Client) WatchedFor(symbol string) []int {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	var out []int
	for k := range c.watch {
		if k.Symbol == symbol {
			out = append(out, k.Granularity)
		}
	}
	return out
}

func (c *Client) watched() []models.SeriesKey {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	out := make([]models.SeriesKey, 0, len(c.watch))
	for k := range c.watch {
		out = append(out, k)
	}
	return out
}

// Status — срез для панели.
func (c *Client) Status() string {
	if err := c.FatalErr(); err != nil {
		return fmt.Sprintf("%s (%v)", c.State(), err)
	}
	return c.State().String()
}
