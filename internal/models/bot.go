package models

import "time"

// BotState — состояния бота. Терминального нет: удаление просто
// выкидывает бота из мапы менеджера.
type BotState string

const (
	BotInactive BotState = "INACTIVE"
	BotActive   BotState = "ACTIVE"
	BotPaused   BotState = "PAUSED"
)

// BotSpec — параметры создания бота.
type BotSpec struct {
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	Granularity int     `json:"granularity"` // секунды
	Stake       float64 `json:"stake"`
	// длительность контракта в тиках; 0 — дефолт исполнителя
	DurationTicks int     `json:"duration_ticks"`
	StopLoss      float64 `json:"stop_loss"`
	TakeProfit    float64 `json:"take_profit"`
}

// BotStats — счётчики сделок. Wins/Losses растут только когда исход
// известен (paper-исполнитель), иначе только Trades.
type BotStats struct {
	Trades    int       `json:"trades"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	LastTrade time.Time `json:"last_trade,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// BotSnapshot — то что отдаём панели. Копия, не живой объект.
type BotSnapshot struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Granularity int      `json:"granularity"`
	Stake       float64  `json:"stake"`
	StopLoss    float64  `json:"stop_loss"`
	TakeProfit  float64  `json:"take_profit"`
	State       BotState `json:"state"`
	Stats       BotStats `json:"stats"`
}
