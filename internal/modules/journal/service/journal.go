package service

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"deriv_bot/internal/models"
	execsvc "deriv_bot/internal/modules/executor/service"
	"deriv_bot/pkg/db"
)

// writeTimeout — запись журнала не должна тормозить торговый путь.
const writeTimeout = 3 * time.Second

// Journal пишет сигналы и сделки в постгрес. Без DSN (tx == nil) все
// методы молча no-op: журнал — опциональный хвост, не зависимость.
type Journal struct {
	tx db.TxManager
}

func NewJournal(tx db.TxManager) *Journal {
	return &Journal{tx: tx}
}

// Migrate создаёт таблицы. Вызывается один раз на старте.
func (j *Journal) Migrate(ctx context.Context) error {
	if j == nil || j.tx == nil {
		return nil
	}
	return j.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			CREATE TABLE IF NOT EXISTS signals (
				id           BIGSERIAL PRIMARY KEY,
				symbol       TEXT        NOT NULL,
				granularity  INT         NOT NULL,
				direction    TEXT        NOT NULL,
				confidence   INT         NOT NULL,
				regime       TEXT        NOT NULL,
				strategy     TEXT        NOT NULL,
				reason       TEXT        NOT NULL,
				generated_at TIMESTAMPTZ NOT NULL
			)`)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctxTx, `
			CREATE TABLE IF NOT EXISTS trades (
				id          BIGSERIAL PRIMARY KEY,
				bot_id      TEXT        NOT NULL,
				symbol      TEXT        NOT NULL,
				granularity INT         NOT NULL,
				direction   TEXT        NOT NULL,
				confidence  INT         NOT NULL,
				stake       DOUBLE PRECISION NOT NULL,
				contract_id TEXT        NOT NULL,
				settled     BOOLEAN     NOT NULL,
				won         BOOLEAN     NOT NULL,
				payout      DOUBLE PRECISION NOT NULL,
				created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
			)`)
		return err
	})
}

// RecordSignal — направленный вердикт движка.
func (j *Journal) RecordSignal(ctx context.Context, sig models.Signal) {
	if j == nil || j.tx == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err := j.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO signals (symbol, granularity, direction, confidence, regime, strategy, reason, generated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			sig.Symbol, sig.Granularity, string(sig.Direction), sig.Confidence,
			string(sig.Regime), string(sig.Strategy), sig.Reason, sig.GeneratedAt)
		return err
	})
	if err != nil {
		log.Printf("[JOURNAL] record signal: %v", err)
	}
}

// maxRecent — потолок выдачи RecentSignals.
const maxRecent = 50

// RecentSignals — хвост журнала по серии, новые первыми. Без базы
// возвращает пустой список.
func (j *Journal) RecentSignals(ctx context.Context, symbol string, granularity, limit int) ([]models.Signal, error) {
	if j == nil || j.tx == nil {
		return nil, nil
	}
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}

	var out []models.Signal
	err := j.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctxTx, `
			SELECT symbol, granularity, direction, confidence, regime, strategy, reason, generated_at
			FROM signals
			WHERE symbol = $1 AND granularity = $2
			ORDER BY id DESC
			LIMIT $3`,
			symbol, granularity, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				s                  models.Signal
				dir, regime, strat string
			)
			if err := rows.Scan(&s.Symbol, &s.Granularity, &dir, &s.Confidence,
				&regime, &strat, &s.Reason, &s.GeneratedAt); err != nil {
				return err
			}
			s.Direction = models.Direction(dir)
			s.Regime = models.Regime(regime)
			s.Strategy = models.StrategyTag(strat)
			out = append(out, s)
		}
		return rows.Err()
	})
	return out, err
}

// RecordTrade — исполненная сделка бота.
func (j *Journal) RecordTrade(ctx context.Context, botID string, sig models.Signal, stake float64, res execsvc.Result) {
	if j == nil || j.tx == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err := j.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO trades (bot_id, symbol, granularity, direction, confidence, stake, contract_id, settled, won, payout)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			botID, sig.Symbol, sig.Granularity, string(sig.Direction), sig.Confidence,
			stake, res.ContractID, res.Settled, res.Won, res.Payout)
		return err
	})
	if err != nil {
		log.Printf("[JOURNAL] record trade: %v", err)
	}
}
