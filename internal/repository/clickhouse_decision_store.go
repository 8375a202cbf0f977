package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"DecisionCore/internal/domain/models"
	domrepo "DecisionCore/internal/domain/repository"
	pkgch "DecisionCore/pkg/clickhouse"
	applogger "DecisionCore/pkg/logger"
)

// CHDecisionStore keeps the decision audit trail in ClickHouse.
type CHDecisionStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHDecisionStore(ch *pkgch.Client, l *applogger.Logger) *CHDecisionStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHDecisionStore{
		ch:    ch,
		db:    ch.DB(),
		table: qualified(ch.Database(), decisionsTable),
		l:     l,
	}
}

// Init creates database and tables if missing.
func (s *CHDecisionStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, Schema(s.ch.Database()))
}

func (s *CHDecisionStore) Store(ctx context.Context, d *models.Decision) error {
	if d == nil {
		return fmt.Errorf("nil decision")
	}
	hyp := []byte("{}")
	if d.Hypothesis != nil {
		b, err := json.Marshal(d.Hypothesis)
		if err != nil {
			return fmt.Errorf("encode hypothesis: %w", err)
		}
		hyp = b
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, symbol, hypothesis, direction, position_size, confidence,
		expected_net_return, log_odds_ratio, regime_stale, observation_time, emitted_at, hypothesis_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	stale := 0
	if d.RegimeStale {
		stale = 1
	}
	_, err := s.db.ExecContext(ctx, q,
		d.ID,
		d.Symbol,
		d.HypothesisName(),
		int(d.Direction),
		d.PositionSize,
		d.Confidence,
		d.ExpectedNetReturn,
		d.LogOddsRatio,
		stale,
		d.ObservationTime.UTC(),
		d.EmittedAt.UTC(),
		string(hyp),
	)
	if err != nil {
		s.l.Error("clickhouse store decision failed",
			applogger.String("id", d.ID),
			applogger.String("symbol", d.Symbol),
			applogger.Error(err),
		)
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// Query returns decisions for symbol in [from, to], newest first.
func (s *CHDecisionStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Decision, error) {
	start := time.Now()
	q := fmt.Sprintf(`SELECT id, symbol, direction, position_size, confidence, expected_net_return,
		log_odds_ratio, regime_stale, observation_time, emitted_at, hypothesis_json
		FROM %s
		WHERE symbol = ? AND observation_time >= ? AND observation_time <= ?
		ORDER BY observation_time DESC
		LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from.UTC(), to.UTC(), limit)
	if err != nil {
		s.l.Error("clickhouse query decisions failed", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Decision, 0, limit)
	for rows.Next() {
		var (
			d         models.Decision
			direction int64
			stale     uint8
			hypJSON   string
		)
		if err := rows.Scan(&d.ID, &d.Symbol, &direction, &d.PositionSize, &d.Confidence, &d.ExpectedNetReturn,
			&d.LogOddsRatio, &stale, &d.ObservationTime, &d.EmittedAt, &hypJSON); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Direction = models.Direction(direction)
		d.RegimeStale = stale != 0
		if hypJSON != "" && hypJSON != "{}" {
			var h models.TradingHypothesis
			if err := json.Unmarshal([]byte(hypJSON), &h); err == nil {
				d.Hypothesis = &h
			}
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse query decisions ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("took", time.Since(start)),
	)
	return out, nil
}

func (s *CHDecisionStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool is owned by the clickhouse client.
func (s *CHDecisionStore) Close() error {
	return nil
}

var _ domrepo.DecisionStore = (*CHDecisionStore)(nil)
