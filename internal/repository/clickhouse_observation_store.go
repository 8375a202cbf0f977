package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"DecisionCore/internal/domain/models"
	domrepo "DecisionCore/internal/domain/repository"
	pkgch "DecisionCore/pkg/clickhouse"
	applogger "DecisionCore/pkg/logger"
)

const (
	observationColumns = "symbol, ts, ret, log_volatility, slope, order_book_imbalance, funding_rate, rsi, volume, aux"
	insertChunkSize    = 2000
)

// CHObservationStore persists observations and serves recent history.
type CHObservationStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHObservationStore(ch *pkgch.Client, l *applogger.Logger) *CHObservationStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHObservationStore{
		ch:    ch,
		db:    ch.DB(),
		table: qualified(ch.Database(), observationsTable),
		l:     l,
	}
}

func (s *CHObservationStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, Schema(s.ch.Database()))
}

func (s *CHObservationStore) Store(ctx context.Context, obs *models.MarketObservation) error {
	return s.StoreBatch(ctx, []*models.MarketObservation{obs})
}

// StoreBatch inserts observations with multi-row VALUES in chunks. Nil or
// invalid entries are skipped.
func (s *CHObservationStore) StoreBatch(ctx context.Context, batch []*models.MarketObservation) error {
	for start := 0; start < len(batch); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(batch) {
			end = len(batch)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*10)
		for _, o := range batch[start:end] {
			if o.Validate() != nil {
				continue
			}
			aux, err := encodeAux(o.Aux)
			if err != nil {
				return err
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				o.Symbol,
				o.Timestamp.UTC(),
				o.Return,
				o.LogVolatility,
				o.Slope,
				o.OrderBookImbalance,
				o.FundingRate,
				o.RSI,
				o.Volume,
				aux,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, observationColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse insert observations failed", applogger.Int("rows", len(values)), applogger.Error(err))
			return fmt.Errorf("insert observations: %w", err)
		}
	}
	return nil
}

// GetRange returns observations in [from, to] in ascending time order.
func (s *CHObservationStore) GetRange(ctx context.Context, symbol string, from, to time.Time) ([]models.MarketObservation, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`, observationColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse observations range query failed", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("get observations: %w", err)
	}
	defer rows.Close()
	return scanObservations(rows, 256)
}

// GetLatestN returns up to n most recent observations in ascending time order.
func (s *CHObservationStore) GetLatestN(ctx context.Context, symbol string, n int) ([]models.MarketObservation, error) {
	if n <= 0 {
		return nil, nil
	}
	start := time.Now()
	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE symbol = ?
		ORDER BY ts DESC
		LIMIT ?`, observationColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, n)
	if err != nil {
		s.l.Error("clickhouse latest observations query failed",
			applogger.String("symbol", symbol),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest observations: %w", err)
	}
	defer rows.Close()

	out, err := scanObservations(rows, n)
	if err != nil {
		return nil, err
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse latest observations ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("took", time.Since(start)),
	)
	return out, nil
}

func scanObservations(rows *sql.Rows, capHint int) ([]models.MarketObservation, error) {
	out := make([]models.MarketObservation, 0, capHint)
	for rows.Next() {
		var (
			o   models.MarketObservation
			aux string
		)
		if err := rows.Scan(&o.Symbol, &o.Timestamp, &o.Return, &o.LogVolatility, &o.Slope,
			&o.OrderBookImbalance, &o.FundingRate, &o.RSI, &o.Volume, &aux); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if aux != "" {
			if err := json.Unmarshal([]byte(aux), &o.Aux); err != nil {
				return nil, fmt.Errorf("decode aux: %w", err)
			}
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func encodeAux(aux map[string]float64) (string, error) {
	if len(aux) == 0 {
		return "", nil
	}
	b, err := json.Marshal(aux)
	if err != nil {
		return "", fmt.Errorf("encode aux: %w", err)
	}
	return string(b), nil
}

var _ domrepo.ObservationStore = (*CHObservationStore)(nil)
