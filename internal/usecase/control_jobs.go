package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	applogger "DecisionCore/pkg/logger"
	"DecisionCore/pkg/queue"
)

// JobEngineReset is the control queue message type that clears an engine's beliefs.
const JobEngineReset = "engine.reset"

// EngineResetRequest is the payload of an engine.reset message.
type EngineResetRequest struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason,omitempty"`
}

type engineResetter interface {
	Reset(ctx context.Context, symbol string) error
}

type regimeInvalidator interface {
	Invalidate(ctx context.Context, symbol string) error
}

// ResetEngineJob resets an engine when upstream invalidates its hypothesis set.
// The cached regime vector of the symbol is dropped as well so the next step
// does not fall back to a vector from before the reset.
type ResetEngineJob struct {
	engines engineResetter
	regime  regimeInvalidator
	log     *applogger.Logger
}

func NewResetEngineJob(engines engineResetter, regime regimeInvalidator, log *applogger.Logger) *ResetEngineJob {
	if log == nil {
		log = applogger.Nop()
	}
	return &ResetEngineJob{engines: engines, regime: regime, log: log}
}

func (j *ResetEngineJob) Name() string { return "reset-engine" }
func (j *ResetEngineJob) Type() string { return JobEngineReset }

func (j *ResetEngineJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := queue.ParsePayload[EngineResetRequest](payload)
	if err != nil {
		return err
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		j.log.Warn("engine reset without symbol ignored")
		return nil
	}

	if j.regime != nil {
		if err := j.regime.Invalidate(ctx, symbol); err != nil {
			j.log.Warn("regime cache invalidate failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}

	err = j.engines.Reset(ctx, symbol)
	switch {
	case errors.Is(err, ErrEngineNotFound):
		j.log.Info("engine reset skipped, no engine", applogger.String("symbol", symbol))
		return nil
	case err != nil:
		return fmt.Errorf("reset %s: %w", symbol, err)
	}
	j.log.Info("engine reset",
		applogger.String("symbol", symbol),
		applogger.String("reason", req.Reason),
	)
	return nil
}

// LogDigestJob consumes aggregated log batches and writes one summary line
// per distinct entry.
type LogDigestJob struct {
	topic string
	log   *applogger.Logger
}

func NewLogDigestJob(topic string, log *applogger.Logger) *LogDigestJob {
	if log == nil {
		log = applogger.Nop()
	}
	return &LogDigestJob{topic: topic, log: log}
}

func (j *LogDigestJob) Name() string { return "log-digest" }
func (j *LogDigestJob) Type() string { return j.topic }

func (j *LogDigestJob) Handle(_ context.Context, payload interface{}) error {
	entries, err := queue.ParsePayload[[]applogger.AggregatedLogEntry](payload)
	if err != nil {
		return err
	}
	for _, e := range *entries {
		j.log.Info("log digest",
			applogger.String("level", e.Level),
			applogger.String("message", e.Message),
			applogger.String("caller", e.Caller),
			applogger.Int("count", e.Count),
			applogger.Time("first_seen", e.FirstSeen),
			applogger.Time("last_seen", e.LastSeen),
		)
	}
	return nil
}

var (
	_ queue.Job = (*ResetEngineJob)(nil)
	_ queue.Job = (*LogDigestJob)(nil)
)
