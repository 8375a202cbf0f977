package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"DecisionCore/internal/domain/models"
	domrepo "DecisionCore/internal/domain/repository"
	"DecisionCore/pkg/cache"
)

const (
	defaultDecisionLimit = 100
	maxDecisionLimit     = 1000
)

// DecisionsUseCase serves the decision audit trail.
type DecisionsUseCase struct {
	store domrepo.DecisionStore
	cache cache.Service
	ttl   time.Duration
}

// NewDecisionsUseCase creates the use case. c may be nil to disable caching.
func NewDecisionsUseCase(store domrepo.DecisionStore, c cache.Service, ttl time.Duration) *DecisionsUseCase {
	return &DecisionsUseCase{store: store, cache: c, ttl: ttl}
}

type GetDecisionsParams struct {
	Symbol string
	From   time.Time
	To     time.Time
	Limit  int
}

type GetDecisionsResult struct {
	Symbol    string             `json:"symbol"`
	From      time.Time          `json:"from"`
	To        time.Time          `json:"to"`
	Count     int                `json:"count"`
	Decisions []*models.Decision `json:"decisions"`
}

func (uc *DecisionsUseCase) GetDecisions(ctx context.Context, p GetDecisionsParams) (*GetDecisionsResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 {
		p.Limit = defaultDecisionLimit
	}
	if p.Limit > maxDecisionLimit {
		p.Limit = maxDecisionLimit
	}
	if uc.store == nil {
		return nil, fmt.Errorf("decision store not configured")
	}

	key := cache.Key("decisions", fmt.Sprintf("%s:%d:%d:%d", p.Symbol, p.From.Unix(), p.To.Unix(), p.Limit))
	if uc.cache != nil {
		var cached GetDecisionsResult
		err := uc.cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			// treat cache failures as a miss
			_ = uc.cache.Delete(ctx, key)
		}
	}

	decisions, err := uc.store.Query(ctx, p.Symbol, p.From, p.To, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	if decisions == nil {
		decisions = []*models.Decision{}
	}
	res := &GetDecisionsResult{
		Symbol:    p.Symbol,
		From:      p.From,
		To:        p.To,
		Count:     len(decisions),
		Decisions: decisions,
	}
	if uc.cache != nil && uc.ttl > 0 {
		_ = uc.cache.Set(ctx, key, res, uc.ttl)
	}
	return res, nil
}
