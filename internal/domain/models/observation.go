package models

import (
	"fmt"
	"math"
	"time"
)

// MarketObservation is one time-stamped feature vector for a symbol.
// Values are immutable once handed to an engine.
type MarketObservation struct {
	Symbol             string             `json:"symbol" validate:"required,symbol"`
	Timestamp          time.Time          `json:"timestamp"`
	Return             float64            `json:"return"`
	LogVolatility      float64            `json:"log_volatility"`
	Slope              float64            `json:"slope"`
	OrderBookImbalance float64            `json:"order_book_imbalance"` // [-1, 1]
	FundingRate        float64            `json:"funding_rate"`
	RSI                float64            `json:"rsi"`
	Volume             float64            `json:"volume"`
	Aux                map[string]float64 `json:"aux,omitempty"`
}

// Validate rejects observations an engine must never see.
func (o *MarketObservation) Validate() error {
	if o == nil {
		return fmt.Errorf("%w: nil observation", ErrInvalidObservation)
	}
	if o.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidObservation)
	}
	if o.Timestamp.IsZero() {
		return fmt.Errorf("%w: zero timestamp", ErrInvalidObservation)
	}
	fields := map[string]float64{
		"return":               o.Return,
		"log_volatility":       o.LogVolatility,
		"slope":                o.Slope,
		"order_book_imbalance": o.OrderBookImbalance,
		"funding_rate":         o.FundingRate,
		"rsi":                  o.RSI,
		"volume":               o.Volume,
	}
	for name, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidObservation, name)
		}
	}
	if o.OrderBookImbalance < -1 || o.OrderBookImbalance > 1 {
		return fmt.Errorf("%w: order_book_imbalance %.4f outside [-1,1]", ErrInvalidObservation, o.OrderBookImbalance)
	}
	if o.RSI < 0 || o.RSI > 100 {
		return fmt.Errorf("%w: rsi %.2f outside [0,100]", ErrInvalidObservation, o.RSI)
	}
	return nil
}
