package engine

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidConfig = errors.New("invalid engine config")

// EmissionParams are the per-regime distribution parameters of the likelihood model.
type EmissionParams struct {
	ReturnMu    float64 `yaml:"return_mu" json:"return_mu"`
	ReturnSigma float64 `yaml:"return_sigma" json:"return_sigma"`
	ReturnNu    float64 `yaml:"return_nu" json:"return_nu"`

	LogVolMu    float64 `yaml:"log_vol_mu" json:"log_vol_mu"`
	LogVolSigma float64 `yaml:"log_vol_sigma" json:"log_vol_sigma"`

	SlopeMu    float64 `yaml:"slope_mu" json:"slope_mu"`
	SlopeSigma float64 `yaml:"slope_sigma" json:"slope_sigma"`

	ImbalanceMu    float64 `yaml:"imbalance_mu" json:"imbalance_mu"`
	ImbalanceSigma float64 `yaml:"imbalance_sigma" json:"imbalance_sigma"`
}

// Config is read-only after construction and shared by every engine.
type Config struct {
	Alpha float64 // tolerated false-positive action rate
	Beta  float64 // tolerated false-negative inaction rate
	Gamma float64 // forgetting factor, 1 disables forgetting

	KellyFraction     float64
	MaxPosition       float64
	VolLookback       int
	TransactionCost   float64
	MinExpectedReturn float64

	WindowSize      int
	MinObservations int

	Emission []EmissionParams
}

// DefaultConfig returns the reference parameter set with a three-regime
// (trending up, trending down, choppy) emission model.
func DefaultConfig() Config {
	return Config{
		Alpha:             0.05,
		Beta:              0.20,
		Gamma:             0.95,
		KellyFraction:     0.25,
		MaxPosition:       0.10,
		VolLookback:       20,
		TransactionCost:   0.0005,
		MinExpectedReturn: 0,
		WindowSize:        200,
		MinObservations:   5,
		Emission:          DefaultEmission(),
	}
}

func (p EmissionParams) finite() bool {
	for _, v := range [...]float64{
		p.ReturnMu, p.ReturnSigma, p.ReturnNu,
		p.LogVolMu, p.LogVolSigma,
		p.SlopeMu, p.SlopeSigma,
		p.ImbalanceMu, p.ImbalanceSigma,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func DefaultEmission() []EmissionParams {
	return []EmissionParams{
		{ReturnMu: 0.0008, ReturnSigma: 0.004, ReturnNu: 4, LogVolMu: -5.5, LogVolSigma: 0.6, SlopeMu: 0.5, SlopeSigma: 0.5, ImbalanceMu: 0.15, ImbalanceSigma: 0.3},
		{ReturnMu: -0.0008, ReturnSigma: 0.005, ReturnNu: 4, LogVolMu: -5.2, LogVolSigma: 0.6, SlopeMu: -0.5, SlopeSigma: 0.5, ImbalanceMu: -0.15, ImbalanceSigma: 0.3},
		{ReturnMu: 0, ReturnSigma: 0.002, ReturnNu: 6, LogVolMu: -6.0, LogVolSigma: 0.5, SlopeMu: 0, SlopeSigma: 0.2, ImbalanceMu: 0, ImbalanceSigma: 0.25},
	}
}

// Validate fails fast on parameter combinations that would make the rule meaningless.
func (c Config) Validate() error {
	if !(c.Alpha > 0 && c.Alpha < 1) || !(c.Beta > 0 && c.Beta < 1) {
		return fmt.Errorf("%w: alpha and beta must be in (0,1), got %v, %v", ErrInvalidConfig, c.Alpha, c.Beta)
	}
	if c.Alpha+c.Beta >= 1 {
		return fmt.Errorf("%w: alpha+beta must be < 1 or thresholds invert", ErrInvalidConfig)
	}
	if !(c.Gamma > 0 && c.Gamma <= 1) {
		return fmt.Errorf("%w: gamma must be in (0,1], got %v", ErrInvalidConfig, c.Gamma)
	}
	if !(c.KellyFraction > 0 && c.KellyFraction <= 1) {
		return fmt.Errorf("%w: kelly fraction must be in (0,1], got %v", ErrInvalidConfig, c.KellyFraction)
	}
	if !(c.MaxPosition > 0) {
		return fmt.Errorf("%w: max position must be positive, got %v", ErrInvalidConfig, c.MaxPosition)
	}
	if c.TransactionCost < 0 || math.IsNaN(c.TransactionCost) || math.IsInf(c.TransactionCost, 0) {
		return fmt.Errorf("%w: transaction cost must be >= 0", ErrInvalidConfig)
	}
	if math.IsNaN(c.MinExpectedReturn) || math.IsInf(c.MinExpectedReturn, 0) {
		return fmt.Errorf("%w: min expected return must be finite", ErrInvalidConfig)
	}
	if c.VolLookback < 2 {
		return fmt.Errorf("%w: vol lookback must be >= 2, got %d", ErrInvalidConfig, c.VolLookback)
	}
	if c.MinObservations < 1 {
		return fmt.Errorf("%w: min observations must be >= 1, got %d", ErrInvalidConfig, c.MinObservations)
	}
	if c.WindowSize < c.MinObservations || c.WindowSize < c.VolLookback {
		return fmt.Errorf("%w: window size %d smaller than min observations or vol lookback", ErrInvalidConfig, c.WindowSize)
	}
	for i, p := range c.Emission {
		if !p.finite() {
			return fmt.Errorf("%w: emission[%d] has a non-finite parameter", ErrInvalidConfig, i)
		}
		if p.ReturnSigma < 0 || p.LogVolSigma < 0 || p.SlopeSigma < 0 || p.ImbalanceSigma < 0 {
			return fmt.Errorf("%w: emission[%d] has negative scale", ErrInvalidConfig, i)
		}
	}
	return nil
}
