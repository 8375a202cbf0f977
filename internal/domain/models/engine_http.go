package models

// Requests for engine HTTP endpoints. Defined in domain for consistency and reuse.

type SymbolParam struct {
	Symbol string `param:"symbol" validate:"required,symbol"`
}

type DecisionsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
	From   string `query:"from" json:"from" validate:"timestamp"`
	To     string `query:"to" json:"to" validate:"timestamp"`
}

// ObservationAccepted is returned once an observation is queued on its engine.
type ObservationAccepted struct {
	Symbol    string `json:"symbol"`
	Timestamp string `json:"timestamp"`
	Queued    bool   `json:"queued"`
}
