package http

// APIResponse is the body of every JSON reply.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError is one rejected request field. Params holds the rule
// argument, e.g. {"max": "1000"} for lte.
type ValidationError struct {
	Code    string                 `json:"code" example:"ERR_REQUIRED"`
	Field   string                 `json:"field" example:"symbol"`
	Message string                 `json:"message" example:"symbol is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}
