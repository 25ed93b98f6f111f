package domain

import "time"

// Filter is one PostgREST column predicate, rendered as column=operator.value
type Filter struct {
	Column   string
	Operator string
	Value    string
}

// ScreeningQuery describes a read against a screening table or view
type ScreeningQuery struct {
	Table   string
	Select  string
	Order   string
	Filters []Filter
	Limit   int
}

// GatewayResponse is an upstream body forwarded verbatim
type GatewayResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// CachedResponse wraps a gateway response with the time it was stored
type CachedResponse struct {
	GatewayResponse
	StoredAt time.Time `json:"stored_at"`
}
