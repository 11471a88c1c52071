package server

import (
	"github.com/rezonia/nfce-parser/internal/model"
)

// ParseResponse is the response for parse endpoints
type ParseResponse struct {
	Result     *model.ParseResult `json:"result"`
	Source     string             `json:"source"`
	Layout     string             `json:"layout"`
	Warnings   []string           `json:"warnings,omitempty"`
	DurationMS int64              `json:"duration_ms"`
}

// AcceptanceResponse is returned with 422 when a result fails the boundary
// checks. Result holds the partial parse.
type AcceptanceResponse struct {
	Error    string             `json:"error"`
	Result   *model.ParseResult `json:"result"`
	Warnings []string           `json:"warnings,omitempty"`
}

// ValidationResponse is the response for validate endpoint
type ValidationResponse struct {
	Valid    bool     `json:"valid"`
	Checked  int      `json:"checked"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// LayoutInfo describes one registered layout
type LayoutInfo struct {
	Name    string   `json:"name"`
	Version int      `json:"version"`
	Detect  []string `json:"detect,omitempty"`
}

// LayoutsResponse is the response for layouts endpoint
type LayoutsResponse struct {
	Layouts []LayoutInfo `json:"layouts"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error    string   `json:"error"`
	Details  string   `json:"details,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
