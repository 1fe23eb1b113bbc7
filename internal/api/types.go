package api

import (
	"encoding/json"
	"time"

	"github.com/triage-ai/rasp-agent/internal/chread"
)

// --- POST /v1/check request/response ---

// CallContextReq describes the intercepted call.
type CallContextReq struct {
	RequestID  string              `json:"request_id,omitempty"`
	Method     string              `json:"method,omitempty"`
	URI        string              `json:"uri,omitempty"`
	RemoteAddr string              `json:"remote_addr,omitempty"`
	Headers    map[string]string   `json:"headers,omitempty"`
	Parameters map[string][]string `json:"parameters,omitempty"`
	StackTrace []string            `json:"stack_trace,omitempty"`
	Attributes map[string]string   `json:"attributes,omitempty"`
}

// CheckRequest is the JSON body for POST /v1/check. Either Algorithm or
// Algorithms names what to run; Algorithms runs in order and stops at the
// first block.
type CheckRequest struct {
	Algorithm  string            `json:"algorithm,omitempty"`
	Algorithms []string          `json:"algorithms,omitempty"`
	Context    *CallContextReq   `json:"context,omitempty"`
	Parameters []json.RawMessage `json:"parameters"`
}

// AttackResp is one recorded detection.
type AttackResp struct {
	AlgorithmType string    `json:"algorithm_type"`
	Message       string    `json:"message"`
	Severity      int       `json:"severity"`
	Blocked       bool      `json:"blocked"`
	DetectedAt    time.Time `json:"detected_at"`
}

// CheckResponse carries the verdict. Reason is the abort cause on a block.
type CheckResponse struct {
	Decision  string       `json:"decision"`
	RequestID string       `json:"request_id"`
	Reason    *string      `json:"reason"`
	Attacks   []AttackResp `json:"attacks"`
	LatencyMs float64      `json:"latency_ms"`
}

// --- Algorithms & modules ---

// AlgorithmResp describes one registered algorithm.
type AlgorithmResp struct {
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Config      map[string]string `json:"config"`
}

// ModuleResp is a module's activation state.
type ModuleResp struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

// ModuleConfigReq is the JSON body for PUT /v1/modules/{id}/config:
// a flat object of scalars or scalar arrays.
type ModuleConfigReq struct {
	Config json.RawMessage `json:"config"`
}

// SetEnabledReq is the JSON body for PATCH /v1/modules/{id}.
type SetEnabledReq struct {
	Enabled *bool `json:"enabled"`
}

// ModuleConfigResp mirrors a module_configs row.
type ModuleConfigResp struct {
	ModuleID  string            `json:"module_id"`
	Config    map[string]string `json:"config"`
	Enabled   bool              `json:"enabled"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// --- Attacks ---

// AttackListResp is one page of recorded attacks.
type AttackListResp struct {
	Attacks  []chread.AttackRow `json:"attacks"`
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// AttackSummaryResp holds per-algorithm totals for a window.
type AttackSummaryResp struct {
	Since       time.Time               `json:"since"`
	ByAlgorithm []chread.AlgorithmCount `json:"by_algorithm"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
