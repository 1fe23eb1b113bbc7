package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/triage-ai/rasp-agent/internal/engine"
)

// handleCheck implements POST /v1/check.
// Auth middleware has already validated the control token.
func (d *Dependencies) handleCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req CheckRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	algorithms := req.Algorithms
	if req.Algorithm != "" {
		algorithms = append([]string{req.Algorithm}, algorithms...)
	}
	if len(algorithms) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "algorithm is required"})
		return
	}

	cc := toCallContext(req.Context)
	params := make([]any, len(req.Parameters))
	for i, raw := range req.Parameters {
		params[i] = paramValue(raw)
	}

	v := d.Pipeline.CheckAll(cc, algorithms, params...)
	writeJSON(w, http.StatusOK, NewCheckResponse(cc, v, time.Since(start)))
}

// NewCheckResponse renders a verdict for the wire.
func NewCheckResponse(cc *engine.CallContext, v engine.Verdict, latency time.Duration) CheckResponse {
	var reason *string
	if v.Signal != nil {
		s := v.Signal.Error()
		reason = &s
	}
	attacks := make([]AttackResp, 0, len(v.Attacks))
	for _, a := range v.Attacks {
		attacks = append(attacks, AttackResp{
			AlgorithmType: a.AlgorithmType,
			Message:       a.Message,
			Severity:      a.Severity,
			Blocked:       a.Blocked,
			DetectedAt:    a.DetectedAt,
		})
	}
	return CheckResponse{
		Decision:  v.Decision.String(),
		RequestID: cc.RequestID,
		Reason:    reason,
		Attacks:   attacks,
		LatencyMs: float64(latency) / float64(time.Millisecond),
	}
}

// toCallContext builds the engine context, assigning a request id when the
// host did not send one.
func toCallContext(req *CallContextReq) *engine.CallContext {
	cc := engine.NewCallContext()
	if req == nil {
		return cc
	}
	if req.RequestID != "" {
		cc.RequestID = req.RequestID
	}
	cc.Method = req.Method
	cc.URI = req.URI
	cc.RemoteAddr = req.RemoteAddr
	cc.Headers = req.Headers
	cc.Parameters = req.Parameters
	cc.StackTrace = req.StackTrace
	cc.Attributes = req.Attributes
	return cc
}

// paramValue passes JSON strings through and hands every other value to
// the algorithms as its JSON text.
func paramValue(raw json.RawMessage) any {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// handleListAlgorithms implements GET /v1/algorithms.
func (d *Dependencies) handleListAlgorithms(w http.ResponseWriter, _ *http.Request) {
	out := []AlgorithmResp{}
	for _, id := range d.Registry.IDs() {
		desc, ok := d.Registry.Lookup(id)
		if !ok {
			continue
		}
		cfg := desc.Config
		if cfg == nil {
			cfg = map[string]string{}
		}
		out = append(out, AlgorithmResp{
			Type:        desc.ID,
			Description: desc.Instance.Description(),
			Config:      cfg,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
