package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/triage-ai/rasp-agent/internal/chread"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListAttacks(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	params := listAttacksParams(r.URL.Query())
	attacks, total, err := d.Reader.ListAttacks(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list attacks", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list attacks"})
		return
	}
	if attacks == nil {
		attacks = []chread.AttackRow{}
	}

	writeJSON(w, http.StatusOK, AttackListResp{
		Attacks:  attacks,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

func (d *Dependencies) handleAttackSummary(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	days := queryInt(r.URL.Query(), "days", 7)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	counts, err := d.Reader.CountByAlgorithm(r.Context(), since)
	if err != nil {
		d.Logger.Error("failed to summarize attacks", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to summarize attacks"})
		return
	}
	writeJSON(w, http.StatusOK, AttackSummaryResp{Since: since, ByAlgorithm: counts})
}

// listAttacksParams parses filters and clamps pagination. Unparseable
// filters are ignored.
func listAttacksParams(q url.Values) chread.ListAttacksParams {
	params := chread.ListAttacksParams{
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.PageSize < 1 {
		params.PageSize = 50
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("algorithm"); v != "" {
		params.AlgorithmType = &v
	}
	if v := q.Get("request_id"); v != "" {
		params.RequestID = &v
	}
	if v := q.Get("blocked"); v != "" {
		b := v == "true" || v == "1"
		params.Blocked = &b
	}
	if v := q.Get("min_severity"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 100 {
			params.MinSeverity = &n
		}
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}
	return params
}

func queryInt(q url.Values, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
