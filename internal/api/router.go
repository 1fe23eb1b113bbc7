package api

import (
	"context"
	"net/http"
	"time"

	"github.com/triage-ai/rasp-agent/internal/auth"
	"github.com/triage-ai/rasp-agent/internal/chread"
	"github.com/triage-ai/rasp-agent/internal/engine"
	"github.com/triage-ai/rasp-agent/internal/store"
	"github.com/triage-ai/rasp-agent/internal/watch"
	"go.uber.org/zap"
)

// ConfigStore is the persisted module configuration; *store.Store implements it.
type ConfigStore interface {
	GetModuleConfig(ctx context.Context, moduleID string) (*store.ModuleConfig, error)
	UpsertModuleConfig(ctx context.Context, moduleID string, cfg map[string]string) (*store.ModuleConfig, error)
	SetModuleEnabled(ctx context.Context, moduleID string, enabled bool) (bool, error)
}

// AttackReader queries recorded attacks; *chread.Reader implements it.
type AttackReader interface {
	ListAttacks(ctx context.Context, params chread.ListAttacksParams) ([]chread.AttackRow, int, error)
	CountByAlgorithm(ctx context.Context, since time.Time) ([]chread.AlgorithmCount, error)
}

// ModuleStatus reports module activation; *module.Manager implements it.
type ModuleStatus interface {
	Status() map[string]bool
}

// Dependencies holds shared state injected into all HTTP handlers.
// Store, Reader and Reload are optional and leave their routes answering 503.
type Dependencies struct {
	Pipeline *engine.Pipeline
	Registry *engine.Registry
	Modules  ModuleStatus
	Auth     auth.Authenticator
	Store    ConfigStore      // nil if Postgres unavailable
	Reader   AttackReader     // nil if ClickHouse unavailable
	Reload   watch.ReloadFunc // applies stored configuration after a change
	Logger   *zap.Logger

	AllowedOrigin string // CORS origin, "*" when empty
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	if deps.Auth == nil {
		deps.Auth = auth.NewOpenAuthenticator()
	}
	mux := http.NewServeMux()

	// Interception boundary for out-of-process hosts
	mux.HandleFunc("POST /v1/check", deps.authMiddleware(deps.handleCheck))
	mux.HandleFunc("GET /v1/algorithms", deps.authMiddleware(deps.handleListAlgorithms))

	// Module configuration
	mux.HandleFunc("GET /v1/modules", deps.authMiddleware(deps.handleListModules))
	mux.HandleFunc("GET /v1/modules/{module_id}/config", deps.authMiddleware(deps.handleGetModuleConfig))
	mux.HandleFunc("PUT /v1/modules/{module_id}/config", deps.authMiddleware(deps.handleReplaceModuleConfig))
	mux.HandleFunc("PATCH /v1/modules/{module_id}", deps.authMiddleware(deps.handleSetModuleEnabled))

	// Recorded attacks
	mux.HandleFunc("GET /v1/attacks", deps.authMiddleware(deps.handleListAttacks))
	mux.HandleFunc("GET /v1/attacks/summary", deps.authMiddleware(deps.handleAttackSummary))

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger), deps.AllowedOrigin)
}
