package api

import (
	"net/http"
	"sort"

	"github.com/triage-ai/rasp-agent/internal/store"
	"go.uber.org/zap"
)

// handleListModules implements GET /v1/modules.
func (d *Dependencies) handleListModules(w http.ResponseWriter, _ *http.Request) {
	status := d.Modules.Status()
	out := make([]ModuleResp, 0, len(status))
	for id, active := range status {
		out = append(out, ModuleResp{ID: id, Active: active})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (d *Dependencies) handleGetModuleConfig(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Postgres not configured"})
		return
	}
	moduleID := r.PathValue("module_id")
	mc, err := d.Store.GetModuleConfig(r.Context(), moduleID)
	if err != nil {
		d.Logger.Error("failed to get module config", zap.String("module", moduleID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get module config"})
		return
	}
	if mc == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Module config not found."})
		return
	}
	d.writeModuleConfig(w, mc)
}

func (d *Dependencies) handleReplaceModuleConfig(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Postgres not configured"})
		return
	}
	moduleID := r.PathValue("module_id")
	if !d.knownModule(moduleID) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Unknown module."})
		return
	}

	var req ModuleConfigReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if err := validateModuleConfig(req.Config); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "config must be a flat object of scalars: " + err.Error()})
		return
	}
	cfg, err := store.DecodeFlat(req.Config)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "config must be a flat object of scalars"})
		return
	}

	mc, err := d.Store.UpsertModuleConfig(r.Context(), moduleID, cfg)
	if err != nil {
		d.Logger.Error("failed to replace module config", zap.String("module", moduleID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to replace module config"})
		return
	}
	d.reload(r, moduleID)
	d.writeModuleConfig(w, mc)
}

// handleSetModuleEnabled toggles whether a module's stored configuration
// applies. A disabled row leaves the module on its defaults.
func (d *Dependencies) handleSetModuleEnabled(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Postgres not configured"})
		return
	}
	moduleID := r.PathValue("module_id")

	var req SetEnabledReq
	if err := readJSON(w, r, &req); err != nil || req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "enabled is required"})
		return
	}

	found, err := d.Store.SetModuleEnabled(r.Context(), moduleID, *req.Enabled)
	if err != nil {
		d.Logger.Error("failed to toggle module config", zap.String("module", moduleID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update module"})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Module config not found."})
		return
	}
	d.reload(r, moduleID)
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) knownModule(id string) bool {
	if d.Modules == nil {
		return true
	}
	_, ok := d.Modules.Status()[id]
	return ok
}

// reload applies a stored change. Failures are logged; the row is already
// committed and the next reload will pick it up.
func (d *Dependencies) reload(r *http.Request, moduleID string) {
	if d.Reload == nil {
		return
	}
	if err := d.Reload(r.Context(), "api:"+moduleID); err != nil {
		d.Logger.Warn("reconfiguration after api change failed", zap.String("module", moduleID), zap.Error(err))
	}
}

func (d *Dependencies) writeModuleConfig(w http.ResponseWriter, mc *store.ModuleConfig) {
	cfg, err := mc.Map()
	if err != nil {
		d.Logger.Error("stored module config does not decode", zap.String("module", mc.ModuleID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Stored config is invalid"})
		return
	}
	writeJSON(w, http.StatusOK, ModuleConfigResp{
		ModuleID:  mc.ModuleID,
		Config:    cfg,
		Enabled:   mc.Enabled,
		UpdatedAt: mc.UpdatedAt,
	})
}
