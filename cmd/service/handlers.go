package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"visionhealth-backend/internal/bus"
	"visionhealth-backend/internal/monitor"
	"visionhealth-backend/internal/scheduler"
)

type Engine interface {
	Collect(ctx context.Context, orgID string) (monitor.CollectSummary, error)
	HealthSnapshot(ctx context.Context, orgID string) (monitor.HealthSnapshot, error)
	ResolveAlert(ctx context.Context, orgID, alertID string) error
	Targets() []monitor.ProbeTarget
}

type RuleRepository interface {
	ListRules(ctx context.Context, orgID string) ([]monitor.AlertRule, error)
	GetRule(ctx context.Context, orgID, id string) (monitor.AlertRule, error)
	CreateRule(ctx context.Context, rule monitor.AlertRule) (monitor.AlertRule, error)
	UpdateRule(ctx context.Context, rule monitor.AlertRule) (monitor.AlertRule, error)
	SetRuleActive(ctx context.Context, orgID, id string, active bool) error
}

type AlertLister interface {
	ListFiring(ctx context.Context, orgID string) ([]monitor.ActiveAlert, error)
}

type RuleEventPublisher interface {
	Publish(subject string, rule monitor.AlertRule)
}

type JobLister interface {
	ListJobs() []scheduler.JobInfo
}

type Handler struct {
	Engine  Engine
	Rules   RuleRepository
	Alerts  AlertLister
	Events  RuleEventPublisher
	Jobs    JobLister
	Ready   func(ctx context.Context) error
	Timeout time.Duration
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.handleHealthz)
	r.Post("/health-monitor", h.handleMonitor)
	r.Get("/targets", h.handleTargets)
	r.Get("/jobs", h.handleJobs)
	r.Route("/orgs/{orgId}", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Post("/collect", h.handleCollect)
		r.Get("/alerts", h.handleAlertsList)
		r.Post("/alerts/{id}/resolve", h.handleAlertResolve)
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.handleRulesList)
			r.Post("/", h.handleRulesCreate)
			r.Get("/{id}", h.handleRuleGet)
			r.Put("/{id}", h.handleRuleUpdate)
			r.Post("/{id}/enable", h.handleRuleEnable)
			r.Post("/{id}/disable", h.handleRuleDisable)
		})
	})
}

func (h *Handler) context(r *http.Request) (context.Context, context.CancelFunc) {
	if h.Timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.Timeout)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		ctx, cancel := h.context(r)
		defer cancel()
		if err := h.Ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMonitor serves {"action":"collect"|"health","orgId":...}.
func (h *Handler) handleMonitor(w http.ResponseWriter, r *http.Request) {
	var req monitorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	action, err := monitor.ParseAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.OrgID) == "" {
		writeError(w, http.StatusBadRequest, "orgId is required")
		return
	}
	switch action {
	case monitor.ActionCollect:
		h.collect(w, r, req.OrgID)
	case monitor.ActionHealth:
		h.health(w, r, req.OrgID)
	}
}

func (h *Handler) handleCollect(w http.ResponseWriter, r *http.Request) {
	h.collect(w, r, chi.URLParam(r, "orgId"))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.health(w, r, chi.URLParam(r, "orgId"))
}

func (h *Handler) collect(w http.ResponseWriter, r *http.Request, orgID string) {
	ctx, cancel := h.context(r)
	defer cancel()
	summary, err := h.Engine.Collect(ctx, orgID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"metrics_collected": summary.MetricsCollected,
		"services_checked":  summary.ServicesChecked,
		"timestamp":         summary.Timestamp,
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request, orgID string) {
	ctx, cancel := h.context(r)
	defer cancel()
	snapshot, err := h.Engine.HealthSnapshot(ctx, orgID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleTargets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"targets": h.Engine.Targets()})
}

func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobInfo{}
	if h.Jobs != nil {
		jobs = h.Jobs.ListJobs()
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *Handler) handleAlertsList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	alerts, err := h.Alerts.ListFiring(ctx, chi.URLParam(r, "orgId"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *Handler) handleAlertResolve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.Engine.ResolveAlert(ctx, chi.URLParam(r, "orgId"), chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleRulesList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	rules, err := h.Rules.ListRules(ctx, chi.URLParam(r, "orgId"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *Handler) handleRulesCreate(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if verr := req.missingThreshold(); verr != nil {
		writeValidationError(w, verr)
		return
	}
	rule := req.toRule(chi.URLParam(r, "orgId"), true)
	if verr := monitor.ValidateRule(rule); verr != nil {
		writeValidationError(w, verr)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	created, err := h.Rules.CreateRule(ctx, rule)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.publish(bus.SubjectRuleCreated, created)
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleRuleGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	rule, err := h.Rules.GetRule(ctx, chi.URLParam(r, "orgId"), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) handleRuleUpdate(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if verr := req.missingThreshold(); verr != nil {
		writeValidationError(w, verr)
		return
	}
	orgID, id := chi.URLParam(r, "orgId"), chi.URLParam(r, "id")
	ctx, cancel := h.context(r)
	defer cancel()
	existing, err := h.Rules.GetRule(ctx, orgID, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	rule := req.toRule(orgID, existing.IsActive)
	rule.ID = id
	if verr := monitor.ValidateRule(rule); verr != nil {
		writeValidationError(w, verr)
		return
	}
	updated, err := h.Rules.UpdateRule(ctx, rule)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.publish(bus.SubjectRuleUpdated, updated)
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleRuleEnable(w http.ResponseWriter, r *http.Request) {
	h.setRuleActive(w, r, true)
}

func (h *Handler) handleRuleDisable(w http.ResponseWriter, r *http.Request) {
	h.setRuleActive(w, r, false)
}

func (h *Handler) setRuleActive(w http.ResponseWriter, r *http.Request, active bool) {
	orgID, id := chi.URLParam(r, "orgId"), chi.URLParam(r, "id")
	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.Rules.SetRuleActive(ctx, orgID, id, active); err != nil {
		writeEngineError(w, err)
		return
	}
	subject := bus.SubjectRuleDisabled
	if active {
		subject = bus.SubjectRuleEnabled
	}
	h.publish(subject, monitor.AlertRule{ID: id, OrgID: orgID, IsActive: active})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "is_active": active})
}

func (h *Handler) publish(subject string, rule monitor.AlertRule) {
	if h.Events != nil {
		h.Events.Publish(subject, rule)
	}
}
