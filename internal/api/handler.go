package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/agent"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/orchestrator"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// StatsErrorMessage is the body dashboards receive when an agent's stats
// cannot be read.
const StatsErrorMessage = "Failed to retrieve memory stats"

// ReportLister reads the maintenance audit log.
type ReportLister interface {
	ListReports(ctx context.Context, agentID string, limit int) ([]store.Entry, error)
}

// GraphReader reads the mirrored knowledge graph.
type GraphReader interface {
	Graph(ctx context.Context, agentID string) ([]memory.KnowledgeNode, []memory.Relationship, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	registry   *agent.Registry
	scheduler  *orchestrator.Scheduler
	replicator *orchestrator.Replicator
	hub        *Hub
	reports    ReportLister
	graph      GraphReader
	logger     *zap.Logger
}

// NewHandler creates a new API handler. hub may be nil.
func NewHandler(
	registry *agent.Registry,
	scheduler *orchestrator.Scheduler,
	replicator *orchestrator.Replicator,
	hub *Hub,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		registry:   registry,
		scheduler:  scheduler,
		replicator: replicator,
		hub:        hub,
		logger:     logger,
	}
}

// SetReports enables the audit log routes.
func (h *Handler) SetReports(r ReportLister) { h.reports = r }

// SetGraph enables the mirrored graph route.
func (h *Handler) SetGraph(g GraphReader) { h.graph = g }

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/agents", h.listAgents)
		r.Post("/agents", h.createAgent)
		r.Get("/agents/{id}", h.getAgent)
		r.Get("/agents/{id}/stats", h.agentStats)
		r.Get("/dashboard/stats", h.dashboardStats)

		// Memory routes
		r.Get("/agents/{id}/memory/{tier}", h.memoryContents)
		r.Post("/agents/{id}/memory/{tier}", h.storeMemory)
		r.Post("/agents/{id}/memory/{tier}/query", h.queryMemory)
		r.Get("/agents/{id}/knowledge", h.knowledgeGraph)
		r.Post("/agents/{id}/consolidate", h.consolidateAgent)
		r.Post("/agents/{id}/compress", h.compressAgent)

		// Agent logic routes
		r.Post("/agents/{id}/triage", h.triageLead)
		r.Post("/agents/{id}/engage", h.engage)
		r.Post("/agents/{id}/optimize", h.optimizeCampaign)

		// Orchestrator routes
		r.Post("/orchestrator/consolidate", h.consolidateAll)
		r.Post("/orchestrator/compress", h.compressAll)
		r.Post("/orchestrator/share/{id}", h.shareKnowledge)
		r.Get("/orchestrator/status", h.orchestratorStatus)

		// Persistence-backed routes
		r.Get("/agents/{id}/reports", h.listReports)
		r.Get("/agents/{id}/graph", h.mirroredGraph)

		if h.hub != nil {
			r.Get("/ws", h.hub.ServeHTTP)
		}
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"agents": len(h.registry.List()),
	})
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	agents := h.registry.List()
	out := make([]agent.Info, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

type createAgentRequest struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	kind, err := agent.ParseKind(req.Kind)
	if err != nil {
		writeError(w, err)
		return
	}
	a, err := h.registry.Register(req.ID, kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.Snapshot())
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.Snapshot())
}

func (h *Handler) agentStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stats, err := h.registry.Stats(id)
	if err != nil {
		h.logger.Warn("memory stats", zap.String("agent", id), zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, agent.ErrAgentNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": StatsErrorMessage})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// dashboardStats returns every agent's stats keyed by id. A failing agent
// carries an error object instead; the others are still reported.
func (h *Handler) dashboardStats(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]interface{})
	for _, a := range h.registry.List() {
		stats, err := h.registry.Stats(a.ID)
		if err != nil {
			h.logger.Warn("memory stats", zap.String("agent", a.ID), zap.Error(err))
			out[a.ID] = map[string]string{"error": StatsErrorMessage}
			continue
		}
		out[a.ID] = stats
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) orchestratorStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"scheduler": h.scheduler != nil}
	if h.scheduler != nil {
		resp["running"] = h.scheduler.Running()
	}
	if h.hub != nil {
		resp["ws_clients"] = h.hub.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "report store not initialized"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.reports.ListReports(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) mirroredGraph(w http.ResponseWriter, r *http.Request) {
	if h.graph == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "graph mirror not initialized"})
		return
	}
	nodes, rels, err := h.graph.Graph(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, graphResponse(nodes, rels))
}

func graphResponse(nodes []memory.KnowledgeNode, rels []memory.Relationship) map[string]interface{} {
	if nodes == nil {
		nodes = []memory.KnowledgeNode{}
	}
	if rels == nil {
		rels = []memory.Relationship{}
	}
	return map[string]interface{}{"nodes": nodes, "relationships": rels}
}

// lookup resolves the {id} agent or writes a 404.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*agent.Agent, bool) {
	a, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return nil, false
	}
	return a, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

// writeError maps package sentinels onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, agent.ErrAgentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, agent.ErrAgentExists):
		status = http.StatusConflict
	case errors.Is(err, agent.ErrUnknownKind),
		errors.Is(err, agent.ErrWrongKind),
		errors.Is(err, agent.ErrInvalidInput),
		errors.Is(err, memory.ErrUnknownTier),
		errors.Is(err, memory.ErrNilPayload):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
