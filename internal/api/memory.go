package api

import (
	"net/http"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/orchestrator"
	"github.com/go-chi/chi/v5"
)

type storeRequest struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

func (h *Handler) tier(w http.ResponseWriter, r *http.Request) (memory.Tier, bool) {
	t, err := memory.ParseTier(chi.URLParam(r, "tier"))
	if err != nil {
		writeError(w, err)
		return "", false
	}
	return t, true
}

func (h *Handler) storeMemory(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	tier, ok := h.tier(w, r)
	if !ok {
		return
	}
	var req storeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "type is required"})
		return
	}

	payload, err := memory.DecodePayload(tier, req.Type, req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := a.Memory().Store(tier, req.Type, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		// Unrouted tags outside short-term memory are dropped.
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"stored": false, "type": req.Type})
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) queryMemory(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	tier, ok := h.tier(w, r)
	if !ok {
		return
	}
	var q memory.Query
	if !decodeBody(w, r, &q) {
		return
	}
	recs, err := a.Memory().Retrieve(tier, q)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []memory.MemoryRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) memoryContents(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	tier, ok := h.tier(w, r)
	if !ok {
		return
	}
	contents, err := a.Memory().Contents(tier)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contents)
}

func (h *Handler) knowledgeGraph(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	nodes, rels := a.Memory().KnowledgeGraph()
	writeJSON(w, http.StatusOK, graphResponse(nodes, rels))
}

func (h *Handler) consolidateAgent(w http.ResponseWriter, r *http.Request) {
	h.runPass(w, r, orchestrator.PassConsolidation)
}

func (h *Handler) compressAgent(w http.ResponseWriter, r *http.Request) {
	h.runPass(w, r, orchestrator.PassCompression)
}

// runPass goes through the scheduler when there is one so sinks see the pass.
func (h *Handler) runPass(w http.ResponseWriter, r *http.Request, kind orchestrator.PassKind) {
	id := chi.URLParam(r, "id")
	if h.scheduler != nil {
		res, err := h.scheduler.RunAgent(r.Context(), id, kind)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if kind == orchestrator.PassCompression {
		writeJSON(w, http.StatusOK, a.Memory().Compress())
		return
	}
	writeJSON(w, http.StatusOK, a.Memory().Consolidate())
}

func (h *Handler) consolidateAll(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "orchestrator not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, h.scheduler.RunConsolidation(r.Context()))
}

func (h *Handler) compressAll(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "orchestrator not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, h.scheduler.RunCompression(r.Context()))
}

func (h *Handler) shareKnowledge(w http.ResponseWriter, r *http.Request) {
	if h.replicator == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "orchestrator not initialized"})
		return
	}
	res, err := h.replicator.Share(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
