package api

import (
	"net/http"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/agent"
)

func (h *Handler) triageLead(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var in agent.LeadInput
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := a.Triage(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) engage(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var in agent.InteractionInput
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := a.Engage(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) optimizeCampaign(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var in agent.CampaignInput
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := a.Optimize(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
