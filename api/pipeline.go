package api

import (
	"encoding/json"
	"io"
	"net/http"

	"costplan/core/interpreter"
	"costplan/core/orchestrator"
	"costplan/core/types"
	"costplan/core/usage"
	"costplan/internal/errors"
)

// jsonRaw passes pre-encoded JSON through without re-encoding.
func jsonRaw(data []byte) json.RawMessage {
	return json.RawMessage(data)
}

// PipelineHandler exposes the individual pipeline components on the
// internal surface.
type PipelineHandler struct {
	enricher orchestrator.Enricher
	pricer   orchestrator.Pricer
	profiles *usage.Store
	modeler  orchestrator.UsageModeler
	engine   orchestrator.CostEngine
}

// NewPipelineHandler wires the internal component endpoints.
func NewPipelineHandler(enricher orchestrator.Enricher, pricer orchestrator.Pricer,
	profiles *usage.Store, modeler orchestrator.UsageModeler, engine orchestrator.CostEngine) *PipelineHandler {
	return &PipelineHandler{
		enricher: enricher,
		pricer:   pricer,
		profiles: profiles,
		modeler:  modeler,
		engine:   engine,
	}
}

// handleInterpret turns a raw plan document into the normalized graph.
func (h *PipelineHandler) handleInterpret(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errors.Wrap(errors.TypeValidation, "reading request body", err))
		return
	}

	graph, meta, err := interpreter.Interpret(raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"graph":    graph,
		"metadata": meta,
	}, http.StatusOK)
}

// handleEnrich enriches a normalized graph.
func (h *PipelineHandler) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var graph types.NRG
	if err := decodeJSON(r, &graph); err != nil {
		writeError(w, err)
		return
	}

	enriched, meta, err := h.enricher.Enrich(r.Context(), &graph)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"graph":    enriched,
		"metadata": meta,
	}, http.StatusOK)
}

func (h *PipelineHandler) handlePricingLookup(w http.ResponseWriter, r *http.Request) {
	var lookup types.PricingLookup
	if err := decodeJSON(r, &lookup); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.pricer.Lookup(r.Context(), lookup)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result, http.StatusOK)
}

func (h *PipelineHandler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"profiles": h.profiles.Names(),
	}, http.StatusOK)
}

// annotateRequest resolves usage for one resource
type annotateRequest struct {
	Profile   string                `json:"profile"`
	Request   usage.Request         `json:"request"`
	Overrides []types.UsageOverride `json:"overrides,omitempty"`
}

func (h *PipelineHandler) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	var req annotateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	annotation, err := h.modeler.Annotate(req.Profile, req.Request, req.Overrides)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, annotation, http.StatusOK)
}

// computeRequest carries the costing stage inputs
type computeRequest struct {
	Graph  types.ERG                           `json:"graph"`
	Prices map[string]*types.PricingResult     `json:"prices"`
	Usage  map[string]*types.UsageAnnotation   `json:"usage"`
}

func (h *PipelineHandler) handleCompute(w http.ResponseWriter, r *http.Request) {
	var req computeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	model, err := h.engine.Compute(r.Context(), &req.Graph, req.Prices, req.Usage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, model, http.StatusOK)
}
