// Package handlers implements the HTTP handlers for the resolution
// engine's facade: problem resolution, calibration, the shared knowledge
// store, and the pattern index.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fathomly/resolver-engine/internal/calibrator"
	"github.com/fathomly/resolver-engine/internal/engine"
	"github.com/fathomly/resolver-engine/internal/knowledge"
	"github.com/fathomly/resolver-engine/internal/patternindex"
	"github.com/fathomly/resolver-engine/internal/resolvetypes"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handlers holds the Engine every handler method calls into.
type Handlers struct {
	Engine *engine.Engine
}

// New creates a Handlers instance wired to e.
func New(e *engine.Engine) *Handlers {
	return &Handlers{Engine: e}
}

// ══════════════════════════════════════════════════════════════
// ── Resolution ───────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type solveRequest struct {
	Description string            `json:"description"`
	Context     map[string]string `json:"context,omitempty"`
	DomainHints []resolvetypes.Domain `json:"domain_hints,omitempty"`
}

// Solve runs a problem through the full domain-routing and escalation
// pipeline.
func (h *Handlers) Solve(w http.ResponseWriter, r *http.Request) {
	var req solveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Description == "" {
		respondError(w, http.StatusBadRequest, "description is required")
		return
	}

	problem := resolvetypes.Problem{
		ID:          uuid.New().String(),
		Description: req.Description,
		Context:     req.Context,
		DomainHints: req.DomainHints,
	}

	sol, err := h.Engine.Solve(r.Context(), problem)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sol)
}

// ══════════════════════════════════════════════════════════════
// ── Calibrator ───────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type calibrationRequest struct {
	ClaimedConfidence float64               `json:"claimed_confidence"`
	ActualCorrect     bool                  `json:"actual_correct"`
	ResponseContent   string                `json:"response_content"`
	TaskDescription   string                `json:"task_description"`
	AgentName         string                `json:"agent_name"`
	Domain            resolvetypes.Domain   `json:"domain,omitempty"`
	Factors           map[string]string     `json:"factors,omitempty"`
}

// RecordCalibration records one observed (claimed, actual) outcome.
func (h *Handlers) RecordCalibration(w http.ResponseWriter, r *http.Request) {
	var req calibrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.Engine.RecordCalibration(r.Context(), req.ClaimedConfidence, req.ActualCorrect,
		req.ResponseContent, req.TaskDescription, req.AgentName, req.Domain, req.Factors)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// CalibrationStatistics reports accuracy/Brier/calibration-error, filtered
// by the optional agent and domain query parameters.
func (h *Handlers) CalibrationStatistics(w http.ResponseWriter, r *http.Request) {
	f := calibrator.Filter{
		Agent:  r.URL.Query().Get("agent"),
		Domain: resolvetypes.Domain(r.URL.Query().Get("domain")),
	}
	stats, err := h.Engine.CalibrationStatistics(r.Context(), f)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// CalibrationAdjustment reports the confidence-adjustment multiplier for
// the optional agent and domain query parameters.
func (h *Handlers) CalibrationAdjustment(w http.ResponseWriter, r *http.Request) {
	f := calibrator.Filter{
		Agent:  r.URL.Query().Get("agent"),
		Domain: resolvetypes.Domain(r.URL.Query().Get("domain")),
	}
	factor, err := h.Engine.AdjustmentFactor(r.Context(), f)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]float64{"adjustment_factor": factor})
}

// ══════════════════════════════════════════════════════════════
// ── Shared Knowledge Store ───────────────────────────────────
// ══════════════════════════════════════════════════════════════

// InsertDiscovery adds a new piece of shared knowledge.
func (h *Handlers) InsertDiscovery(w http.ResponseWriter, r *http.Request) {
	var d resolvetypes.Discovery
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if err := h.Engine.InsertDiscovery(r.Context(), d); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

// GetDiscovery looks up a discovery by id.
func (h *Handlers) GetDiscovery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := h.Engine.GetDiscovery(r.Context(), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if d == nil {
		respondError(w, http.StatusNotFound, "discovery not found")
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// QueryDiscoveries runs a filtered query over the knowledge store.
func (h *Handlers) QueryDiscoveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if l := q.Get("limit"); l != "" {
		if parsed, err := parsePositiveInt(l); err == nil {
			limit = parsed
		}
	}
	f := knowledge.Filter{
		Type:     resolvetypes.DiscoveryType(q.Get("type")),
		Severity: q.Get("severity"),
		Domain:   resolvetypes.Domain(q.Get("domain")),
		Agent:    q.Get("agent"),
		FilePath: q.Get("file"),
		Limit:    limit,
	}
	if tag := q.Get("tag"); tag != "" {
		f.Tags = []string{tag}
	}

	results, err := h.Engine.QueryDiscoveries(r.Context(), f)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if results == nil {
		results = []resolvetypes.Discovery{}
	}
	respondJSON(w, http.StatusOK, results)
}

// IncrementDiscoveryReferences bumps a discovery's reference count.
func (h *Handlers) IncrementDiscoveryReferences(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Engine.IncrementDiscoveryReferences(r.Context(), id); err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkDiscoveryValidated flips a discovery's validated flag.
func (h *Handlers) MarkDiscoveryValidated(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Engine.MarkDiscoveryValidated(r.Context(), id); err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// KnowledgeStatistics summarizes the knowledge store's contents.
func (h *Handlers) KnowledgeStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Engine.KnowledgeStatistics(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// ══════════════════════════════════════════════════════════════
// ── Pattern Index ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type searchPatternsRequest struct {
	Query   string                   `json:"query"`
	Context *resolvetypes.MatchContext `json:"context,omitempty"`
}

// SearchPatterns ranks patterns against a free-text query.
func (h *Handlers) SearchPatterns(w http.ResponseWriter, r *http.Request) {
	var req searchPatternsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	matches, err := h.Engine.SearchPatterns(r.Context(), req.Query, req.Context)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if matches == nil {
		matches = []patternindex.PatternMatch{}
	}
	respondJSON(w, http.StatusOK, matches)
}

// AddPattern inserts a new pattern, replicating it into the distributed
// pattern network when one is configured.
func (h *Handlers) AddPattern(w http.ResponseWriter, r *http.Request) {
	var p resolvetypes.Pattern
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	out, err := h.Engine.AddPattern(r.Context(), p)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, out)
}

// RebuildPatterns reindexes from the pattern index's configured source
// directory.
func (h *Handlers) RebuildPatterns(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.RebuildPatterns(r.Context()); err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recordUsageRequest struct {
	Confidence float64 `json:"confidence"`
}

// RecordPatternUsage increments a pattern's usage count.
func (h *Handlers) RecordPatternUsage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req recordUsageRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if err := h.Engine.RecordPatternUsage(r.Context(), id, req.Confidence); err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PatternStatistics summarizes the pattern index.
func (h *Handlers) PatternStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Engine.PatternStatistics(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// ══════════════════════════════════════════════════════════════
// ── Helpers ──────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondEngineError maps an engine-layer resolvetypes.Error to an HTTP
// status by its Kind; unrecognized errors fall back to 500.
func respondEngineError(w http.ResponseWriter, err error) {
	kind, ok := resolvetypes.KindOf(err)
	if !ok {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch kind {
	case resolvetypes.KindNotFound:
		respondError(w, http.StatusNotFound, err.Error())
	case resolvetypes.KindInvalidArgument:
		respondError(w, http.StatusBadRequest, err.Error())
	case resolvetypes.KindAgentUnavailable:
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case resolvetypes.KindTimeout:
		respondError(w, http.StatusGatewayTimeout, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
