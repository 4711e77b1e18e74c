package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/blockgraph/internal/block"
	"github.com/gyaneshwarpardhi/blockgraph/internal/change"
	"github.com/gyaneshwarpardhi/blockgraph/internal/config"
	"github.com/gyaneshwarpardhi/blockgraph/internal/engine"
	"github.com/gyaneshwarpardhi/blockgraph/internal/metrics"
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	sess   *engine.Session
	loader *config.Loader
	mux    *http.ServeMux
}

// blockRequest is the body of add and edit calls.
type blockRequest struct {
	Geometry block.Geometry `json:"geometry"`
	Skip     []block.ID     `json:"skip,omitempty"`
}

type planRequest struct {
	Changed []block.ID `json:"changed"`
}

type skipRequest struct {
	Skip bool `json:"skip"`
}

// New creates an HTTP handler and registers all routes. loader may be nil,
// in which case schema reload is unavailable.
func New(sess *engine.Session, loader *config.Loader) http.Handler {
	h := &Handler{sess: sess, loader: loader, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /v1/graph", h.graph)
	h.mux.HandleFunc("GET /v1/blocks", h.listBlocks)
	h.mux.HandleFunc("GET /v1/blocks/{id}", h.getBlock)
	h.mux.HandleFunc("POST /v1/blocks/{id}", h.addBlock)
	h.mux.HandleFunc("PUT /v1/blocks/{id}", h.editBlock)
	h.mux.HandleFunc("DELETE /v1/blocks/{id}", h.removeBlock)
	h.mux.HandleFunc("POST /v1/notify", h.notify)
	h.mux.HandleFunc("POST /v1/plan", h.plan)
	h.mux.HandleFunc("POST /v1/nodes/{id}/skip", h.skipNode)
	h.mux.HandleFunc("POST /v1/schema/reload", h.reloadSchema)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// GET /v1/graph: nodes in dependency order.
func (h *Handler) graph(w http.ResponseWriter, r *http.Request) {
	view, err := h.sess.Snapshot(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GET /v1/blocks: ids of stored blocks.
func (h *Handler) listBlocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"blocks": h.sess.Registry().IDs(),
	})
}

// GET /v1/blocks/{id}: every artifact of a block.
func (h *Handler) getBlock(w http.ResponseWriter, r *http.Request) {
	id := block.ID(r.PathValue("id"))
	arts := h.sess.Registry().GetAllBlocksOfType(id)
	if len(arts) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("block %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        id,
		"artifacts": arts,
	})
}

// POST /v1/blocks/{id}: add a block and cascade.
func (h *Handler) addBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if !decode(w, r, &req, true) {
		return
	}
	res, err := h.sess.AddBlock(r.Context(), block.ID(r.PathValue("id")), req.Geometry)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// PUT /v1/blocks/{id}: overwrite a block and cascade.
func (h *Handler) editBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if !decode(w, r, &req, false) {
		return
	}
	res, err := h.sess.EditBlock(r.Context(), block.ID(r.PathValue("id")), req.Geometry, req.Skip...)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DELETE /v1/blocks/{id}
func (h *Handler) removeBlock(w http.ResponseWriter, r *http.Request) {
	id := block.ID(r.PathValue("id"))
	n, err := h.sess.RemoveBlock(r.Context(), id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("block %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "removed": n})
}

// POST /v1/notify: run a cascade for a change set.
func (h *Handler) notify(w http.ResponseWriter, r *http.Request) {
	var cs change.Set
	if !decode(w, r, &cs, false) {
		return
	}
	if len(cs.Changed) == 0 {
		writeError(w, http.StatusBadRequest, "changed must name at least one block")
		return
	}
	if cs.Source == "" {
		cs.Source = "api"
	}
	rep, err := h.sess.Notify(r.Context(), &cs)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	status := http.StatusOK
	if !rep.OK {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]interface{}{
		"change_id": cs.ID,
		"report":    rep,
	})
}

// POST /v1/plan: the order a cascade would follow, without running it.
func (h *Handler) plan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !decode(w, r, &req, false) {
		return
	}
	order, err := h.sess.Plan(r.Context(), req.Changed)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"changed": req.Changed,
		"order":   order,
	})
}

// POST /v1/nodes/{id}/skip
func (h *Handler) skipNode(w http.ResponseWriter, r *http.Request) {
	var req skipRequest
	if !decode(w, r, &req, false) {
		return
	}
	id := block.ID(r.PathValue("id"))
	found, err := h.sess.SkipNode(r.Context(), id, req.Skip)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("node %s not in graph", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "skip": req.Skip})
}

// POST /v1/schema/reload: re-read the product file and rebuild the graph.
func (h *Handler) reloadSchema(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusNotImplemented, "no product file configured")
		return
	}
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.sess.Reconfigure(r.Context(), cfg); err != nil {
		if errors.Is(err, engine.ErrQueueFull) || errors.Is(err, engine.ErrTimeout) {
			writeSessionError(w, err)
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":     true,
		"blocks_count": len(cfg.Blocks),
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the command queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.sess.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}

// decode reads a JSON body into v. An empty body is accepted when allowEmpty.
func decode(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
	return false
}
