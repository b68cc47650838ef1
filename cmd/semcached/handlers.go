package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ferro-labs/semcache"
	"github.com/ferro-labs/semcache/internal/logging"
)

type handlers struct {
	cache    *semcache.Cache
	upstream *upstream
}

type queryRequest struct {
	Query string `json:"query"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return "", false
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
		return "", false
	}
	return req.Query, true
}

// lookup handles POST /v1/lookup: cache probe without computing on miss.
func (h *handlers) lookup(w http.ResponseWriter, r *http.Request) {
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	hit, ok := h.cache.Lookup(r.Context(), query)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]bool{"miss": true})
		return
	}
	writeJSON(w, http.StatusOK, hit)
}

// resolve handles POST /v1/resolve: serve from cache or proxy upstream.
func (h *handlers) resolve(w http.ResponseWriter, r *http.Request) {
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	resp, err := h.cache.Resolve(r.Context(), query, h.upstream.Compute(query))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, semcache.ErrWaitTimeout) {
			status = http.StatusGatewayTimeout
		}
		logging.FromContext(r.Context()).Error("resolve failed", "error", err.Error())
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// stats handles GET /v1/stats.
func (h *handlers) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

// flush handles DELETE /v1/entries.
func (h *handlers) flush(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Flush(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
