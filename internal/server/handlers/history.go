package handlers

import (
	"net/http"
	"strconv"

	"github.com/heartmula/mula/internal/api"
	"github.com/heartmula/mula/internal/history"
)

// defaultHistoryLimit bounds history queries without an explicit limit.
const defaultHistoryLimit = 20

// BuildHistory returns recent build records.
//
// GET /api/history/builds?limit=20&variant=cuda
func (h *Handler) BuildHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if h.historyStore == nil {
		h.WriteJSON(w, http.StatusOK, api.HistoryResponse{})
		return
	}

	records, err := h.historyStore.RecentBuilds(r.Context(),
		queryLimit(r), r.URL.Query().Get("variant"))
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.WriteJSON(w, http.StatusOK, api.HistoryResponse{Builds: history.BuildViews(records)})
}

// RunHistory returns recent run records.
//
// GET /api/history/runs?limit=20&alias=heartmula-3b
func (h *Handler) RunHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if h.historyStore == nil {
		h.WriteJSON(w, http.StatusOK, api.HistoryResponse{})
		return
	}

	records, err := h.historyStore.RecentRuns(r.Context(),
		queryLimit(r), r.URL.Query().Get("alias"))
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.WriteJSON(w, http.StatusOK, api.HistoryResponse{Runs: history.RunViews(records)})
}

// queryLimit parses the limit parameter, falling back to the default.
func queryLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			return limit
		}
	}
	return defaultHistoryLimit
}
