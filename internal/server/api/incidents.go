package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/panoptes/internal/store"
)

// Listing limits for GET /api/incidents.
const (
	DefaultIncidentLimit = 50
	MaxIncidentLimit     = 500
)

// IncidentHandler serves the persisted incident history.
type IncidentHandler struct {
	store *store.Store
}

// NewIncidentHandler creates a new IncidentHandler with the given store.
func NewIncidentHandler(s *store.Store) *IncidentHandler {
	return &IncidentHandler{store: s}
}

type listIncidentsResponse struct {
	Incidents []*store.Incident `json:"incidents"`
	Total     int               `json:"total"`
}

type deleteIncidentsResponse struct {
	Deleted int64 `json:"deleted"`
}

// ServeHTTP routes /api/incidents and /api/incidents/{id}.
func (h *IncidentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/incidents"), "/")

	if id == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodDelete:
			h.prune(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.get(w, id)
}

// list handles GET /api/incidents?limit=N, newest first.
func (h *IncidentHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := DefaultIncidentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxIncidentLimit)
	}

	incidents, err := h.store.Incidents().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list incidents")
		return
	}
	total, err := h.store.Incidents().Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count incidents")
		return
	}

	writeJSON(w, http.StatusOK, listIncidentsResponse{Incidents: incidents, Total: total})
}

// get handles GET /api/incidents/{id}.
func (h *IncidentHandler) get(w http.ResponseWriter, id string) {
	inc, err := h.store.Incidents().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Incident not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get incident")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// prune handles DELETE /api/incidents?before=RFC3339.
func (h *IncidentHandler) prune(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query().Get("before")
	if v == "" {
		writeError(w, http.StatusBadRequest, "before is required")
		return
	}
	before, err := time.Parse(time.RFC3339, v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "before must be an RFC3339 time")
		return
	}

	n, err := h.store.Incidents().DeleteBefore(before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete incidents")
		return
	}
	writeJSON(w, http.StatusOK, deleteIncidentsResponse{Deleted: n})
}
