package api

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"

	"github.com/miradorstack/mirador-sentinel/internal/models"
	"github.com/miradorstack/mirador-sentinel/internal/tracker"
	"github.com/miradorstack/mirador-sentinel/internal/utils"
)

type handlers struct {
	tracker *tracker.Tracker
	logger  *slog.Logger
}

type statusResponse struct {
	Status string `json:"status"`
}

type incidentListResponse struct {
	Incidents []models.Incident `json:"incidents"`
	Count     int               `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) livez(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, statusResponse{Status: "ok"})
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, statusResponse{Status: "ready"})
}

func (h *handlers) listOpen(w http.ResponseWriter, r *http.Request) {
	incidents := h.tracker.Open()
	sort.Slice(incidents, func(i, j int) bool {
		return incidents[i].CreatedAt.Before(incidents[j].CreatedAt)
	})
	render.JSON(w, r, incidentListResponse{Incidents: incidents, Count: len(incidents)})
}

// listResolved returns retained resolved incidents, optionally filtered
// by a ?since=RFC3339 lower bound on resolution time.
func (h *handlers) listResolved(w http.ResponseWriter, r *http.Request) {
	incidents := h.tracker.Resolved()

	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := utils.ParseRFC3339(raw)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: "invalid since parameter, expected RFC3339"})
			return
		}
		filtered := incidents[:0]
		for _, incident := range incidents {
			if incident.ResolvedAt != nil && !incident.ResolvedAt.Before(since) {
				filtered = append(filtered, incident)
			}
		}
		incidents = filtered
	}

	render.JSON(w, r, incidentListResponse{Incidents: incidents, Count: len(incidents)})
}

func (h *handlers) getByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	incident, ok := h.tracker.Get(id)
	if !ok {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errorResponse{Error: "incident not found"})
		return
	}
	render.JSON(w, r, incident)
}
