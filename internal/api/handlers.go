package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/breakwatch/internal/geo"
	"github.com/sells-group/breakwatch/internal/model"
	"github.com/sells-group/breakwatch/internal/store"
)

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseIncidentFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	incidents, err := s.store.ListIncidents(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list incidents", err)
		return
	}
	if incidents == nil {
		incidents = []model.Incident{}
	}
	writeJSON(w, http.StatusOK, incidents)
}

func (s *server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid incident id")
		return
	}

	detail, err := s.store.GetIncidentDetail(r.Context(), id)
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	if err != nil {
		s.internalError(w, "get incident", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid incident id")
		return
	}

	feedback, err := s.store.ListFeedback(r.Context(), id)
	if err != nil {
		s.internalError(w, "list feedback", err)
		return
	}
	if feedback == nil {
		feedback = []model.Feedback{}
	}
	writeJSON(w, http.StatusOK, feedback)
}

type feedbackRequest struct {
	IncidentID string               `json:"incident_id"`
	Status     model.FeedbackStatus `json:"status"`
	Notes      string               `json:"notes"`
}

func (s *server) handleCreateFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := uuid.Parse(req.IncidentID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid incident_id")
		return
	}
	if err := model.ValidateFeedback(req.Status, req.Notes); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fb, err := s.store.CreateFeedback(r.Context(), req.IncidentID, req.Status, req.Notes)
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	if err != nil {
		s.internalError(w, "create feedback", err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

func (s *server) internalError(w http.ResponseWriter, action string, err error) {
	zap.L().Error("api: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// parseIncidentFilter reads since (RFC 3339), min_confidence (0..100),
// bbox (minLon,minLat,maxLon,maxLat) and limit.
func parseIncidentFilter(r *http.Request) (store.IncidentFilter, error) {
	var filter store.IncidentFilter
	q := r.URL.Query()

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, eris.Errorf("invalid since %q: want RFC 3339", v)
		}
		since = since.UTC()
		filter.Since = &since
	}
	if v := q.Get("min_confidence"); v != "" {
		minConf, err := strconv.ParseFloat(v, 64)
		if err != nil || minConf < 0 || minConf > 100 {
			return filter, eris.Errorf("invalid min_confidence %q: want 0..100", v)
		}
		filter.MinConfidence = &minConf
	}
	if v := q.Get("bbox"); v != "" {
		bbox, err := geo.ParseBBox(v)
		if err != nil {
			return filter, eris.Errorf("invalid bbox %q: want minLon,minLat,maxLon,maxLat", v)
		}
		filter.BBox = &bbox
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return filter, eris.Errorf("invalid limit %q", v)
		}
		filter.Limit = limit
	}
	return filter, nil
}
