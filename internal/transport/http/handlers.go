// Package http exposes the survey service over REST plus a websocket
// live-results feed.
package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"survey-service/internal/app"
	"survey-service/internal/domain"
	"survey-service/internal/viz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	service *app.SurveyService
	log     *logrus.Logger
	ws      *WSHandler
}

func NewHandler(service *app.SurveyService, log *logrus.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log,
		ws:      NewWSHandler(service, log),
	}
}

// Router wires all routes. Admin routes trust the deployment perimeter;
// token issuing is a separate service consumed by the admin client.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/surveys/{id}", h.getSurvey)
		r.Post("/surveys/{id}/submissions", h.submit)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/surveys", h.createSurvey)
			r.Get("/surveys", h.listSurveys)
			r.Get("/surveys/{id}", h.getSurvey)
			r.Put("/surveys/{id}", h.updateSurvey)
			r.Delete("/surveys/{id}", h.deleteSurvey)

			r.Get("/surveys/{id}/submissions", h.listSubmissions)
			r.Post("/surveys/{id}/visualize", h.visualize)
			r.Get("/surveys/{id}/live", h.ws.ServeLive)
		})
	})

	return r
}

func (h *Handler) createSurvey(w http.ResponseWriter, r *http.Request) {
	survey := &domain.Survey{}
	if err := json.NewDecoder(r.Body).Decode(survey); err != nil {
		http.Error(w, "malformed survey", http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateSurvey(r.Context(), survey)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) listSurveys(w http.ResponseWriter, r *http.Request) {
	surveys, err := h.service.ListSurveys(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"surveys": surveys})
}

func (h *Handler) getSurvey(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}
	survey, err := h.service.GetSurvey(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, survey)
}

func (h *Handler) updateSurvey(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}
	survey := &domain.Survey{}
	if err := json.NewDecoder(r.Body).Decode(survey); err != nil {
		http.Error(w, "malformed survey", http.StatusBadRequest)
		return
	}
	survey.ID = id

	if err := h.service.UpdateSurvey(r.Context(), survey); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteSurvey(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteSurvey(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}
	submissions, err := h.service.Submissions(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"submissions": submissions})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}
	sub := &domain.Submission{}
	if err := json.NewDecoder(r.Body).Decode(sub); err != nil {
		http.Error(w, "malformed submission", http.StatusBadRequest)
		return
	}

	subID, err := h.service.Submit(r.Context(), id, sub, clientIP(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]any{"id": subID})
}

type visualizeRequest struct {
	Fields viz.Selection `json:"fields"`
}

func (h *Handler) visualize(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}
	req := visualizeRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed visualization request", http.StatusBadRequest)
		return
	}

	datasets, err := h.service.Visualize(r.Context(), id, req.Fields)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"datasets": datasets})
}

func (h *Handler) surveyID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Error("write response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrVersionConflict), errors.Is(err, domain.ErrAlreadySubmitted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.WithError(err).Error("internal error")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
