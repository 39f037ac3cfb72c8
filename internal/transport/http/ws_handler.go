package http

import (
	"net/http"
	"strconv"

	"survey-service/internal/app"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WSHandler streams live results over a websocket: one event per accepted
// submission, so an open admin results page updates without polling.
type WSHandler struct {
	service  *app.SurveyService
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SurveyService, log *logrus.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type subscribedPayload struct {
	SurveyID int `json:"surveyId"`
}

// ServeLive upgrades the request and forwards submission events until the
// client disconnects or the survey is deleted.
func (h *WSHandler) ServeLive(w http.ResponseWriter, r *http.Request) {
	surveyID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	updates, cancel, err := h.service.SubscribeResults(r.Context(), surveyID)
	if err != nil {
		h.log.WithError(err).WithField("survey", surveyID).Warn("live subscribe failed")
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	send := make(chan any, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer goroutine; gorilla connections do not allow
	// concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.WithError(err).Debug("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					// Survey deleted; tell the client before closing.
					select {
					case send <- outboundMessage[subscribedPayload]{Type: "closed", Payload: subscribedPayload{SurveyID: surveyID}}:
					case <-closeSignals:
					}
					_ = conn.Close()
					return
				}
				select {
				case send <- outboundMessage[app.ResultsUpdate]{Type: "submission", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[subscribedPayload]{Type: "subscribed", Payload: subscribedPayload{SurveyID: surveyID}}

	// The feed is one-way. Reading drains control frames and detects
	// the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
