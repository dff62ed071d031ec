package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/observability/logging"
	"media-transcription-pipeline/internal/service/pipeline"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsMessage struct {
	Type  string              `json:"type"`
	Job   *models.JobSnapshot `json:"job,omitempty"`
	Event *pipeline.Event     `json:"event,omitempty"`
}

// jobEvents streams a job over a websocket: the current snapshot, then
// every buffered and live event after ?since (default 0). The socket is
// closed after the terminal event.
func (h *handlers) jobEvents(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, models.NewError(models.KindValidation, "events", "since must be a non-negative integer", nil))
			return
		}
		since = n
	}

	id := chi.URLParam(r, "id")
	logger := logging.WithJob("http", id)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg wsMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug().Err(err).Msg("WebSocket write failed")
			return false
		}
		return true
	}
	closeNormal := func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
			time.Now().Add(wsWriteWait))
	}

	if !send(wsMessage{Type: "snapshot", Job: &snap}) {
		return
	}

	bus := h.deps.Manager.Events()
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	terminal := snap.Stage.IsTerminal()
	done := h.deps.Manager.Done(id)

	for {
		// Take the wake channel before reading so no publish is missed.
		wake := bus.Wait()
		for _, ev := range bus.Since(id, since) {
			since = ev.Seq
			ev := ev
			if !send(wsMessage{Type: "event", Event: &ev}) {
				return
			}
			if ev.Type == pipeline.EventTypeCompleted || ev.Type == pipeline.EventTypeError {
				terminal = true
			}
		}
		if terminal {
			closeNormal()
			return
		}

		select {
		case <-wake:
		case <-done:
			terminal = true
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
