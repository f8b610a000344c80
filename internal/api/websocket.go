package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"perptrader/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// websocket pushes ticks, position lifecycle events, signals, notifications
// and advisory log lines to the browser over one connection.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	ticks, unsubTicks := s.Bus.Subscribe(events.EventPriceTick, 100)
	defer unsubTicks()
	marks, unsubMarks := s.Bus.Subscribe(events.EventMarkPrice, 100)
	defer unsubMarks()
	opened, unsubOpened := s.Bus.Subscribe(events.EventPositionOpened, 16)
	defer unsubOpened()
	closed, unsubClosed := s.Bus.Subscribe(events.EventPositionClosed, 16)
	defer unsubClosed()
	sigs, unsubSigs := s.Bus.Subscribe(events.EventTradeSignal, 32)
	defer unsubSigs()
	notes, unsubNotes := s.Bus.Subscribe(events.EventNotification, 32)
	defer unsubNotes()
	logs, unsubLogs := s.Bus.Subscribe(events.EventAdvisorLog, 64)
	defer unsubLogs()

	write := func(kind string, data any) bool {
		if err := conn.WriteJSON(wsEnvelope{Type: kind, Data: data}); err != nil {
			log.Printf("[WS] write error: %v", err)
			return false
		}
		return true
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ticks:
			if !ok || !write("tick", msg) {
				return
			}
		case msg, ok := <-marks:
			if !ok || !write("mark", msg) {
				return
			}
		case msg, ok := <-opened:
			if !ok || !write("position_opened", msg) {
				return
			}
		case msg, ok := <-closed:
			if !ok || !write("position_closed", msg) {
				return
			}
		case msg, ok := <-sigs:
			if !ok || !write("signal", msg) {
				return
			}
		case msg, ok := <-notes:
			if !ok || !write("notification", msg) {
				return
			}
		case msg, ok := <-logs:
			if !ok || !write("advisor_log", msg) {
				return
			}
		}
	}
}
