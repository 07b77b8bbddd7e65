package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/camscan/internal/session"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsEventBuffer  = 64
)

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// wsConn is the write side of a connection used by the event pump.
type wsConn interface {
	WebSocketConnWriter
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin accepts same-host requests, requests without an Origin and
// the configured CORS origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.corsOrigin == "*" || origin == s.corsOrigin {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// eventsWebSocketHandler pushes session events to the client. The first
// message is a state event describing the current session.
func (s *Server) eventsWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()
	s.logger.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	events, cancel := s.sessions.Subscribe(wsEventBuffer)
	defer cancel()

	done := make(chan struct{})
	go s.readLoop(conn, done)

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	if err := s.sendEvent(conn, stateEvent(s.sessions.Status())); err != nil {
		return
	}
	s.pumpEvents(conn, events, done, ticker.C)
	s.logger.Info("WebSocket connection closed", "remote_addr", r.RemoteAddr)
}

// readLoop discards client messages and closes done when the peer goes
// away. Pongs extend the read deadline.
func (s *Server) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket read error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
	}
}

// pumpEvents forwards events until the subscription ends, the peer goes
// away or a write fails.
func (s *Server) pumpEvents(conn wsConn, events <-chan session.Event, done <-chan struct{}, ping <-chan time.Time) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.sendEvent(conn, ev); err != nil {
				return
			}
		case <-ping:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// sendEvent writes one event as a JSON text message.
func (s *Server) sendEvent(conn WebSocketConnWriter, ev session.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("Failed to marshal WebSocket event", "error", err)
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("Failed to send WebSocket message", "error", err)
		return err
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}

func stateEvent(st session.Status) session.Event {
	ev := session.Event{
		Type:      session.EventState,
		SessionID: st.SessionID,
		State:     st.State,
		Reason:    st.LastReason,
		At:        time.Now(),
	}
	if st.Device != nil {
		ev.DeviceID = st.Device.ID
	}
	return ev
}
