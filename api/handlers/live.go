package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/malbeclabs/calldash/api/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware for the rest of the API; the
	// stream carries the same data as GET /api/leads.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamEvents holds a text/event-stream open and relays change events until the
// client disconnects or the server shuts down.
func (s *Server) StreamEvents(w http.ResponseWriter, r *http.Request) {
	sink, err := events.NewSSESink(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	defer sink.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := s.cfg.Broadcaster.Subscribe(sink); err != nil {
		s.log.Debug("events: subscribe failed", "sink", sink.ID(), "error", err)
		return
	}
	defer s.cfg.Broadcaster.Unsubscribe(sink)

	ticker := s.cfg.Clock.NewTicker(s.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.Chan():
			if err := sink.Ping(); err != nil {
				return
			}
		}
	}
}

// ServeWebSocket is the websocket variant of StreamEvents.
func (s *Server) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("events: websocket upgrade failed", "error", err)
		return
	}
	sink := events.NewWebSocketSink(conn)
	defer func() { _ = sink.Close() }()

	if err := s.cfg.Broadcaster.Subscribe(sink); err != nil {
		s.log.Debug("events: subscribe failed", "sink", sink.ID(), "error", err)
		return
	}
	defer s.cfg.Broadcaster.Unsubscribe(sink)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sink.Serve()
	}()

	select {
	case <-done:
	case <-r.Context().Done():
	}
}
