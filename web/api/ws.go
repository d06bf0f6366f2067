package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server binds to localhost; browser dashboards connect from
	// file:// or arbitrary dev origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		client := make(chan Event, 16)
		s.hub.register <- client

		// Each connection gets the current snapshot immediately so
		// dashboards render without waiting for the first change.
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		_ = conn.WriteJSON(Event{Type: "status", Data: s.statusResponse()})

		go s.wsWriter(conn, client)
		s.wsReader(conn, client)
	}
}

func (s *Server) wsWriter(conn *websocket.Conn, client chan Event) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-client:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsReader drains the connection until the peer goes away, then unregisters
func (s *Server) wsReader(conn *websocket.Conn, client chan Event) {
	defer func() {
		s.hub.unregister <- client
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
