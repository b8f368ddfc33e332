package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tankman61/VibeTrade/internal/broadcast"
	"github.com/Tankman61/VibeTrade/internal/logger"
	"github.com/Tankman61/VibeTrade/internal/models"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser dashboards connect from arbitrary origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConn adapts a gorilla connection to the hub's Conn interface. The hub
// serializes writes, so no extra write lock is needed here.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed: %v", err)
		return
	}

	id := s.hub.Register(&wsConn{conn: conn})
	logger.Info("Client %s connected (%d total)", id, s.hub.Count())

	s.hub.Send(id, models.ConnectedMessage{
		Message:    "Connected to Risk Console",
		Statistics: s.pipeline.Statistics(),
	})

	s.readLoop(id, conn)
}

// readLoop handles inbound client requests until the connection drops.
func (s *Server) readLoop(id string, conn *websocket.Conn) {
	defer func() {
		s.hub.Unregister(id)
		logger.Info("Client %s disconnected (%d total)", id, s.hub.Count())
	}()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(wsPongTimeout)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Client %s read error: %v", id, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout)) //nolint:errcheck

		var msg models.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug("Client %s sent malformed message: %v", id, err)
			continue
		}
		s.dispatch(id, msg)
	}
}

func (s *Server) dispatch(id string, msg models.ClientMessage) {
	switch msg.Type {
	case models.ClientGetStatus:
		s.hub.Send(id, models.StatusMessage{
			Running:     true,
			Statistics:  s.pipeline.Statistics(),
			Connections: s.hub.Count(),
		})
	case models.ClientGetStatistics:
		s.hub.Send(id, models.StatisticsMessage{Statistics: s.pipeline.Statistics()})
	case models.ClientForceInterrupt:
		if !s.pipeline.ForceInterrupt() {
			s.hub.Send(id, models.AlertMessage{
				AlertType: "INTERRUPT_SUPPRESSED",
				Message:   "Interrupt is cooling down",
			})
		}
	default:
		logger.Debug("Client %s sent unknown message type %q", id, msg.Type)
	}
}

var _ broadcast.Conn = (*wsConn)(nil)
