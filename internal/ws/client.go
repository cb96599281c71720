package ws

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatline/chatline-api/pkg/config"
)

// Client represents one websocket connection belonging to a user. The same
// user may hold several clients at once (multiple tabs or devices).
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger
	cfg    config.WSConfig

	userID    string
	username  string
	avatarURL *string
}

func newClient(hub *Hub, conn *websocket.Conn, cfg config.WSConfig, logger *zap.Logger, userID, username string, avatarURL *string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, cfg.SendBufferSize),
		logger:    logger,
		cfg:       cfg,
		userID:    userID,
		username:  username,
		avatarURL: avatarURL,
	}
}

// readPump drains inbound frames. Clients do not speak to the server over
// the socket; reading only services pong handling and close detection.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	pongWait := c.cfg.PingPeriod + c.cfg.WriteWait
	c.conn.SetReadLimit(c.cfg.ReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Debug("ws read error", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

// writePump forwards frames from the send channel to the socket and keeps
// the connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
