package terminal

import (
	"sync"
	"time"

	"github.com/antibyte/retrobasic/pkg/console"
	"github.com/antibyte/retrobasic/pkg/logger"
	"github.com/antibyte/retrobasic/pkg/shared"

	"github.com/gorilla/websocket"
)

// Client is one WebSocket connection and its console session. Only
// writePump writes to conn.
type Client struct {
	conn      *websocket.Conn
	handler   *Handler
	console   *console.Console
	sessionID string
	ipAddress string

	// pending is written before any console output.
	pending []shared.Message

	closeOnce sync.Once
}

// close ends the console session. writePump notices and closes the
// connection, which in turn ends readPump.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.console.Close()
	})
}

// readPump feeds client frames into the console until the connection
// fails or the session quits.
func (c *Client) readPump() {
	defer c.handler.cleanupClient(c)

	c.conn.SetReadLimit(getMaxMessageSize())
	c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.WebSocketWarn("Unexpected close for session %s: %v", c.sessionID, err)
			} else {
				logger.WebSocketDebug("Connection of session %s closed: %v", c.sessionID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := c.handler.clients.CheckMessageRate(c.sessionID); err != nil {
			logger.SecurityWarn("Session %s from %s: %v", c.sessionID, c.ipAddress, err)
			continue
		}

		msg, err := c.handler.validator.DecodeClientMessage(data, c.sessionID)
		if err != nil {
			logger.WebSocketWarn("Invalid frame from session %s: %v", c.sessionID, err)
			continue
		}
		logger.WebSocketDebug("Session %s: %q", c.sessionID, msg.Content)
		if c.console.Execute(msg.Content) {
			return
		}
	}
}

// writePump sends console messages as JSON frames and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(getPingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for _, msg := range c.pending {
		if !c.write(msg) {
			return
		}
	}
	c.pending = nil

	output := c.console.Output()
	for {
		select {
		case msg := <-output:
			if !c.write(msg) {
				return
			}
			if msg.Type == shared.MessageTypeQuit {
				c.closeConn()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.WebSocketDebug("Ping to session %s failed: %v", c.sessionID, err)
				return
			}
		case <-c.console.Done():
			// Flush what the session produced before it closed.
			for {
				select {
				case msg := <-output:
					if !c.write(msg) {
						return
					}
				default:
					c.closeConn()
					return
				}
			}
		}
	}
}

func (c *Client) write(msg shared.Message) bool {
	c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
	if err := c.conn.WriteJSON(msg); err != nil {
		logger.WebSocketDebug("Write to session %s failed: %v", c.sessionID, err)
		return false
	}
	return true
}

func (c *Client) closeConn() {
	c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
