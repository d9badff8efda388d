// Package terminal serves console sessions over WebSocket. Every
// connection gets its own console.Console.
package terminal

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/antibyte/retrobasic/pkg/auth"
	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/console"
	"github.com/antibyte/retrobasic/pkg/logger"
	"github.com/antibyte/retrobasic/pkg/shared"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func getWriteWait() time.Duration {
	return configuration.GetDuration("Network", "write_wait_timeout", 10*time.Second)
}

func getPongWait() time.Duration {
	return configuration.GetDuration("Network", "pong_timeout", 60*time.Second)
}

func getPingPeriod() time.Duration {
	return (getPongWait() * 9) / 10
}

func getMaxMessageSize() int64 {
	return int64(configuration.GetInt("Network", "max_message_size_kb", 64) * 1024)
}

// Handler upgrades HTTP requests and runs one console per connection.
type Handler struct {
	library   console.Library
	clients   *ClientManager
	validator *JSONValidator
	upgrader  websocket.Upgrader

	wg sync.WaitGroup
}

// NewHandler returns a handler whose sessions save programs to library.
func NewHandler(library console.Library) *Handler {
	return &Handler{
		library:   library,
		clients:   NewClientManager(),
		validator: NewJSONValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

// checkOrigin accepts the origins listed in [Network] allowed_origins.
// Without a list only same-host origins and clients that send no Origin
// header are accepted.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if allowed := configuration.GetString("Network", "allowed_origins", ""); allowed != "" {
		for _, o := range strings.Split(allowed, ",") {
			if strings.TrimSpace(o) == origin {
				return true
			}
		}
		logger.SecurityWarn("WebSocket request from disallowed origin rejected: %s", origin)
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || !strings.EqualFold(u.Host, r.Host) {
		logger.SecurityWarn("WebSocket request from foreign origin rejected: %s", origin)
		return false
	}
	return true
}

// HandleWebSocket authenticates the request, upgrades it and serves a
// console session until either side closes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if err := h.clients.CheckRateLimit(ip); err != nil {
		http.Error(w, "Too many connections", http.StatusTooManyRequests)
		return
	}

	claims, err := auth.ValidateToken(auth.ExtractTokenFromRequest(r))
	if err != nil {
		logger.WebSocketWarn("Rejected WebSocket request from %s: %v", ip, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if h.clients.Full() {
		logger.WebSocketWarn("Client limit reached, rejecting %s", ip)
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.WebSocketError("Upgrade failed for %s: %v", ip, err)
		return
	}

	sessionID := uuid.New().String()
	opts := console.OptionsFromConfig()
	opts.SessionID = sessionID
	client := &Client{
		conn:      conn,
		handler:   h,
		console:   console.New(h.library, claims.Owner(), opts),
		sessionID: sessionID,
		ipAddress: ip,
	}
	if err := h.clients.AddClient(client); err != nil {
		logger.WebSocketWarn("Could not register client %s: %v", ip, err)
		client.console.Close()
		conn.Close()
		return
	}
	logger.WebSocketInfo("Session %s opened for %s from %s", sessionID, claims.Owner(), ip)

	client.pending = greeting(client, claims)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// greeting is sent before anything the console produces.
func greeting(c *Client, claims *auth.Claims) []shared.Message {
	who := "GUEST"
	if !claims.IsGuest() {
		who = strings.ToUpper(claims.Username)
	}
	return []shared.Message{
		{Type: shared.MessageTypeSession, Content: c.sessionID, SessionID: c.sessionID},
		{Type: shared.MessageTypeText, Content: "RETROBASIC READY, " + who},
		{Type: shared.MessageTypePrompt, PromptSymbol: "]", InputEnabled: shared.Bool(true)},
	}
}

// ClientCount returns the number of open sessions.
func (h *Handler) ClientCount() int {
	return h.clients.Count()
}

// Shutdown closes every session and waits for their pumps to exit.
func (h *Handler) Shutdown() {
	for _, c := range h.clients.Clients() {
		c.close()
	}
	h.wg.Wait()
}

func (h *Handler) cleanupClient(c *Client) {
	if h.clients.RemoveClient(c.sessionID) {
		logger.WebSocketInfo("Session %s closed", c.sessionID)
	}
	c.close()
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
