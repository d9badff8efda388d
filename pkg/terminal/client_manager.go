package terminal

import (
	"fmt"
	"sync"
	"time"

	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/logger"
)

// rateWindow counts events per IP or session.
type rateWindow struct {
	count int
	start time.Time
}

func (w *rateWindow) hit(now time.Time, window time.Duration) int {
	if now.Sub(w.start) > window {
		w.count = 0
		w.start = now
	}
	w.count++
	return w.count
}

// ClientManager tracks open sessions and throttles clients.
type ClientManager struct {
	clients     map[string]*Client
	connections map[string]*rateWindow // ip -> connection attempts per minute
	messages    map[string]*rateWindow // session -> frames per second
	mu          sync.Mutex

	maxClients           int
	connectionsPerMinute int
	messagesPerSecond    int
}

// NewClientManager reads its limits from [Network].
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients:              make(map[string]*Client),
		connections:          make(map[string]*rateWindow),
		messages:             make(map[string]*rateWindow),
		maxClients:           configuration.GetInt("Network", "max_clients", 100),
		connectionsPerMinute: configuration.GetInt("Network", "max_connections_per_minute", 30),
		messagesPerSecond:    configuration.GetInt("Network", "max_messages_per_second", 50),
	}
}

// AddClient registers a session.
func (cm *ClientManager) AddClient(c *Client) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.maxClients > 0 && len(cm.clients) >= cm.maxClients {
		return fmt.Errorf("client limit of %d reached", cm.maxClients)
	}
	cm.clients[c.sessionID] = c
	cm.messages[c.sessionID] = &rateWindow{start: time.Now()}
	return nil
}

// RemoveClient forgets a session and reports whether it was registered.
func (cm *ClientManager) RemoveClient(sessionID string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	_, exists := cm.clients[sessionID]
	delete(cm.clients, sessionID)
	delete(cm.messages, sessionID)
	return exists
}

// Count returns the number of registered sessions.
func (cm *ClientManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.clients)
}

// Full reports whether no further session is accepted.
func (cm *ClientManager) Full() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.maxClients > 0 && len(cm.clients) >= cm.maxClients
}

// Clients returns the registered sessions.
func (cm *ClientManager) Clients() []*Client {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	list := make([]*Client, 0, len(cm.clients))
	for _, c := range cm.clients {
		list = append(list, c)
	}
	return list
}

// CheckRateLimit counts a connection attempt from ipAddress.
func (cm *ClientManager) CheckRateLimit(ipAddress string) error {
	if cm.connectionsPerMinute <= 0 {
		return nil
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()

	w, ok := cm.connections[ipAddress]
	if !ok {
		w = &rateWindow{start: time.Now()}
		cm.connections[ipAddress] = w
	}
	if n := w.hit(time.Now(), time.Minute); n > cm.connectionsPerMinute {
		logger.SecurityWarn("Connection rate limit exceeded for IP %s: %d in last minute", ipAddress, n)
		return fmt.Errorf("rate limit exceeded: too many connections from %s", ipAddress)
	}
	return nil
}

// CheckMessageRate counts a frame from a session.
func (cm *ClientManager) CheckMessageRate(sessionID string) error {
	if cm.messagesPerSecond <= 0 {
		return nil
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()

	w, ok := cm.messages[sessionID]
	if !ok {
		return nil
	}
	if n := w.hit(time.Now(), time.Second); n > cm.messagesPerSecond {
		return fmt.Errorf("message rate limit exceeded: %d frames in last second", n)
	}
	return nil
}
