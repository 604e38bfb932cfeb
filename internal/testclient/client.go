// Package testclient is a world-server stand-in for integration tests. It
// connects to a running questd gateway, sends events for its players and
// records the dialogue pushed back.
package testclient

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/event"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/gateway"
)

// TestClient is one gateway connection
type TestClient struct {
	Name     string
	conn     *websocket.Conn
	writeMu  sync.Mutex
	messages []gateway.Outbound
	mu       sync.Mutex
	done     chan struct{}
}

// NewTestClient dials the gateway at address (host:port). token may be empty
// when the gateway runs without authentication.
func NewTestClient(name, address, token string) (*TestClient, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	url := address
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + address + "/ws"
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	client := &TestClient{
		Name: name,
		conn: conn,
		done: make(chan struct{}),
	}

	// Start reading messages in background
	go client.readMessages()

	return client, nil
}

// readMessages continuously reads messages from the gateway
func (c *TestClient) readMessages() {
	for {
		var msg gateway.Outbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.mu.Lock()
		c.messages = append(c.messages, msg)
		c.mu.Unlock()
	}
}

func (c *TestClient) send(msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// RegisterPlayer announces a player's level and class
func (c *TestClient) RegisterPlayer(playerID string, level int, class string) error {
	return c.send(gateway.Inbound{Type: gateway.TypePlayer, PlayerID: playerID, Level: level, Class: class})
}

// SendEvent sends a world event for playerID
func (c *TestClient) SendEvent(kind event.Kind, playerID, sourceID, payload string) error {
	ev := event.New(kind, playerID, sourceID, payload)
	return c.send(gateway.Inbound{Type: gateway.TypeEvent, Event: &ev})
}

// GetMessages returns all messages received so far
func (c *TestClient) GetMessages() []gateway.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Return a copy
	result := make([]gateway.Outbound, len(c.messages))
	copy(result, c.messages)
	return result
}

// ClearMessages clears the message buffer
func (c *TestClient) ClearMessages() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// WaitFor waits for a message of type msgType for playerID whose text
// contains text (with timeout). An empty text matches any message of the type.
func (c *TestClient) WaitFor(msgType, playerID, text string, timeout time.Duration) (gateway.Outbound, bool) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		for _, msg := range c.GetMessages() {
			if msg.Type == msgType && msg.PlayerID == playerID && strings.Contains(msg.Text, text) {
				return msg, true
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	return gateway.Outbound{}, false
}

// HasMessage checks if any message for playerID contains the specified text
func (c *TestClient) HasMessage(playerID, text string) bool {
	for _, msg := range c.GetMessages() {
		if msg.PlayerID == playerID && strings.Contains(msg.Text, text) {
			return true
		}
	}
	return false
}

// PrintMessages prints all messages (for debugging)
func (c *TestClient) PrintMessages() {
	fmt.Printf("\n=== Messages for %s ===\n", c.Name)
	for i, msg := range c.GetMessages() {
		fmt.Printf("[%d] %s %s %s\n", i, msg.Type, msg.PlayerID, msg.Text)
	}
	fmt.Println("======================")
}

// Close closes the client connection
func (c *TestClient) Close() error {
	select {
	case <-c.done:
		return nil
	default:
		close(c.done)
	}
	return c.conn.Close()
}
