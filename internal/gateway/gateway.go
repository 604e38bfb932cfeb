// Package gateway accepts world-server connections over WebSocket. World
// servers push events in and receive the dialogue the engine produces for
// the players they host.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/config"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/engine"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/event"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/logger"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
)

const (
	sendBuffer      = 64
	writeWait       = 10 * time.Second
	publishTimeout  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
	cleanupInterval = 5 * time.Minute
)

// Message types on the wire.
const (
	TypeEvent        = "event"
	TypeAttach       = "attach"
	TypeDetach       = "detach"
	TypePlayer       = "player"
	TypeAck          = "ack"
	TypeError        = "error"
	TypeTalk         = "talk"
	TypeQuestOffer   = "quest_offer"
	TypeRewardChoice = "reward_choice"
	TypeSystem       = "system"
)

// Inbound is a message sent by a world server.
type Inbound struct {
	Type     string       `json:"type"`
	Event    *event.Event `json:"event,omitempty"`
	PlayerID string       `json:"player_id,omitempty"`

	// Player facts carried by a "player" message.
	Level int    `json:"level,omitempty"`
	Class string `json:"class,omitempty"`
}

// Registrar receives the player facts world servers announce.
type Registrar interface {
	AddPlayer(id string, level int, class string)
}

// Outbound is a message pushed to a world server.
type Outbound struct {
	Type     string         `json:"type"`
	PlayerID string         `json:"player_id,omitempty"`
	NPCID    string         `json:"npc_id,omitempty"`
	Quest    string         `json:"quest,omitempty"`
	Text     string         `json:"text,omitempty"`
	Options  []RewardOption `json:"options,omitempty"`
	Choose   int            `json:"choose,omitempty"`
	EventID  string         `json:"event_id,omitempty"`
}

// RewardOption is one entry of a reward choice dialog.
type RewardOption struct {
	Index       int    `json:"index"`
	ItemID      string `json:"item_id"`
	Description string `json:"description,omitempty"`
}

// Gateway routes events from world servers onto the bus and dialogue from
// the engine back to the connection hosting each player.
type Gateway struct {
	cfg       config.GatewayConfig
	publisher event.Publisher
	fallback  engine.Dialogue
	limiter   *ConnLimiter
	auth      *AuthLimiter
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	mu        sync.RWMutex
	registrar Registrar
	routes    map[string]*conn
	conns     map[*conn]struct{}
}

var _ engine.Dialogue = (*Gateway)(nil)

// New creates a gateway publishing to publisher. Dialogue for players with no
// connection goes to fallback, or to the log when fallback is nil.
func New(cfg config.GatewayConfig, publisher event.Publisher, fallback engine.Dialogue, log *slog.Logger) *Gateway {
	if log == nil {
		log = logger.Default()
	}
	if fallback == nil {
		fallback = engine.LogDialogue{Logger: log}
	}
	g := &Gateway{
		cfg:       cfg,
		publisher: publisher,
		fallback:  fallback,
		limiter:   NewConnLimiter(cfg.MaxPerIP, cfg.MaxTotal),
		auth: NewAuthLimiter(cfg.MaxAuthFailures,
			time.Duration(cfg.LockoutSeconds)*time.Second,
			time.Duration(cfg.MaxLockoutSeconds)*time.Second),
		logger: log,
		routes: make(map[string]*conn),
		conns:  make(map[*conn]struct{}),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			allowed := g.cfg.IsOriginAllowed(origin, r.Host)
			if !allowed {
				g.logger.Warn("WebSocket connection rejected - origin not allowed",
					"origin", origin,
					"host", r.Host,
					"remote_addr", r.RemoteAddr)
			}
			return allowed
		},
	}
	return g
}

// SetRegistrar installs the receiver of "player" messages.
func (g *Gateway) SetRegistrar(r Registrar) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registrar = r
}

// Handler returns the gateway's HTTP routes.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)
	mux.HandleFunc("/healthz", g.handleHealth)
	return mux
}

// Start serves the gateway on cfg.Addr until ctx is cancelled.
func (g *Gateway) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              g.cfg.Addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	g.logger.Info("Gateway listening", "addr", g.cfg.Addr)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ticker.C:
			g.auth.Cleanup()
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err := srv.Shutdown(shutdownCtx)
			// Shutdown leaves hijacked connections alone.
			g.closeAll()
			return err
		}
	}
}

// Connected reports whether a connection currently hosts playerID.
func (g *Gateway) Connected(playerID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.routes[playerID]
	return ok
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.mu.RLock()
	players := len(g.routes)
	g.mu.RUnlock()
	total, ips := g.limiter.Stats()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": total,
		"addresses":   ips,
		"players":     players,
	})
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	clientIP := realIP(r)

	if !g.authorize(w, r, clientIP) {
		return
	}

	if !g.limiter.TryAcquire(clientIP) {
		g.logger.Warn("Connection rejected - limit reached", "ip", clientIP)
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("WebSocket upgrade failed", "error", err, "ip", clientIP)
		g.limiter.Release(clientIP)
		return
	}

	c := newConn(ws, clientIP)
	c.flood = newFloodTracker(g.cfg.MaxEvents, time.Duration(g.cfg.EventWindowSeconds)*time.Second)
	g.mu.Lock()
	g.conns[c] = struct{}{}
	g.mu.Unlock()
	g.logger.Info("World server connected", "ip", clientIP)

	go c.writeLoop(g.logger)
	g.readLoop(r.Context(), c)

	g.drop(c)
	g.limiter.Release(clientIP)
	g.logger.Info("World server disconnected", "ip", clientIP)
}

// authorize checks the shared token when one is configured, writing the
// rejection itself.
func (g *Gateway) authorize(w http.ResponseWriter, r *http.Request, clientIP string) bool {
	if g.cfg.TokenHash == "" {
		return true
	}

	if locked, remaining := g.auth.IsLocked(clientIP); locked {
		w.Header().Set("Retry-After", strconv.Itoa(int(remaining.Seconds())+1))
		http.Error(w, "too many failed attempts", http.StatusTooManyRequests)
		return false
	}

	token := bearerToken(r)
	if token == "" || bcrypt.CompareHashAndPassword([]byte(g.cfg.TokenHash), []byte(token)) != nil {
		locked, d := g.auth.RecordFailure(clientIP)
		if locked {
			g.logger.Warn("Gateway address locked out", "ip", clientIP, "duration", d)
		} else {
			g.logger.Warn("Gateway rejected bad token", "ip", clientIP)
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}

	g.auth.RecordSuccess(clientIP)
	return true
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

func (g *Gateway) readLoop(ctx context.Context, c *conn) {
	if g.cfg.MaxMessageSize > 0 {
		c.ws.SetReadLimit(g.cfg.MaxMessageSize)
	}
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Debug("Gateway read ended", "ip", c.ip, "error", err)
			}
			return
		}

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(g.logger, Outbound{Type: TypeError, Text: fmt.Sprintf("malformed message: %v", err)})
			continue
		}
		g.handle(ctx, c, msg)
	}
}

func (g *Gateway) handle(ctx context.Context, c *conn, msg Inbound) {
	switch msg.Type {
	case TypeEvent:
		if msg.Event == nil {
			c.enqueue(g.logger, Outbound{Type: TypeError, Text: "event message requires an event"})
			return
		}
		ev := *msg.Event
		if ok, wait := c.flood.allow(); !ok {
			c.enqueue(g.logger, Outbound{Type: TypeError, PlayerID: ev.PlayerID,
				Text: fmt.Sprintf("sending events too quickly, retry in %s", wait.Round(time.Millisecond))})
			return
		}
		if err := ev.Validate(); err != nil {
			c.enqueue(g.logger, Outbound{Type: TypeError, PlayerID: ev.PlayerID, Text: err.Error()})
			return
		}
		if ev.ID == uuid.Nil {
			ev.ID = uuid.New()
		}
		if ev.Time.IsZero() {
			ev.Time = time.Now()
		}

		// A player's events arrive on the connection that hosts them.
		g.attach(c, ev.PlayerID)

		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := g.publisher.Publish(pubCtx, ev)
		cancel()
		if err != nil {
			g.logger.Error("Failed to publish event", "error", err, "player", ev.PlayerID, "kind", ev.Kind)
			c.enqueue(g.logger, Outbound{Type: TypeError, PlayerID: ev.PlayerID, EventID: ev.ID.String(), Text: "event not accepted"})
			return
		}
		c.enqueue(g.logger, Outbound{Type: TypeAck, PlayerID: ev.PlayerID, EventID: ev.ID.String()})

	case TypeAttach:
		if msg.PlayerID == "" {
			c.enqueue(g.logger, Outbound{Type: TypeError, Text: "attach requires player_id"})
			return
		}
		g.attach(c, msg.PlayerID)
		c.enqueue(g.logger, Outbound{Type: TypeAck, PlayerID: msg.PlayerID})

	case TypePlayer:
		g.mu.RLock()
		reg := g.registrar
		g.mu.RUnlock()
		if msg.PlayerID == "" || reg == nil {
			c.enqueue(g.logger, Outbound{Type: TypeError, PlayerID: msg.PlayerID, Text: "player registration unavailable"})
			return
		}
		reg.AddPlayer(msg.PlayerID, msg.Level, msg.Class)
		g.attach(c, msg.PlayerID)
		c.enqueue(g.logger, Outbound{Type: TypeAck, PlayerID: msg.PlayerID})

	case TypeDetach:
		g.detach(c, msg.PlayerID)
		c.enqueue(g.logger, Outbound{Type: TypeAck, PlayerID: msg.PlayerID})

	default:
		c.enqueue(g.logger, Outbound{Type: TypeError, Text: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// attach routes playerID to c. The latest connection to claim a player wins.
func (g *Gateway) attach(c *conn, playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.routes[playerID]; ok && prev == c {
		return
	}
	g.routes[playerID] = c
	c.players[playerID] = struct{}{}
}

func (g *Gateway) detach(c *conn, playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.routes[playerID] == c {
		delete(g.routes, playerID)
	}
	delete(c.players, playerID)
}

// drop forgets c and every route still pointing at it.
func (g *Gateway) drop(c *conn) {
	g.mu.Lock()
	for playerID := range c.players {
		if g.routes[playerID] == c {
			delete(g.routes, playerID)
		}
	}
	delete(g.conns, c)
	g.mu.Unlock()
	c.close()
}

func (g *Gateway) closeAll() {
	g.mu.RLock()
	conns := make([]*conn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.RUnlock()
	for _, c := range conns {
		c.close()
	}
}

// push delivers msg to the connection hosting playerID.
func (g *Gateway) push(playerID string, msg Outbound) bool {
	g.mu.RLock()
	c, ok := g.routes[playerID]
	g.mu.RUnlock()
	if !ok {
		return false
	}
	c.enqueue(g.logger, msg)
	return true
}

func (g *Gateway) SendTalk(npcID, playerID, text string) {
	if !g.push(playerID, Outbound{Type: TypeTalk, PlayerID: playerID, NPCID: npcID, Text: text}) {
		g.fallback.SendTalk(npcID, playerID, text)
	}
}

func (g *Gateway) SendQuestOffer(npcID, playerID, questType, text string) {
	msg := Outbound{Type: TypeQuestOffer, PlayerID: playerID, NPCID: npcID, Quest: questType, Text: text}
	if !g.push(playerID, msg) {
		g.fallback.SendQuestOffer(npcID, playerID, questType, text)
	}
}

func (g *Gateway) SendRewardChoice(playerID, questType string, options []quest.RewardOption, choose int) {
	opts := make([]RewardOption, len(options))
	for i, o := range options {
		opts[i] = RewardOption{Index: i, ItemID: o.ItemID, Description: o.Description}
	}
	msg := Outbound{Type: TypeRewardChoice, PlayerID: playerID, Quest: questType, Options: opts, Choose: choose}
	if !g.push(playerID, msg) {
		g.fallback.SendRewardChoice(playerID, questType, options, choose)
	}
}

func (g *Gateway) SendSystemMessage(playerID, text string) {
	if !g.push(playerID, Outbound{Type: TypeSystem, PlayerID: playerID, Text: text}) {
		g.fallback.SendSystemMessage(playerID, text)
	}
}

// conn is one world-server connection. Only writeLoop writes to ws.
type conn struct {
	ws      *websocket.Conn
	ip      string
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	flood   *floodTracker
	players map[string]struct{} // guarded by Gateway.mu
}

func newConn(ws *websocket.Conn, ip string) *conn {
	return &conn{
		ws:      ws,
		ip:      ip,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		flood:   newFloodTracker(0, 0),
		players: make(map[string]struct{}),
	}
}

// enqueue queues msg for writing, dropping it when the buffer is full.
func (c *conn) enqueue(log *slog.Logger, msg Outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error("Failed to encode gateway message", "error", err, "type", msg.Type)
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Warn("Gateway send buffer full, dropping message", "ip", c.ip, "type", msg.Type, "player", msg.PlayerID)
	}
}

func (c *conn) writeLoop(log *slog.Logger) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug("Gateway write failed", "ip", c.ip, "error", err)
				c.close()
				return
			}
		}
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}
