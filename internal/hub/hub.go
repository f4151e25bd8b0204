// Package hub fans engine snapshots out to WebSocket clients.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"patrolwatch/internal/logging"
	"patrolwatch/internal/model"
	"patrolwatch/internal/simrand"
	"patrolwatch/internal/stats"
)

const (
	MessageSnapshot    = "snapshot"
	MessageAcknowledge = "acknowledge"

	sendBuffer = 16
)

// Source is the part of the engine the hub needs.
type Source interface {
	Snapshot() model.Snapshot
	Subscribe(buffer int) (<-chan model.Snapshot, func())
	Acknowledge(id string) bool
}

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Payload is a snapshot plus the figures derived from it.
type Payload struct {
	model.Snapshot
	NetworkStats []model.NetworkStat `json:"network_stats"`
	Summary      model.Summary       `json:"summary"`
}

// inbound is what a client may send: {"type":"acknowledge","id":"ALT-0001"}.
type inbound struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type Hub struct {
	source   Source
	rng      simrand.Source
	logger   *slog.Logger
	upgrader websocket.Upgrader

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	connected  atomic.Int64
}

// NewHub accepts any origin when allowedOrigins is empty.
func NewHub(source Source, rng simrand.Source, logger *slog.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	h := &Hub{
		source:     source,
		rng:        rng,
		logger:     logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Run owns the client set until ctx is done. Clients registered while it
// runs get the current snapshot first and every later one after that.
func (h *Hub) Run(ctx context.Context) error {
	snaps, cancel := h.source.Subscribe(4)
	defer cancel()
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return nil
		case c := <-h.register:
			h.clients[c] = true
			h.connected.Add(1)
			h.logger.Info("websocket client connected", "client_id", c.id, "remote", c.remote)
			snap := h.source.Snapshot()
			if msg, ok := h.encode(snap); ok {
				h.deliver(c, snap.Version, msg)
			}
		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
				h.logger.Info("websocket client disconnected", "client_id", c.id)
			}
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if len(h.clients) == 0 {
				continue
			}
			msg, ok := h.encode(snap)
			if !ok {
				continue
			}
			for c := range h.clients {
				h.deliver(c, snap.Version, msg)
			}
		}
	}
}

// deliver skips snapshots older than what the client already has and drops
// clients whose send buffer is full.
func (h *Hub) deliver(c *Client, version uint64, msg []byte) {
	if version <= c.version {
		return
	}
	select {
	case c.send <- msg:
		c.version = version
	default:
		h.logger.Warn("websocket client too slow, dropping", "client_id", c.id)
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.connected.Add(-1)
}

func (h *Hub) encode(snap model.Snapshot) ([]byte, bool) {
	msg, err := json.Marshal(Message{Type: MessageSnapshot, Payload: h.payload(snap)})
	if err != nil {
		h.logger.Error("encode snapshot", "err", err)
		return nil, false
	}
	return msg, true
}

func (h *Hub) payload(snap model.Snapshot) Payload {
	return Payload{
		Snapshot:     snap,
		NetworkStats: stats.Aggregate(snap.Devices, h.rng),
		Summary:      stats.Summarize(snap.Devices, snap.Alerts),
	}
}

// Connected reports how many clients are registered.
func (h *Hub) Connected() int {
	return int(h.connected.Load())
}

// ServeWS upgrades the request and hands the connection to Run.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	c := &Client{
		id:     uuid.NewString(),
		remote: conn.RemoteAddr().String(),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (h *Hub) handleInbound(c *Client, raw []byte) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		h.logger.Debug("ignoring malformed client message", "client_id", c.id, "err", err)
		return
	}
	switch in.Type {
	case MessageAcknowledge:
		changed := h.source.Acknowledge(in.ID)
		h.logger.Debug("client acknowledged alert", "client_id", c.id, "alert_id", in.ID, "changed", changed)
	default:
		h.logger.Debug("ignoring client message", "client_id", c.id, "type", in.Type)
	}
}
