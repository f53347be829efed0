// Package websocket pushes session events and mod list refreshes to
// connected presentation clients.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Lynx96-creator/ets2-mod-api/internal/infrastructure"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/events"
)

const broadcastBuffer = 256

// outbound is a serialized message and its recipient account
type outbound struct {
	email   string
	payload []byte
}

// Hub maintains the set of active clients and routes messages to the clients
// of the addressed account
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Messages waiting to be routed
	broadcast chan outbound

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *HubMetrics

	upgrader websocket.Upgrader

	// Control
	quit    chan struct{}
	running bool
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger, metrics *HubMetrics) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameHostOrigin,
		},
		quit: make(chan struct{}),
	}
}

// sameHostOrigin accepts requests without an Origin header and those whose
// origin host matches the request host
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, host, ok := strings.Cut(origin, "://")
	return ok && strings.EqualFold(host, r.Host)
}

// Start starts the hub loop
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Run routes registrations and messages until Stop is called. Client send
// channels are only closed from this loop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()

			ctx := client.context()
			h.logger.InfoContext(ctx, "Client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))
			h.metrics.recordConnection(ctx, 1)

			if payload, err := h.encode(ctx, events.MessageTypeConnect, client.email, map[string]string{
				"status":    "connected",
				"client_id": client.id,
			}); err == nil {
				select {
				case client.send <- payload:
				default:
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				count := len(h.clients)
				h.mu.Unlock()

				ctx := client.context()
				h.logger.InfoContext(ctx, "Client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
				h.metrics.recordConnection(ctx, -1)
			} else {
				h.mu.Unlock()
			}

		case msg := <-h.broadcast:
			h.route(msg)
		}
	}
}

func (h *Hub) route(msg outbound) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.wants(msg.email) {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.send <- msg.payload:
			h.metrics.recordSent(context.Background())
		default:
			// Client's send buffer is full, drop it
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.WarnContext(client.context(), "Client send buffer full, disconnecting",
				slog.String("client_id", client.id))
			h.metrics.recordConnection(context.Background(), -1)
		}
	}
}

// PublishSession routes a session event to the clients of its account
func (h *Hub) PublishSession(ctx context.Context, event domain.SessionEvent) {
	msgType := events.MessageTypeSessionProgress
	if event.Terminal {
		msgType = events.MessageTypeSessionComplete
	}
	h.publish(ctx, msgType, event.Email, event)
}

// PublishRefresh tells the clients of an account to reload the mod list.
// mods carries the new list when the caller has it.
func (h *Hub) PublishRefresh(ctx context.Context, email, reason string, mods []domain.ModView) {
	h.publish(ctx, events.MessageTypeModsRefresh, email, events.ModsRefresh{
		Email:  email,
		Reason: reason,
		Mods:   mods,
	})
}

func (h *Hub) publish(ctx context.Context, msgType events.MessageType, email string, data interface{}) {
	payload, err := h.encode(ctx, msgType, email, data)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- outbound{email: email, payload: payload}:
	default:
		h.logger.WarnContext(ctx, "Broadcast queue full, dropping message",
			slog.String("type", string(msgType)))
		h.metrics.recordDropped(ctx)
	}
}

func (h *Hub) encode(ctx context.Context, msgType events.MessageType, email string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(events.Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Email:     email,
		Timestamp: time.Now().UTC(),
		TraceID:   infrastructure.GetTraceID(ctx),
		Data:      data,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "Error marshaling message",
			slog.String("type", string(msgType)),
			slog.String("error", err.Error()))
		return nil, err
	}
	return payload, nil
}

// ServeWS upgrades the request and attaches a client for the account email
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, email string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}

	client := NewClient(h, NewConnectionWrapper(conn), email, infrastructure.GetTraceID(r.Context()), h.logger)
	if !h.Register(client) {
		conn.Close()
		return fmt.Errorf("hub is not running")
	}

	go client.WritePump()
	go client.ReadPump()
	return nil
}

// Register adds a client to the hub. It reports false once the hub stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop ends the hub loop, which closes all client connections
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.quit)
}
