package ws

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/chatline/chatline-api/internal/models"
)

// Event types carried on the wire.
const (
	EventPresenceUpdate = "presence.update"
	EventMessageCreated = "message.created"
	EventMessageUpdated = "message.updated"
	EventMessageDeleted = "message.deleted"
)

// Event is the envelope every realtime frame uses.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	TS      time.Time   `json:"ts"`
}

type gaugeRecorder interface {
	SetConnections(count int)
	SetOnlineUsers(count int)
	CountBroadcast(eventType string)
}

// Hub owns all live websocket clients. Register, unregister and broadcast
// requests are serialized through channels into the Run loop, so client map
// access needs no lock. A client whose send buffer is full at fan-out time
// is dropped; slow consumers never stall the rest.
type Hub struct {
	presence *PresenceTracker
	metrics  gaugeRecorder
	logger   *zap.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
}

// NewHub constructs a hub. metrics may be nil.
func NewHub(presence *PresenceTracker, metrics gaugeRecorder, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		presence:   presence,
		metrics:    metrics,
		logger:     logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
	}
}

// Run processes hub events until ctx is cancelled. On shutdown every client
// send channel is closed, which terminates the write pumps.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			snapshot, _ := h.presence.Connect(client.userID, client.username, client.avatarURL)
			h.logger.Debug("ws client connected",
				zap.String("user_id", client.userID),
				zap.Int("clients", len(h.clients)))
			h.fanOut(h.encode(EventPresenceUpdate, presencePayload(snapshot)))
			h.updateGauges()

		case client := <-h.unregister:
			if _, ok := h.clients[client]; !ok {
				continue
			}
			delete(h.clients, client)
			close(client.send)
			snapshot, _ := h.presence.Disconnect(client.userID)
			h.logger.Debug("ws client disconnected",
				zap.String("user_id", client.userID),
				zap.Int("clients", len(h.clients)))
			h.fanOut(h.encode(EventPresenceUpdate, presencePayload(snapshot)))
			h.updateGauges()

		case frame := <-h.broadcast:
			h.fanOut(frame)
			h.updateGauges()
		}
	}
}

// BroadcastMessageCreated fans out a freshly posted message.
func (h *Hub) BroadcastMessageCreated(message models.Message) {
	h.publish(EventMessageCreated, message)
}

// BroadcastMessageUpdated fans out an edited message.
func (h *Hub) BroadcastMessageUpdated(message models.Message) {
	h.publish(EventMessageUpdated, message)
}

// BroadcastMessageDeleted fans out a deletion by message id.
func (h *Hub) BroadcastMessageDeleted(messageID string) {
	h.publish(EventMessageDeleted, map[string]string{"id": messageID})
}

func (h *Hub) publish(eventType string, payload interface{}) {
	frame := h.encode(eventType, payload)
	if frame == nil {
		return
	}
	select {
	case h.broadcast <- frame:
	default:
		h.logger.Warn("broadcast queue full, event dropped", zap.String("type", eventType))
	}
}

func (h *Hub) encode(eventType string, payload interface{}) []byte {
	frame, err := json.Marshal(Event{Type: eventType, Payload: payload, TS: time.Now().UTC()})
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return nil
	}
	if h.metrics != nil {
		h.metrics.CountBroadcast(eventType)
	}
	return frame
}

func (h *Hub) fanOut(frame []byte) {
	if frame == nil {
		return
	}
	var snapshot []OnlineUser
	dropped := false
	for client := range h.clients {
		select {
		case client.send <- frame:
		default:
			delete(h.clients, client)
			close(client.send)
			snapshot, _ = h.presence.Disconnect(client.userID)
			dropped = true
			h.logger.Warn("dropping slow ws client", zap.String("user_id", client.userID))
		}
	}
	if dropped {
		// Survivors learn about the eviction on the next loop pass, so a
		// drop during a presence fan-out cannot recurse.
		h.publish(EventPresenceUpdate, presencePayload(snapshot))
	}
}

func (h *Hub) updateGauges() {
	if h.metrics == nil {
		return
	}
	h.metrics.SetConnections(len(h.clients))
	h.metrics.SetOnlineUsers(h.presence.OnlineCount())
}

func presencePayload(snapshot []OnlineUser) map[string]interface{} {
	return map[string]interface{}{
		"online": snapshot,
		"count":  len(snapshot),
	}
}
