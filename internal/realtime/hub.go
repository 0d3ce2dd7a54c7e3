// Package realtime pushes meeting events to websocket subscribers. Redis
// pub/sub carries events between server instances.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventAudienceCount is sent to a meeting room whenever its local subscriber count changes.
const EventAudienceCount = "audience_count"

// Broker carries events between instances.
type Broker interface {
	PublishMeetingEvent(ctx context.Context, meetingID uuid.UUID, event string, payload []byte) error
	SubscribeMeeting(meetingID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains meeting_id -> set of connections.
type Hub struct {
	rooms       map[uuid.UUID]map[string]*Client
	subs        map[uuid.UUID]func()
	subscribing map[uuid.UUID]bool
	mu          sync.RWMutex
	broker      Broker
	logger      *zap.Logger
}

// NewHub creates a hub. broker may be nil for a single instance.
func NewHub(broker Broker, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:       make(map[uuid.UUID]map[string]*Client),
		subs:        make(map[uuid.UUID]func()),
		subscribing: make(map[uuid.UUID]bool),
		broker:      broker,
		logger:      logger,
	}
}

// Register adds a client to its meeting room. A room without a broker
// subscription gets one; a failed attempt is retried by the next Register.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.MeetingID] == nil {
		h.rooms[c.MeetingID] = make(map[string]*Client)
	}
	h.rooms[c.MeetingID][c.ID] = c
	needSub := h.broker != nil && h.subs[c.MeetingID] == nil && !h.subscribing[c.MeetingID]
	if needSub {
		h.subscribing[c.MeetingID] = true
	}
	h.mu.Unlock()

	if needSub {
		h.subscribe(c.MeetingID)
	}

	h.Broadcast(c.MeetingID, EventAudienceCount, map[string]int{"count": h.AudienceCount(c.MeetingID)})
	h.logger.Debug("client joined meeting room", zap.String("client_id", c.ID), zap.String("meeting_id", c.MeetingID.String()))
}

// subscribe runs the broker round trip without holding the hub lock and
// installs the result if the room still has clients.
func (h *Hub) subscribe(meetingID uuid.UUID) {
	cancel, err := h.broker.SubscribeMeeting(meetingID, func(event string, payload []byte) {
		h.Broadcast(meetingID, event, json.RawMessage(payload))
	})

	h.mu.Lock()
	delete(h.subscribing, meetingID)
	if err != nil {
		h.mu.Unlock()
		h.logger.Warn("meeting subscription failed", zap.String("meeting_id", meetingID.String()), zap.Error(err))
		return
	}
	if len(h.rooms[meetingID]) == 0 || h.subs[meetingID] != nil {
		h.mu.Unlock()
		cancel()
		return
	}
	h.subs[meetingID] = cancel
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel. The last client of
// a room cancels the broker subscription.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.MeetingID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := room[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(room, c.ID)
	close(c.send)
	count := len(room)
	if count == 0 {
		delete(h.rooms, c.MeetingID)
		if cancel, ok := h.subs[c.MeetingID]; ok {
			cancel()
			delete(h.subs, c.MeetingID)
		}
	}
	h.mu.Unlock()

	if count > 0 {
		h.Broadcast(c.MeetingID, EventAudienceCount, map[string]int{"count": count})
	}
	h.logger.Debug("client left meeting room", zap.String("client_id", c.ID), zap.String("meeting_id", c.MeetingID.String()))
}

// Broadcast sends an event to the clients connected to this instance.
func (h *Hub) Broadcast(meetingID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Warn("event encoding failed", zap.String("event", event), zap.Error(err))
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[meetingID] {
		select {
		case c.send <- msg:
		default:
			// slow consumer, drop
		}
	}
}

// Publish delivers an event to every subscriber of the meeting. With a broker
// the event goes out through it, and the subscription callback does the local
// broadcast. Rooms on this instance without a live subscription are served
// directly, as is everyone when the publish fails.
func (h *Hub) Publish(ctx context.Context, meetingID uuid.UUID, event string, payload interface{}) {
	if h.broker == nil {
		h.Broadcast(meetingID, event, payload)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("event encoding failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	subscribed := h.subs[meetingID] != nil
	h.mu.RUnlock()

	if err := h.broker.PublishMeetingEvent(ctx, meetingID, event, data); err != nil {
		h.logger.Warn("event publish failed, delivering locally",
			zap.String("meeting_id", meetingID.String()), zap.String("event", event), zap.Error(err))
		h.Broadcast(meetingID, event, json.RawMessage(data))
		return
	}
	if !subscribed {
		h.Broadcast(meetingID, event, json.RawMessage(data))
	}
}

// AudienceCount returns the number of clients connected to this instance for a meeting.
func (h *Hub) AudienceCount(meetingID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[meetingID])
}

func (h *Hub) sendTo(c *Client, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.rooms[c.MeetingID][c.ID]; !ok {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}
