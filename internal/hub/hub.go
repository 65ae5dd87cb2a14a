package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/hrm-api/internal/model"
	"github.com/jwalitptl/hrm-api/pkg/logger"
	"github.com/jwalitptl/hrm-api/pkg/messaging"
	"github.com/jwalitptl/hrm-api/pkg/metrics"
)

// Channel is one of the two logical push channels a connection subscribes to.
type Channel string

const (
	ChannelNotifications Channel = "notifications"
	ChannelChat          Channel = "chat"
)

// channelForKind maps an event kind to the logical channel that carries it.
func channelForKind(kind string) (Channel, bool) {
	switch kind {
	case model.EventNotificationCreated:
		return ChannelNotifications, true
	case model.EventMessageDirect, model.EventMessageGroup:
		return ChannelChat, true
	default:
		return "", false
	}
}

// Hub routes delivery events to the live connections of their recipients.
// A single goroutine owns the client index, so events for the same
// conversation reach a given connection in publish order. Delivery is
// at-most-once: slow or gone clients are dropped, never retried, and the
// client reconciles over REST after reconnecting.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	events     chan *model.DeliveryEvent

	// clients indexed by user id; a user may hold several connections
	// (tabs, devices), each bound to one logical channel.
	clients map[uuid.UUID]map[*Client]struct{}

	logger  *logger.Logger
	metrics *metrics.Metrics
}

func New(l *logger.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		events:     make(chan *model.DeliveryEvent, 1024),
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		logger:     l,
		metrics:    m,
	}
}

// Run owns the client index until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case ev := <-h.events:
			h.route(ev)
		}
	}
}

// Consume subscribes to the broker topics and feeds decoded events into the
// routing loop. Blocks until ctx is cancelled or the subscription dies.
func (h *Hub) Consume(ctx context.Context, broker messaging.Broker) error {
	msgs, err := broker.Subscribe(ctx,
		model.EventNotificationCreated,
		model.EventMessageDirect,
		model.EventMessageGroup,
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to delivery topics: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("broker subscription closed")
			}
			var ev model.DeliveryEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				h.logger.Error(err, "dropping undecodable delivery event", "channel", msg.Channel)
				continue
			}
			h.Dispatch(&ev)
		}
	}
}

// Dispatch enqueues an event for routing.
func (h *Hub) Dispatch(ev *model.DeliveryEvent) {
	select {
	case h.events <- ev:
	default:
		// Routing loop backed up; the event is lost for live delivery and
		// clients pick it up on their next catch-up fetch.
		if h.metrics != nil {
			h.metrics.EventsDropped.WithLabelValues(ev.Kind).Inc()
		}
		h.logger.Warn("event queue full, dropping live event", "kind", ev.Kind)
	}
}

func (h *Hub) addClient(c *Client) {
	conns, ok := h.clients[c.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.clients[c.UserID] = conns
	}
	conns[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.ClientsConnected.WithLabelValues(string(c.channel)).Inc()
	}
	h.logger.Debug("client registered", "user_id", c.UserID.String(), "channel", string(c.channel))
}

func (h *Hub) removeClient(c *Client) {
	conns, ok := h.clients[c.UserID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, c.UserID)
	}
	c.close()
	if h.metrics != nil {
		h.metrics.ClientsConnected.WithLabelValues(string(c.channel)).Dec()
	}
	h.logger.Debug("client unregistered", "user_id", c.UserID.String(), "channel", string(c.channel))
}

func (h *Hub) route(ev *model.DeliveryEvent) {
	ch, ok := channelForKind(ev.Kind)
	if !ok {
		h.logger.Warn("unknown event kind", "kind", ev.Kind)
		return
	}

	recipients := ev.Recipients

	// Recipients is routing metadata; clients receive the bare event.
	wire := *ev
	wire.Recipients = nil
	data, err := json.Marshal(&wire)
	if err != nil {
		h.logger.Error(err, "failed to marshal delivery event", "kind", ev.Kind)
		return
	}

	for _, userID := range recipients {
		for c := range h.clients[userID] {
			if c.channel != ch {
				continue
			}
			if c.send(data) {
				if h.metrics != nil {
					h.metrics.EventsDelivered.WithLabelValues(ev.Kind).Inc()
				}
			} else {
				// Egress full: the connection is not keeping up. Kick it so
				// the client reconnects and reconciles via catch-up instead
				// of silently losing ordering.
				if h.metrics != nil {
					h.metrics.EventsDropped.WithLabelValues(ev.Kind).Inc()
				}
				h.removeClient(c)
			}
		}
	}
}

func (h *Hub) closeAll() {
	for _, conns := range h.clients {
		for c := range conns {
			c.close()
		}
	}
	h.clients = make(map[uuid.UUID]map[*Client]struct{})
}
