package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskflow/common"
	"taskflow/entity"
)

type Client struct {
	ID     string
	UserID int64
	Conn   *common.WSConn
	Send   chan []byte
}

func NewClient(userID int64, conn *common.WSConn) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}
}

// Hub fans notifications out to every open connection of their owner.
// All client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[int64]map[*Client]struct{}
	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan entity.Notification

	done chan struct{}
	log  *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan entity.Notification, 256),
		done:       make(chan struct{}),
		log:        log.Named("ws"),
	}
}

// Publish queues n for delivery and never blocks. When the queue is full the
// notification is only available through the REST API.
func (h *Hub) Publish(n entity.Notification) {
	select {
	case h.Broadcast <- n:
	default:
		h.log.Warn("broadcast queue full, dropping live notification",
			zap.Int64("user_id", n.UserID), zap.Int64("notification_id", n.ID))
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.Send)
				}
			}
			h.clients = make(map[int64]map[*Client]struct{})
			return
		case c := <-h.Register:
			set, ok := h.clients[c.UserID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.UserID] = set
			}
			set[c] = struct{}{}
			h.log.Debug("client connected", zap.Int64("user_id", c.UserID), zap.String("client_id", c.ID))
		case c := <-h.Unregister:
			h.remove(c)
		case n := <-h.Broadcast:
			h.deliver(n)
		}
	}
}

// register and unregister give up once Run has returned.
func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.UserID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.Send)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
	h.log.Debug("client disconnected", zap.Int64("user_id", c.UserID), zap.String("client_id", c.ID))
}

func (h *Hub) deliver(n entity.Notification) {
	set := h.clients[n.UserID]
	if len(set) == 0 {
		return
	}
	payload, err := json.Marshal(common.NewNotificationMessage(n, time.Now()))
	if err != nil {
		h.log.Error("encoding notification", zap.Error(err))
		return
	}
	for c := range set {
		select {
		case c.Send <- payload:
		default:
			// slow consumer
			h.remove(c)
		}
	}
}
