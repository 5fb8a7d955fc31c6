package chat

import (
	"context"
	"encoding/json"
	"strings"

	"go-playbooks/internal/apperr"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const channelPrefix = "playbook-chat:"

func channelFor(playbookID uuid.UUID) string { return channelPrefix + playbookID.String() }

// Hub owns the set of websocket clients, grouped by playbook. Events are
// published to Redis so every instance delivers them to its own clients.
type Hub struct {
	rooms      map[uuid.UUID]map[*Client]bool
	broadcast  chan BroadcastMessage // From Redis -> Clients
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	redis      *redis.Client
	log        zerolog.Logger
}

func NewHub(redisClient *redis.Client, log zerolog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		broadcast:  make(chan BroadcastMessage, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		redis:      redisClient,
		log:        log,
	}
}

// Run serves the client map until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, room := range h.rooms {
				for client := range room {
					close(client.send)
				}
			}
			h.rooms = make(map[uuid.UUID]map[*Client]bool)
			return

		case client := <-h.Register:
			room, ok := h.rooms[client.playbookID]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[client.playbookID] = room
			}
			room[client] = true

		case client := <-h.Unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			for client := range h.rooms[msg.PlaybookID] {
				select {
				case client.send <- msg.Payload:
				default:
					h.log.Warn().Str("user_id", client.userID.String()).Msg("dropping slow chat client")
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	room, ok := h.rooms[client.playbookID]
	if !ok {
		return
	}
	if _, ok := room[client]; !ok {
		return
	}
	delete(room, client)
	close(client.send)
	if len(room) == 0 {
		delete(h.rooms, client.playbookID)
	}
}

// join registers a client; it reports false once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// Deliver queues a payload for the local clients of a playbook.
func (h *Hub) Deliver(ctx context.Context, playbookID uuid.UUID, payload []byte) {
	select {
	case h.broadcast <- BroadcastMessage{PlaybookID: playbookID, Payload: payload}:
	case <-ctx.Done():
	case <-h.done:
	}
}

// Publish sends an event to every instance through Redis.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return apperr.Downstream("encode chat event", err)
	}
	if err := h.redis.Publish(ctx, channelFor(ev.PlaybookID), payload).Err(); err != nil {
		return apperr.Downstream("publish chat event", err)
	}
	return nil
}

// SubscribeToRedis relays events from all instances into the hub until ctx
// is done.
func (h *Hub) SubscribeToRedis(ctx context.Context) error {
	pubsub := h.redis.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return apperr.Downstream("subscribe to chat events", err)
	}
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			id, err := uuid.Parse(strings.TrimPrefix(msg.Channel, channelPrefix))
			if err != nil {
				h.log.Warn().Str("channel", msg.Channel).Msg("ignoring chat event on unknown channel")
				continue
			}
			h.Deliver(ctx, id, []byte(msg.Payload))
		}
	}
}
