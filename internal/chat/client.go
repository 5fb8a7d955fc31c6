package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 8192
	opTimeout      = 5 * time.Second
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub        *Hub
	service    *Service
	conn       *websocket.Conn
	send       chan []byte // closed by the hub
	direct     chan []byte // replies to this client only
	playbookID uuid.UUID
	userID     uuid.UUID
	username   string
	log        zerolog.Logger
}

func (c *Client) author() Author { return Author{ID: c.userID, Username: c.username} }

// readPump turns browser frames into chat operations.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		var in WSMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			c.reply(Event{Type: EventError, PlaybookID: c.playbookID, Error: "invalid frame"})
			continue
		}
		c.handle(in)
	}
}

func (c *Client) handle(in WSMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var err error
	switch in.Type {
	case "typing":
		err = c.service.Typing(ctx, c.author(), c.playbookID)
	case "message", "":
		_, err = c.service.Send(ctx, c.author(), c.playbookID.String(), in.Message)
	default:
		c.reply(Event{Type: EventError, PlaybookID: c.playbookID, Error: "unknown frame type " + in.Type})
		return
	}
	if err != nil {
		c.reply(Event{Type: EventError, PlaybookID: c.playbookID, Error: err.Error()})
	}
}

// reply queues an event for this client only, dropping it if the queue is
// full.
func (c *Client) reply(ev Event) {
	ev.At = time.Now()
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case c.direct <- payload:
	default:
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case message := <-c.direct:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
