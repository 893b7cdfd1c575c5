package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"codecollab-server/collab"
	"codecollab-server/core"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 5 * 1024 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Frame is the JSON envelope exchanged on /ws.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type Client struct {
	id   core.ConnectionID
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// ServeWs upgrades the request and runs the client until the socket closes.
func (h *Hub) ServeWs(engine *collab.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithError(err).Warn("Upgrade error")
			return
		}

		client := &Client{
			id:   core.ConnectionID("ws-" + ulid.Make().String()),
			hub:  h,
			conn: conn,
			send: make(chan []byte, 256),
		}
		h.register(client)
		engine.Connect(client.id)
		logrus.WithField("connection_id", client.id).Info("A user connected")

		go client.writePump()
		go client.readPump(engine)
	}
}

// enqueue hands a frame to the write pump. A client that cannot keep up is closed;
// its read pump then runs the disconnect.
func (c *Client) enqueue(frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	default:
		c.conn.Close()
		return errSendBufferFull
	}
}

func (c *Client) readPump(engine *collab.Engine) {
	log := logrus.WithField("connection_id", c.id)
	defer func() {
		if err := engine.Disconnect(context.Background(), c.id); err != nil {
			log.WithError(err).Warn("Failed to clean up connection")
		}
		c.hub.unregister(c)
		c.conn.Close()
		log.Info("A user disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("WebSocket error")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			log.WithError(err).Debug("Invalid frame")
			c.replyError(err)
			continue
		}

		if err := engine.Dispatch(context.Background(), c.id, core.EventKind(frame.Event), frame.Data); err != nil {
			log.WithField("event", frame.Event).WithError(err).Warn("Failed to handle event")
			c.replyError(err)
		}
	}
}

func (c *Client) replyError(err error) {
	frame, _ := json.Marshal(Frame{Event: "error", Data: map[string]string{"error": err.Error()}})
	_ = c.enqueue(frame)
}

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

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
