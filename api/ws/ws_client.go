package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zlnvch/flipbook/models"
	"github.com/zlnvch/flipbook/service"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = service.MaxPayloadBytes

	// Drags publish a page update per pointer move
	messagesPerSecond = 60
	burstLimit        = 120
)

type MessageHandler func(client *Client, messageType int, messageBytes []byte)

func NewClient(hub *Hub, conn *websocket.Conn, peer models.Peer, handler MessageHandler) *Client {
	return &Client{
		hub:             hub,
		conn:            conn,
		peer:            peer,
		handler:         handler,
		subscribedBooks: make(map[string]struct{}),
		Send:            make(chan []byte, 256),
		limiter:         rate.NewLimiter(rate.Limit(messagesPerSecond), burstLimit),
	}
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	peer    models.Peer
	handler MessageHandler
	// owned by the hub goroutine
	subscribedBooks map[string]struct{}
	Send            chan []byte // Buffered channel of outbound messages.
	limiter         *rate.Limiter
}

func (c *Client) Peer() models.Peer {
	return c.peer
}

type responseData struct {
	Success bool   `json:"success"`
	BookId  string `json:"bookId"`
}

// respond queues a {success, bookId} response without blocking the hub.
func (c *Client) respond(messageType string, bookId string, success bool) {
	msgBytes, err := json.Marshal(struct {
		Type string       `json:"type"`
		Data responseData `json:"data"`
	}{Type: messageType, Data: responseData{Success: success, BookId: bookId}})
	if err != nil {
		return
	}
	select {
	case c.Send <- msgBytes:
	default:
		log.Printf("Dropping %s for peer %s: send buffer full", messageType, c.peer.Id)
	}
}

// reject closes the connection from outside the pumps. ReadPump then reports
// the client closed to the hub.
func (c *Client) reject(reason string) {
	if c.conn == nil {
		return
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(writeWait),
	)
	c.conn.Close()
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.CloseCh <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		messageType, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS close error: %v", err)
			}
			break
		}

		if !c.limiter.Allow() {
			log.Printf("Closing connection for peer %s: message rate limit exceeded", c.peer.Id)
			break
		}

		c.handler(c, messageType, messageBytes)
	}
}

func (c *Client) WritePump(shutdownCtx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WS send error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-shutdownCtx.Done():
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Websocket service shutting down"),
			)
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
