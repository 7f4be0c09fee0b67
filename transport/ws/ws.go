package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zlnvch/flipbook/transport"
)

const (
	Subprotocol = "flipbook-v1"

	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second
)

var (
	ErrClosed          = errors.New("relay connection closed")
	ErrNotBookTopic    = errors.New("topic is not a book topic")
	ErrSubscribeDenied = errors.New("relay refused subscription")
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type bookData struct {
	BookId  string          `json:"bookId"`
	Message json.RawMessage `json:"message,omitempty"`
	Success *bool           `json:"success,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type handlerEntry struct {
	fn func(message []byte)
}

// WebsocketTransport talks to a relay server over one websocket connection.
// Every book topic subscribed through it shares that connection.
type WebsocketTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]map[*handlerEntry]struct{}
	pending  map[string][]chan bool
	closed   bool
	done     chan struct{}
}

// NewWebsocketTransport dials url and authenticates with token.
func NewWebsocketTransport(ctx context.Context, url string, token string) (*WebsocketTransport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     []string{Subprotocol, token},
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	t := &WebsocketTransport{
		conn:     conn,
		handlers: make(map[string]map[*handlerEntry]struct{}),
		pending:  make(map[string][]chan bool),
		done:     make(chan struct{}),
	}
	go t.readLoop()

	return t, nil
}

// Done is closed when the connection ends.
func (t *WebsocketTransport) Done() <-chan struct{} {
	return t.done
}

func (t *WebsocketTransport) send(messageType string, data any) error {
	msgBytes, err := json.Marshal(outFrame{Type: messageType, Data: data})
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, msgBytes)
}

func (t *WebsocketTransport) Publish(ctx context.Context, topic string, message []byte) error {
	bookId, ok := transport.BookId(topic)
	if !ok {
		return ErrNotBookTopic
	}
	return t.send("publish", bookData{BookId: bookId, Message: message})
}

// Subscribe returns once the relay acknowledged the subscription. The relay
// is told to unsubscribe when the last handler for the book goes away.
func (t *WebsocketTransport) Subscribe(ctx context.Context, topic string, handler func(message []byte)) error {
	bookId, ok := transport.BookId(topic)
	if !ok {
		return ErrNotBookTopic
	}

	entry := &handlerEntry{fn: handler}
	ack := make(chan bool, 1)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.handlers[bookId] == nil {
		t.handlers[bookId] = make(map[*handlerEntry]struct{})
	}
	t.handlers[bookId][entry] = struct{}{}
	t.pending[bookId] = append(t.pending[bookId], ack)
	t.mu.Unlock()

	if err := t.send("subscribe", bookData{BookId: bookId}); err != nil {
		t.removeHandler(bookId, entry)
		return err
	}

	select {
	case success := <-ack:
		if !success {
			t.removeHandler(bookId, entry)
			return ErrSubscribeDenied
		}
	case <-ctx.Done():
		t.removeHandler(bookId, entry)
		return ctx.Err()
	case <-t.done:
		return ErrClosed
	}

	go func() {
		select {
		case <-ctx.Done():
			t.removeHandler(bookId, entry)
		case <-t.done:
		}
	}()

	return nil
}

func (t *WebsocketTransport) removeHandler(bookId string, entry *handlerEntry) {
	t.mu.Lock()
	delete(t.handlers[bookId], entry)
	last := len(t.handlers[bookId]) == 0
	if last {
		delete(t.handlers, bookId)
	}
	t.mu.Unlock()

	if last {
		if err := t.send("unsubscribe", bookData{BookId: bookId}); err != nil && !errors.Is(err, ErrClosed) {
			log.Printf("Failed to unsubscribe from book %s: %v", bookId, err)
		}
	}
}

func (t *WebsocketTransport) readLoop() {
	defer t.shutdown()

	for {
		_, msgBytes, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Relay connection closed: %v", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(msgBytes, &f); err != nil {
			log.Printf("Invalid relay frame: %v", err)
			continue
		}

		var data bookData
		if len(f.Data) > 0 {
			// welcome carries the peer, which is not book data
			json.Unmarshal(f.Data, &data)
		}

		switch f.Type {
		case "message":
			t.dispatch(data.BookId, data.Message)
		case "subscribe_response":
			t.acknowledge(data.BookId, data.Success != nil && *data.Success)
		case "publish_response":
			log.Printf("Relay rejected publish to book %s: %s", data.BookId, data.Error)
		}
	}
}

func (t *WebsocketTransport) dispatch(bookId string, message []byte) {
	t.mu.Lock()
	fns := make([]func([]byte), 0, len(t.handlers[bookId]))
	for entry := range t.handlers[bookId] {
		fns = append(fns, entry.fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(append([]byte(nil), message...))
	}
}

func (t *WebsocketTransport) acknowledge(bookId string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	waiting := t.pending[bookId]
	if len(waiting) == 0 {
		return
	}
	waiting[0] <- success
	if len(waiting) == 1 {
		delete(t.pending, bookId)
	} else {
		t.pending[bookId] = waiting[1:]
	}
}

func (t *WebsocketTransport) shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	close(t.done)
	t.conn.Close()
}

// Close sends a normal close frame and tears the connection down.
func (t *WebsocketTransport) Close() error {
	t.writeMu.Lock()
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	t.writeMu.Unlock()

	t.shutdown()
	return nil
}
