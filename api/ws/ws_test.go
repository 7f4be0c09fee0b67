package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/flipbook/api/ws"
	"github.com/zlnvch/flipbook/models"
	"github.com/zlnvch/flipbook/service"
	"github.com/zlnvch/flipbook/store/sqlite"
	"github.com/zlnvch/flipbook/transport/local"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	svc *service.Service
	url string
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	kv, err := sqlite.NewSqliteKeyValueStore(filepath.Join(t.TempDir(), "flipbook.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	tr := local.NewLocalTransport()
	t.Cleanup(tr.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := service.NewService(kv, tr, []byte("secret"), 50)
	hub := ws.NewHub(tr)
	go hub.Run(ctx)

	h := ws.NewHandler(svc, hub)
	upgrader := h.NewWsUpgrader("*")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(upgrader, w, r, ctx)
	}))
	t.Cleanup(srv.Close)

	return &testServer{svc: svc, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (s *testServer) session(t *testing.T, name string) (models.Peer, string) {
	t.Helper()
	peer, token, err := s.svc.CreateSession(name)
	require.NoError(t, err)
	return peer, token
}

func (s *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: []string{ws.Subprotocol, token}}
	conn, resp, err := dialer.Dial(s.url, nil)
	require.NoError(t, err)
	assert.Equal(t, ws.Subprotocol, resp.Header.Get("Sec-WebSocket-Protocol"))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, messageType string, data any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"type": messageType, "data": data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

// readUntil skips frames of other types.
func readUntil(t *testing.T, conn *websocket.Conn, messageType string) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		if f.Type == messageType {
			return f
		}
	}
}

func subscribe(t *testing.T, conn *websocket.Conn, bookId string) {
	t.Helper()
	send(t, conn, "subscribe", map[string]string{"bookId": bookId})
	f := readUntil(t, conn, "subscribe_response")
	var data struct {
		Success bool   `json:"success"`
		BookId  string `json:"bookId"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &data))
	require.True(t, data.Success)
	require.Equal(t, bookId, data.BookId)
}

func TestServeWS_MissingToken(t *testing.T) {
	s := setupServer(t)

	dialer := websocket.Dialer{}
	_, resp, err := dialer.Dial(s.url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWS_InvalidTokenClosesWithPolicyViolation(t *testing.T) {
	s := setupServer(t)
	conn := s.dial(t, "not-a-jwt")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestServeWS_WelcomeCarriesPeer(t *testing.T) {
	s := setupServer(t)
	peer, token := s.session(t, "Sara")
	conn := s.dial(t, token)

	f := readUntil(t, conn, "welcome")
	var got models.Peer
	require.NoError(t, json.Unmarshal(f.Data, &got))
	assert.Equal(t, peer, got)
}

func TestHandleWsMessage_PublishFansOutStamped(t *testing.T) {
	s := setupServer(t)
	peerA, tokenA := s.session(t, "Sara")
	_, tokenB := s.session(t, "Omar")

	connA := s.dial(t, tokenA)
	connB := s.dial(t, tokenB)
	subscribe(t, connA, "diary")
	subscribe(t, connB, "diary")

	// identity claimed by the client is replaced by the token's
	envelope := json.RawMessage(`{"type":"page-update","userId":"mallory","pageIndex":0,"side":"front","blocks":[{"id":"t1","type":"text","x":0,"y":0,"w":220,"h":90,"text":"hi"}]}`)
	send(t, connA, "publish", map[string]any{"bookId": "diary", "message": envelope})

	for _, conn := range []*websocket.Conn{connA, connB} {
		f := readUntil(t, conn, "message")
		var data struct {
			BookId  string         `json:"bookId"`
			Message map[string]any `json:"message"`
		}
		require.NoError(t, json.Unmarshal(f.Data, &data))
		assert.Equal(t, "diary", data.BookId)
		assert.Equal(t, peerA.Id, data.Message["userId"])
		assert.Equal(t, "Sara", data.Message["name"])
		assert.Equal(t, "diary", data.Message["bookId"])
	}
}

func TestHandleWsMessage_OtherBooksAreNotDelivered(t *testing.T) {
	s := setupServer(t)
	_, tokenA := s.session(t, "Sara")
	_, tokenB := s.session(t, "Omar")

	connA := s.dial(t, tokenA)
	connB := s.dial(t, tokenB)
	subscribe(t, connA, "diary")
	subscribe(t, connB, "sketches")
	subscribe(t, connA, "sketches")

	send(t, connA, "publish", map[string]any{
		"bookId":  "diary",
		"message": json.RawMessage(`{"type":"presence","textId":"t1","cursorIndex":2,"selectionStart":2,"selectionEnd":2,"isActive":true}`),
	})
	send(t, connA, "publish", map[string]any{
		"bookId":  "sketches",
		"message": json.RawMessage(`{"type":"presence","textId":"t2","isActive":true}`),
	})

	f := readUntil(t, connB, "message")
	var data struct {
		BookId string `json:"bookId"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, "sketches", data.BookId)
}

func TestHandleWsMessage_PublishRejected(t *testing.T) {
	s := setupServer(t)
	_, token := s.session(t, "Sara")
	conn := s.dial(t, token)

	send(t, conn, "publish", map[string]any{
		"bookId":  "diary",
		"message": json.RawMessage(`{"type":"page-update","pageIndex":0,"side":"sideways","blocks":[]}`),
	})

	f := readUntil(t, conn, "publish_response")
	var data struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		BookId  string `json:"bookId"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.False(t, data.Success)
	assert.NotEmpty(t, data.Error)
	assert.Equal(t, "diary", data.BookId)
}

func TestHandleWsMessage_SubscribeInvalidBook(t *testing.T) {
	s := setupServer(t)
	_, token := s.session(t, "Sara")
	conn := s.dial(t, token)

	send(t, conn, "subscribe", map[string]string{"bookId": "not a book!"})
	f := readUntil(t, conn, "subscribe_response")
	var data struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.False(t, data.Success)
}

func TestHandleWsMessage_LoadReturnsDefaults(t *testing.T) {
	s := setupServer(t)
	_, token := s.session(t, "Sara")
	conn := s.dial(t, token)

	send(t, conn, "load", map[string]string{"bookId": "fresh"})
	f := readUntil(t, conn, "load_response")
	var data struct {
		Success bool          `json:"success"`
		BookId  string        `json:"bookId"`
		Pages   []models.Page `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.True(t, data.Success)
	assert.Equal(t, "fresh", data.BookId)
	assert.Len(t, data.Pages, 3)
}

func TestHandleWsMessage_LoadAfterSave(t *testing.T) {
	s := setupServer(t)
	_, token := s.session(t, "Sara")

	text := models.NewTextBlock("t1", 5, 5)
	text.Text = "saved"
	require.NoError(t, s.svc.SaveBookPages(context.Background(), "diary", []models.Page{{FrontBlocks: []models.Block{text}}}))

	conn := s.dial(t, token)
	send(t, conn, "load", map[string]string{"bookId": "diary"})
	f := readUntil(t, conn, "load_response")
	var data struct {
		Pages []models.Page `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &data))
	require.Len(t, data.Pages, 1)
	require.Len(t, data.Pages[0].FrontBlocks, 1)
	assert.Equal(t, "saved", data.Pages[0].FrontBlocks[0].Text)
}

func TestHub_ConnectionLimitPerPeer(t *testing.T) {
	s := setupServer(t)
	_, token := s.session(t, "Sara")

	for i := 0; i < 3; i++ {
		conn := s.dial(t, token)
		readUntil(t, conn, "welcome")
	}

	extra := s.dial(t, token)
	extra.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := extra.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
			return
		}
	}
}
