package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/zlnvch/flipbook/models"
	"github.com/zlnvch/flipbook/service"
)

// Subprotocol is offered first by clients. The second offered subprotocol
// carries the peer token.
const Subprotocol = "flipbook-v1"

type Handler struct {
	Service *service.Service
	Hub     *Hub
}

func NewHandler(svc *service.Service, hub *Hub) *Handler {
	return &Handler{
		Service: svc,
		Hub:     hub,
	}
}

// NewWsUpgrader accepts any origin when allowedOrigin is "*".
func (h *Handler) NewWsUpgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == allowedOrigin
		},
		Subprotocols: []string{Subprotocol},
	}
}

// ServeWS handles websocket requests from the peer.
func (h *Handler) ServeWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	protocols := r.Header.Get("Sec-WebSocket-Protocol")
	protocolsSplit := strings.Split(protocols, ",")

	if len(protocolsSplit) != 2 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token := strings.TrimSpace(protocolsSplit[1])

	peer, authErr := h.Service.AuthenticateToken(token)

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade ws connection: %v", err)
		return
	}

	// Must upgrade the connection in order to be able to send custom close message
	if authErr != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unauthenticated"),
		)
		conn.Close()
		return
	}

	client := NewClient(h.Hub, conn, peer, h.HandleWsMessage)

	h.Hub.OpenCh <- client

	// Start pumps
	go client.ReadPump()
	go client.WritePump(shutdownCtx)

	if msgBytes, err := json.Marshal(responseMessage{Type: "welcome", Data: peer}); err == nil {
		client.Send <- msgBytes
	}
}

// Websocket message structs
type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type bookRequest struct {
	BookId string `json:"bookId"`
}

type publishRequest struct {
	BookId  string          `json:"bookId"`
	Message json.RawMessage `json:"message"`
}

type responseMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (h *Handler) HandleWsMessage(client *Client, messageType int, messageBytes []byte) {
	var msg message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		log.Printf("Invalid JSON: %v", err)
		return
	}

	var resp responseMessage

	switch msg.Type {
	case "load":
		var req bookRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Printf("Invalid load data: %v", err)
			return
		}
		resp = h.handleLoad(req)

	case "subscribe":
		var req bookRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Printf("Invalid subscribe data: %v", err)
			return
		}
		resp = h.handleSubscribe(client, req)

	case "unsubscribe":
		var req bookRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Printf("Invalid unsubscribe data: %v", err)
			return
		}
		resp = h.handleUnsubscribe(client, req)

	case "publish":
		var req publishRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Printf("Invalid publish data: %v", err)
			return
		}
		resp = h.handlePublish(client, req)

	default:
		log.Printf("Unknown message type: %v", msg.Type)
	}

	if resp.Type != "" {
		respBytes, err := json.Marshal(resp)
		if err != nil {
			log.Printf("Error marshaling response JSON: %v", err)
			return
		}
		client.Send <- respBytes
	}
}

func (h *Handler) handleLoad(req bookRequest) responseMessage {
	resp := responseMessage{
		Type: "load_response",
	}

	pages, err := h.Service.LoadBookPages(context.Background(), req.BookId)
	if err != nil {
		log.Printf("LoadBookPages failed: %v", err)
		resp.Data = map[string]any{"success": false, "bookId": req.BookId, "pages": []models.Page{}}
		return resp
	}

	resp.Data = map[string]any{"success": true, "bookId": req.BookId, "pages": pages}
	return resp
}

func (h *Handler) handleSubscribe(client *Client, req bookRequest) responseMessage {
	resp := responseMessage{
		Type: "subscribe_response",
	}

	if err := service.ValidateBookId(req.BookId); err != nil {
		log.Printf("Subscribe book id validation failed: %v", err)
		resp.Data = map[string]any{"success": false, "bookId": req.BookId}
		return resp
	}

	// the hub answers once the subscription is in place
	h.Hub.SubscribeCh <- subscription{client: client, bookId: req.BookId}
	return responseMessage{}
}

func (h *Handler) handleUnsubscribe(client *Client, req bookRequest) responseMessage {
	resp := responseMessage{
		Type: "unsubscribe_response",
	}

	if err := service.ValidateBookId(req.BookId); err != nil {
		log.Printf("Unsubscribe book id validation failed: %v", err)
		resp.Data = map[string]any{"success": false, "bookId": req.BookId}
		return resp
	}

	h.Hub.UnsubscribeCh <- subscription{client: client, bookId: req.BookId}
	return responseMessage{}
}

// handlePublish only answers on failure. Success is visible to the sender
// as its own message coming back on the book topic.
func (h *Handler) handlePublish(client *Client, req publishRequest) responseMessage {
	_, err := h.Service.RelayEnvelope(context.Background(), client.peer, req.BookId, req.Message)
	if err == nil {
		return responseMessage{}
	}

	log.Printf("RelayEnvelope failed: %v", err)
	return responseMessage{
		Type: "publish_response",
		Data: map[string]any{
			"success": false,
			"error":   err.Error(),
			"bookId":  req.BookId,
		},
	}
}
