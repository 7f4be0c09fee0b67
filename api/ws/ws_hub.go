package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/zlnvch/flipbook/transport"
)

type subscription struct {
	client *Client
	bookId string
}

type broadcast struct {
	bookId  string
	message []byte
}

type bookMessageData struct {
	BookId  string          `json:"bookId"`
	Message json.RawMessage `json:"message"`
}

type bookMessage struct {
	Type string          `json:"type"`
	Data bookMessageData `json:"data"`
}

// Hub maintains the set of active clients and fans book topic messages out to
// the clients subscribed to that book. All maps are owned by Run.
type Hub struct {
	transport              transport.Transport
	OpenCh                 chan *Client
	CloseCh                chan *Client
	SubscribeCh            chan subscription
	UnsubscribeCh          chan subscription
	BroadcastCh            chan broadcast
	peerToClients          map[string]map[*Client]struct{}
	bookToClients          map[string]map[*Client]struct{}
	bookToSubscriberCancel map[string]context.CancelFunc
}

func NewHub(t transport.Transport) *Hub {
	return &Hub{
		transport:              t,
		OpenCh:                 make(chan *Client, 256),
		CloseCh:                make(chan *Client, 256),
		SubscribeCh:            make(chan subscription, 1024),
		UnsubscribeCh:          make(chan subscription, 1024),
		BroadcastCh:            make(chan broadcast, 4096),
		peerToClients:          make(map[string]map[*Client]struct{}),
		bookToClients:          make(map[string]map[*Client]struct{}),
		bookToSubscriberCancel: make(map[string]context.CancelFunc),
	}
}

const (
	maxConnectionsPerPeer         = 3
	maxSubscriptionsPerConnection = 50
)

func (h *Hub) Run(shutdownCtx context.Context) {
	for {
		select {
		case client := <-h.OpenCh:
			if _, ok := h.peerToClients[client.peer.Id]; !ok {
				h.peerToClients[client.peer.Id] = make(map[*Client]struct{})
			}

			if len(h.peerToClients[client.peer.Id]) >= maxConnectionsPerPeer {
				log.Printf("Peer %s reached max connections (%d)", client.peer.Id, maxConnectionsPerPeer)
				client.reject("Too many connections")
				continue
			}

			h.peerToClients[client.peer.Id][client] = struct{}{}

		case client := <-h.CloseCh:
			for bookId := range client.subscribedBooks {
				h.removeFromBook(client, bookId)
			}
			delete(h.peerToClients[client.peer.Id], client)
			if len(h.peerToClients[client.peer.Id]) == 0 {
				delete(h.peerToClients, client.peer.Id)
			}

		case sub := <-h.SubscribeCh:
			if _, ok := sub.client.subscribedBooks[sub.bookId]; ok {
				sub.client.respond("subscribe_response", sub.bookId, true)
				continue
			}
			if len(sub.client.subscribedBooks) >= maxSubscriptionsPerConnection {
				log.Printf("Connection by peer %s reached max subscriptions (%d)", sub.client.peer.Id, maxSubscriptionsPerConnection)
				sub.client.respond("subscribe_response", sub.bookId, false)
				continue
			}
			if h.bookToClients[sub.bookId] == nil {
				log.Printf("Subscriber does not exist, creating for book: %s", sub.bookId)

				ctx, cancel := context.WithCancel(shutdownCtx)
				bookId := sub.bookId
				topic := transport.Topic(bookId)

				err := h.transport.Subscribe(ctx, topic, func(messageBytes []byte) {
					select {
					case h.BroadcastCh <- broadcast{bookId: bookId, message: messageBytes}:
					case <-ctx.Done():
					}
				})
				if err != nil {
					log.Printf("Failed to subscribe to topic %s: %v", topic, err)
					cancel()
					sub.client.respond("subscribe_response", sub.bookId, false)
					continue
				}

				h.bookToClients[sub.bookId] = make(map[*Client]struct{})
				h.bookToSubscriberCancel[sub.bookId] = cancel
			}
			h.bookToClients[sub.bookId][sub.client] = struct{}{}
			sub.client.subscribedBooks[sub.bookId] = struct{}{}
			// acknowledged only once the topic subscription exists
			sub.client.respond("subscribe_response", sub.bookId, true)

		case unsub := <-h.UnsubscribeCh:
			h.removeFromBook(unsub.client, unsub.bookId)
			unsub.client.respond("unsubscribe_response", unsub.bookId, true)

		case b := <-h.BroadcastCh:
			clients := h.bookToClients[b.bookId]
			if len(clients) == 0 {
				continue
			}
			msgBytes, err := json.Marshal(bookMessage{
				Type: "message",
				Data: bookMessageData{BookId: b.bookId, Message: b.message},
			})
			if err != nil {
				log.Printf("Failed to wrap message for book %s: %v", b.bookId, err)
				continue
			}
			for client := range clients {
				select {
				case client.Send <- msgBytes:
				default:
					// at-most-once: a slow client misses the update
					log.Printf("Dropping message for peer %s: send buffer full", client.peer.Id)
				}
			}

		case <-shutdownCtx.Done():
			for bookId, cancel := range h.bookToSubscriberCancel {
				cancel()
				delete(h.bookToSubscriberCancel, bookId)
			}
			return
		}
	}
}

func (h *Hub) removeFromBook(client *Client, bookId string) {
	delete(h.bookToClients[bookId], client)
	delete(client.subscribedBooks, bookId)
	if len(h.bookToClients[bookId]) == 0 {
		if cancel, ok := h.bookToSubscriberCancel[bookId]; ok {
			cancel()
			delete(h.bookToSubscriberCancel, bookId)
		}
		delete(h.bookToClients, bookId)
	}
}
