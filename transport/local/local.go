package local

import (
	"context"
	"errors"
	"log"
	"sync"
)

const subscriberBuffer = 256

var ErrClosed = errors.New("transport closed")

type subscriber struct {
	ch chan []byte
}

// LocalTransport fans messages out to subscribers in the same process. Each
// subscriber receives messages in publish order on its own goroutine. A
// subscriber that falls behind loses messages rather than blocking publishers.
type LocalTransport struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]struct{}
	closed bool
}

func NewLocalTransport() *LocalTransport {
	return &LocalTransport{topics: make(map[string]map[*subscriber]struct{})}
}

func (l *LocalTransport) Publish(ctx context.Context, topic string, message []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return ErrClosed
	}
	for sub := range l.topics[topic] {
		msg := append([]byte(nil), message...)
		select {
		case sub.ch <- msg:
		default:
			log.Printf("Dropping message on %s: subscriber buffer full", topic)
		}
	}
	return nil
}

func (l *LocalTransport) Subscribe(ctx context.Context, topic string, handler func(message []byte)) error {
	sub := &subscriber{ch: make(chan []byte, subscriberBuffer)}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.topics[topic] == nil {
		l.topics[topic] = make(map[*subscriber]struct{})
	}
	l.topics[topic][sub] = struct{}{}
	l.mu.Unlock()

	go func() {
		defer l.remove(topic, sub)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.ch:
				if !ok {
					return
				}
				handler(msg)
			}
		}
	}()

	return nil
}

func (l *LocalTransport) remove(topic string, sub *subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.topics[topic], sub)
	if len(l.topics[topic]) == 0 {
		delete(l.topics, topic)
	}
}

// Close ends every subscription.
func (l *LocalTransport) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	for _, subs := range l.topics {
		for sub := range subs {
			close(sub.ch)
		}
	}
	l.topics = make(map[string]map[*subscriber]struct{})
}
