package transport

import (
	"context"
	"strings"
)

// Transport is a best-effort pub/sub primitive. Delivery is at most once and
// ordered per topic only as far as the implementation orders it.
type Transport interface {
	Publish(ctx context.Context, topic string, message []byte) error
	// Subscribe delivers messages on topic to handler until ctx is done.
	Subscribe(ctx context.Context, topic string, handler func(message []byte)) error
}

const bookTopicPrefix = "book:"

func Topic(bookId string) string {
	return bookTopicPrefix + bookId
}

// BookId extracts the book id from a topic built by Topic.
func BookId(topic string) (string, bool) {
	if !strings.HasPrefix(topic, bookTopicPrefix) {
		return "", false
	}
	return strings.TrimPrefix(topic, bookTopicPrefix), true
}
