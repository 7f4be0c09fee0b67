package redis

import (
	"context"
	"crypto/tls"
	"log"

	"github.com/redis/go-redis/v9"
)

type RedisTransport struct {
	client redis.UniversalClient
}

func NewRedisTransport(ctx context.Context, devMode bool, redisEndpoint string) (*RedisTransport, error) {
	var client redis.UniversalClient
	if devMode {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
			// AWS elasticache endpoints require TLS
			TLSConfig: &tls.Config{},
		})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisTransport{client: client}, nil
}

func (r *RedisTransport) Publish(ctx context.Context, topic string, message []byte) error {
	return r.client.Publish(ctx, topic, message).Err()
}

func (r *RedisTransport) Subscribe(ctx context.Context, topic string, handler func(message []byte)) error {
	pubsub := r.client.Subscribe(ctx, topic)
	// Ensure subscription is established
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		log.Printf("Pubsub channel closed: %s", topic)
		return err
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

func (r *RedisTransport) Close() error {
	return r.client.Close()
}
