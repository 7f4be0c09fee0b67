package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zlnvch/flipbook/collab"
	"github.com/zlnvch/flipbook/models"
	"github.com/zlnvch/flipbook/transport"
)

// RelayEnvelope stamps a client message with the authenticated peer and
// publishes it on the book topic. Whatever identity the client put in the
// message is overwritten. A non-empty bookId replaces the envelope's own.
func (s *Service) RelayEnvelope(ctx context.Context, peer models.Peer, bookId string, raw []byte) (collab.Envelope, error) {
	var e collab.Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return collab.Envelope{}, err
	}

	if bookId != "" {
		e.BookId = bookId
	}

	e.UserId = peer.Id
	e.Name = peer.Name
	e.Color = peer.Color

	if err := ValidateEnvelope(e); err != nil {
		return collab.Envelope{}, err
	}

	msgBytes, err := json.Marshal(e)
	if err != nil {
		return collab.Envelope{}, err
	}
	if err := s.Transport.Publish(ctx, transport.Topic(e.BookId), msgBytes); err != nil {
		return collab.Envelope{}, fmt.Errorf("publish to book %s: %w", e.BookId, err)
	}
	return e, nil
}
