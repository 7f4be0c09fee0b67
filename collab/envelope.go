package collab

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zlnvch/flipbook/models"
	"github.com/zlnvch/flipbook/presence"
)

const (
	TypePageUpdate = "page-update"
	TypePresence   = "presence"
)

var ErrMalformedMessage = errors.New("malformed collaboration message")

type PageUpdate struct {
	PageIndex int            `json:"pageIndex"`
	Side      models.Side    `json:"side"`
	Blocks    []models.Block `json:"blocks"`
}

type header struct {
	Type   string `json:"type"`
	UserId string `json:"userId"`
	BookId string `json:"bookId,omitempty"`
	Name   string `json:"name,omitempty"`
	Color  string `json:"color,omitempty"`
}

// Envelope is the wire message on a book topic. On the wire the payload
// fields sit next to the header fields in one flat JSON object.
type Envelope struct {
	Type   string
	UserId string
	BookId string
	Name   string
	Color  string

	PageUpdate *PageUpdate
	Presence   *presence.Update
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	var payload any
	switch e.Type {
	case TypePageUpdate:
		if e.PageUpdate == nil {
			return nil, fmt.Errorf("%w: page-update without payload", ErrMalformedMessage)
		}
		pu := *e.PageUpdate
		if pu.Blocks == nil {
			pu.Blocks = []models.Block{}
		}
		payload = pu
	case TypePresence:
		if e.Presence == nil {
			return nil, fmt.Errorf("%w: presence without payload", ErrMalformedMessage)
		}
		payload = e.Presence
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, e.Type)
	}

	fields := map[string]json.RawMessage{}
	if err := mergeFields(fields, payload); err != nil {
		return nil, err
	}
	if err := mergeFields(fields, header{Type: e.Type, UserId: e.UserId, BookId: e.BookId, Name: e.Name, Color: e.Color}); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

func mergeFields(into map[string]json.RawMessage, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	for k, f := range fields {
		into[k] = f
	}
	return nil
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	*e = Envelope{Type: h.Type, UserId: h.UserId, BookId: h.BookId, Name: h.Name, Color: h.Color}

	switch h.Type {
	case TypePageUpdate:
		var pu PageUpdate
		if err := json.Unmarshal(data, &pu); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		e.PageUpdate = &pu
	case TypePresence:
		var u presence.Update
		if err := json.Unmarshal(data, &u); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		e.Presence = &u
	}
	return nil
}

// Decode parses and checks an inbound message.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, err
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

func (e Envelope) Validate() error {
	if e.UserId == "" {
		return fmt.Errorf("%w: missing userId", ErrMalformedMessage)
	}
	switch e.Type {
	case TypePageUpdate:
		if e.PageUpdate == nil || e.PageUpdate.Blocks == nil {
			return fmt.Errorf("%w: page-update without blocks", ErrMalformedMessage)
		}
		if e.PageUpdate.PageIndex < 0 || !e.PageUpdate.Side.Valid() {
			return fmt.Errorf("%w: bad page address", ErrMalformedMessage)
		}
	case TypePresence:
		if e.Presence == nil || e.Presence.TextId == "" {
			return fmt.Errorf("%w: presence without textId", ErrMalformedMessage)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, e.Type)
	}
	return nil
}
