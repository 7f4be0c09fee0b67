package collab

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/zlnvch/flipbook/book"
	"github.com/zlnvch/flipbook/models"
	"github.com/zlnvch/flipbook/presence"
	"github.com/zlnvch/flipbook/transport"
)

const publishTimeout = 5 * time.Second

type SessionConfig struct {
	BookId string
	Self   models.Peer
	Store  *book.Store
	// Tracker receives remote presence. A nil tracker gets a fresh one.
	Tracker *presence.Tracker
	// Transport may be nil, in which case the session only edits locally.
	Transport        transport.Transport
	ThrottleInterval time.Duration
}

// Session connects a local Store to the book topic. Local block changes are
// published as page-updates; inbound page-updates and presence are applied
// without being published again. Messages stamped with our own user id are
// dropped.
type Session struct {
	bookId    string
	self      models.Peer
	store     *book.Store
	tracker   *presence.Tracker
	transport transport.Transport
	cursor    *presence.LocalCursor

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

func NewSession(cfg SessionConfig) *Session {
	interval := cfg.ThrottleInterval
	if interval <= 0 {
		interval = presence.ThrottleInterval
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = presence.NewTracker(nil)
	}

	s := &Session{
		bookId:    cfg.BookId,
		self:      cfg.Self,
		store:     cfg.Store,
		tracker:   tracker,
		transport: cfg.Transport,
	}
	s.cursor = presence.NewLocalCursor(interval, nil, func(u presence.Update) {
		s.publish(Envelope{Type: TypePresence, Presence: &u})
	})
	return s
}

func (s *Session) Tracker() *presence.Tracker {
	return s.tracker
}

// Enabled reports whether a transport is attached.
func (s *Session) Enabled() bool {
	return s.transport != nil
}

// Start subscribes to the book topic and begins publishing local changes.
// Without a transport it does nothing and returns nil. Starting a started
// session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	if s.transport == nil {
		log.Printf("No broadcast transport for book %s, collaboration disabled", s.bookId)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := s.transport.Subscribe(ctx, transport.Topic(s.bookId), s.receive); err != nil {
		cancel()
		return err
	}

	s.ctx = ctx
	s.cancel = cancel
	s.unsubscribe = s.store.Subscribe(s.onChange)
	return nil
}

// Close announces that editing ended and detaches from the topic.
func (s *Session) Close() {
	s.cursor.End()
	s.cursor.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) CursorMoved(textId string, cursorIndex, selectionStart, selectionEnd int) {
	s.cursor.Move(textId, cursorIndex, selectionStart, selectionEnd)
}

func (s *Session) EditingEnded() {
	s.cursor.End()
}

func (s *Session) onChange(c book.Change) {
	if c.Origin != book.OriginLocal || c.Kind != book.BlocksChanged {
		return
	}
	s.publish(Envelope{
		Type:       TypePageUpdate,
		PageUpdate: &PageUpdate{PageIndex: c.PageIndex, Side: c.Side, Blocks: c.Blocks},
	})
}

func (s *Session) publish(e Envelope) {
	if s.transport == nil {
		return
	}
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil || parent.Err() != nil {
		return
	}

	e.UserId = s.self.Id
	e.Name = s.self.Name
	e.Color = s.self.Color
	e.BookId = s.bookId

	msg, err := json.Marshal(e)
	if err != nil {
		log.Printf("Failed to marshal %s message: %v", e.Type, err)
		return
	}

	ctx, cancel := context.WithTimeout(parent, publishTimeout)
	defer cancel()
	if err := s.transport.Publish(ctx, transport.Topic(s.bookId), msg); err != nil {
		log.Printf("Failed to publish %s for book %s: %v", e.Type, s.bookId, err)
	}
}

func (s *Session) receive(message []byte) {
	e, err := Decode(message)
	if err != nil {
		log.Printf("Dropping collaboration message: %v", err)
		return
	}
	if e.UserId == s.self.Id {
		return
	}
	if e.BookId != "" && e.BookId != s.bookId {
		return
	}

	switch e.Type {
	case TypePageUpdate:
		pu := e.PageUpdate
		if err := s.store.ReplaceBlocks(pu.PageIndex, pu.Side, pu.Blocks, book.OriginRemote); err != nil {
			log.Printf("Failed to apply page-update for page %d %s: %v", pu.PageIndex, pu.Side, err)
		}
	case TypePresence:
		s.tracker.Apply(e.UserId, e.Name, e.Color, *e.Presence)
	}
}
