package transcription

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zlnvch/flipbook/book"
	"github.com/zlnvch/flipbook/models"
)

var (
	ErrUnsupported = errors.New("speech-to-text is not supported")
	ErrNotOwner    = errors.New("only the book owner can dictate")
	ErrNotText     = errors.New("dictation target is not a text block")
)

// ErrorNotAllowed is the provider error code for a denied microphone. It
// never triggers a restart.
const ErrorNotAllowed = "not-allowed"

const (
	DefaultEndRestartDelay   = 150 * time.Millisecond
	DefaultErrorRestartDelay = 300 * time.Millisecond

	// margin of the text block placed on an empty page while armed
	largeTextMargin = 16
)

// Result is one recognition result from the provider's current result index
// onwards.
type Result struct {
	Transcript string
	Final      bool
}

// Handler receives provider callbacks. Session implements it.
type Handler interface {
	OnResult(results []Result)
	OnEnd()
	OnError(code string)
}

// Provider is a speech recognizer capability. Start may be called again after
// OnEnd or OnError to resume listening.
type Provider interface {
	Start(ctx context.Context, h Handler) error
	Stop()
}

type Target struct {
	PageIndex int
	Side      models.Side
	BlockId   string
}

type SessionConfig struct {
	Store    *book.Store
	Provider Provider
	IsOwner  bool

	EndRestartDelay   time.Duration
	ErrorRestartDelay time.Duration
}

type target struct {
	Target
	baseText    string
	interimText string
}

// Session streams dictated text into one text block. Final chunks are
// appended to a base text and the block shows base plus the current interim.
type Session struct {
	cfg SessionConfig

	mu           sync.Mutex
	ctx          context.Context
	target       *target
	armed        bool
	listening    bool
	shouldListen bool
	restart      *time.Timer
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.EndRestartDelay == 0 {
		cfg.EndRestartDelay = DefaultEndRestartDelay
	}
	if cfg.ErrorRestartDelay == 0 {
		cfg.ErrorRestartDelay = DefaultErrorRestartDelay
	}
	return &Session{cfg: cfg, ctx: context.Background()}
}

func (s *Session) Supported() bool {
	return s.cfg.Provider != nil
}

func (s *Session) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

func (s *Session) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Arm prepares dictation into the next text block placed with PlaceText.
func (s *Session) Arm() error {
	if !s.cfg.IsOwner {
		return ErrNotOwner
	}
	if !s.Supported() {
		return ErrUnsupported
	}
	s.Stop()
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
	return nil
}

func (s *Session) Disarm() {
	s.Stop()
	s.mu.Lock()
	s.armed = false
	s.mu.Unlock()
}

// PlaceText adds a text block for dictation. On an empty side it fills the
// page less a margin. Listening starts only with Start.
func (s *Session) PlaceText(page int, side models.Side, at models.Point, bounds models.Bounds, prefs models.Block) (models.Block, error) {
	if !s.Armed() {
		return models.Block{}, errors.New("dictation is not armed")
	}

	existing, err := s.cfg.Store.ListBlocks(page, side)
	if err != nil {
		return models.Block{}, err
	}

	b := models.NewTextBlock(book.NewBlockId(), at.X, at.Y)
	if len(existing) == 0 && bounds.Known() {
		b.X, b.Y = largeTextMargin, largeTextMargin
		b.W = bounds.Width - 2*largeTextMargin
		b.H = bounds.Height - 2*largeTextMargin
	}
	if prefs.Font != "" {
		b.Font = prefs.Font
	}
	if prefs.Color != "" {
		b.Color = prefs.Color
	}
	if prefs.FontSize != 0 {
		b.FontSize = prefs.FontSize
	}

	return s.cfg.Store.AddBlock(page, side, b)
}

// Start begins listening into the text block t. Any previous session is
// stopped first and its interim text committed.
func (s *Session) Start(ctx context.Context, t Target) error {
	if !s.cfg.IsOwner {
		return ErrNotOwner
	}
	if !s.Supported() {
		return ErrUnsupported
	}
	if t.BlockId == "" {
		return ErrNotText
	}

	s.Stop()

	b, err := s.cfg.Store.Block(t.PageIndex, t.Side, t.BlockId)
	if err != nil || b.Type != models.BlockText {
		return ErrNotText
	}

	s.mu.Lock()
	s.ctx = ctx
	s.target = &target{Target: t, baseText: b.Text}
	s.shouldListen = true
	s.listening = true
	s.mu.Unlock()

	if err := s.cfg.Provider.Start(ctx, s); err != nil {
		log.Printf("Failed to start speech provider: %v", err)
	}
	return nil
}

// Stop ends listening, committing any interim text.
func (s *Session) Stop() {
	s.mu.Lock()
	s.shouldListen = false
	if s.restart != nil {
		s.restart.Stop()
		s.restart = nil
	}
	var commit func()
	if s.listening {
		commit = s.commitInterimLocked()
	}
	wasListening := s.listening
	s.listening = false
	s.target = nil
	s.mu.Unlock()

	if commit != nil {
		commit()
	}
	if wasListening && s.cfg.Provider != nil {
		s.cfg.Provider.Stop()
	}
}

func (s *Session) OnResult(results []Result) {
	var finalText, interimText strings.Builder
	for _, r := range results {
		if r.Final {
			finalText.WriteString(r.Transcript)
		} else {
			interimText.WriteString(r.Transcript)
		}
	}

	s.mu.Lock()
	t := s.target
	if t == nil {
		s.mu.Unlock()
		return
	}
	nextBase := t.baseText
	if final := strings.TrimSpace(finalText.String()); final != "" {
		nextBase = joinWords(nextBase, final)
	}
	interim := strings.TrimSpace(interimText.String())
	t.baseText = nextBase
	t.interimText = interim
	at := t.Target
	s.mu.Unlock()

	s.setText(at, joinWords(nextBase, interim))
}

func (s *Session) OnEnd() {
	s.mu.Lock()
	if !s.shouldListen {
		s.listening = false
		s.mu.Unlock()
		return
	}
	commit := s.commitInterimLocked()
	s.scheduleRestartLocked(s.cfg.EndRestartDelay)
	s.mu.Unlock()

	if commit != nil {
		commit()
	}
}

func (s *Session) OnError(code string) {
	s.mu.Lock()
	if !s.shouldListen || code == ErrorNotAllowed {
		s.shouldListen = false
		s.listening = false
		s.target = nil
		s.mu.Unlock()
		return
	}
	commit := s.commitInterimLocked()
	s.scheduleRestartLocked(s.cfg.ErrorRestartDelay)
	s.mu.Unlock()

	if commit != nil {
		commit()
	}
}

func (s *Session) scheduleRestartLocked(delay time.Duration) {
	if s.restart != nil {
		s.restart.Stop()
	}
	ctx := s.ctx
	s.restart = time.AfterFunc(delay, func() {
		s.mu.Lock()
		ok := s.shouldListen
		s.restart = nil
		s.mu.Unlock()
		if !ok {
			return
		}
		if err := s.cfg.Provider.Start(ctx, s); err != nil {
			log.Printf("Failed to restart speech provider: %v", err)
		}
	})
}

// commitInterimLocked folds the interim text into the base. The returned
// func writes the block and must run after s.mu is released.
func (s *Session) commitInterimLocked() func() {
	t := s.target
	if t == nil || t.interimText == "" {
		return nil
	}
	committed := joinWords(t.baseText, t.interimText)
	t.baseText = committed
	t.interimText = ""
	at := t.Target
	return func() { s.setText(at, committed) }
}

func (s *Session) setText(t Target, text string) {
	if _, err := s.cfg.Store.UpdateBlock(t.PageIndex, t.Side, t.BlockId, models.BlockPatch{Text: &text}); err != nil {
		log.Printf("Failed to write dictated text to %s: %v", t.BlockId, err)
	}
}

func joinWords(a, b string) string {
	return strings.TrimSpace(a + " " + b)
}
