package book

import (
	"errors"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/zlnvch/flipbook/geometry"
	"github.com/zlnvch/flipbook/models"
)

var (
	ErrPageNotFound     = errors.New("page does not exist")
	ErrBlockNotFound    = errors.New("block does not exist")
	ErrDuplicateBlock   = errors.New("block id already exists on this page side")
	ErrInvalidSide      = errors.New("invalid page side")
	ErrInvalidBlockType = errors.New("invalid block type")
	ErrLastPage         = errors.New("cannot remove the last page")
)

type Origin int

const (
	// OriginLocal changes come from this peer and should be broadcast.
	OriginLocal Origin = iota
	// OriginRemote changes were received from another peer.
	OriginRemote
)

type ChangeKind int

const (
	BlocksChanged ChangeKind = iota
	PageAdded
	PageRemoved
	PagesReset
)

type Change struct {
	Kind      ChangeKind
	PageIndex int
	Side      models.Side
	Blocks    []models.Block
	Origin    Origin
}

type Observer func(Change)

// MaxPages bounds how far a remote page-update can grow the book.
const MaxPages = 200

// Store holds the block lists of every page side. Each mutation replaces the
// affected list with a fresh slice and then notifies observers in
// registration order on the calling goroutine. Mutations are serialized
// together with their notification, so observers see changes in the order
// they were applied. Observers must not mutate the store.
type Store struct {
	// held from before a list swap until its observers return
	notifyMu  sync.Mutex
	mu        sync.RWMutex
	pages     []models.Page
	author    Author
	now       func() int64
	observers map[int]Observer
	nextObs   int
}

type Option func(*Store)

// WithClock overrides the millisecond clock used for segment timestamps.
func WithClock(now func() int64) Option {
	return func(s *Store) { s.now = now }
}

func WithAuthor(author Author) Option {
	return func(s *Store) { s.author = author }
}

func NewStore(pages []models.Page, opts ...Option) *Store {
	s := &Store{
		now:       func() int64 { return time.Now().UnixMilli() },
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pages = normalizePages(pages)
	return s
}

func NewBlockId() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Must(uuid.NewV4()).String()
	}
	return id.String()
}

func (s *Store) SetAuthor(author Author) {
	s.mu.Lock()
	s.author = author
	s.mu.Unlock()
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Store) Subscribe(fn Observer) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	slices.Sort(ids)
	for _, id := range ids {
		s.mu.RLock()
		fn, ok := s.observers[id]
		s.mu.RUnlock()
		if ok {
			fn(c)
		}
	}
}

func (s *Store) PageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// Pages returns a deep copy of the book.
func (s *Store) Pages() []models.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Page, len(s.pages))
	for i, p := range s.pages {
		out[i] = models.Page{
			FrontBlocks: cloneBlocks(p.FrontBlocks),
			BackBlocks:  cloneBlocks(p.BackBlocks),
		}
	}
	return out
}

func (s *Store) ListBlocks(page int, side models.Side) ([]models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkLocked(page, side); err != nil {
		return nil, err
	}
	return cloneBlocks(s.pages[page].Blocks(side)), nil
}

func (s *Store) Block(page int, side models.Side, id string) (models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkLocked(page, side); err != nil {
		return models.Block{}, err
	}
	for _, b := range s.pages[page].Blocks(side) {
		if b.Id == id {
			return b.Clone(), nil
		}
	}
	return models.Block{}, ErrBlockNotFound
}

// AddBlock appends block to a page side. An empty id is filled with a new one.
func (s *Store) AddBlock(page int, side models.Side, block models.Block) (models.Block, error) {
	if !block.Type.Valid() {
		return models.Block{}, ErrInvalidBlockType
	}
	if block.Id == "" {
		block.Id = NewBlockId()
	}
	block = block.Clone()
	block.SetRect(geometry.Sanitize(block.Rect(), block.Type))

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if err := s.checkLocked(page, side); err != nil {
		s.mu.Unlock()
		return models.Block{}, err
	}
	current := s.pages[page].Blocks(side)
	for _, b := range current {
		if b.Id == block.Id {
			s.mu.Unlock()
			return models.Block{}, ErrDuplicateBlock
		}
	}

	next := make([]models.Block, len(current), len(current)+1)
	copy(next, current)
	next = append(next, block)
	s.pages[page].SetBlocks(side, next)
	s.mu.Unlock()

	s.notify(Change{Kind: BlocksChanged, PageIndex: page, Side: side, Blocks: cloneBlocks(next), Origin: OriginLocal})
	return block.Clone(), nil
}

// UpdateBlock merges patch into one block. A text change recomputes segments
// unless the patch carries them.
func (s *Store) UpdateBlock(page int, side models.Side, id string, patch models.BlockPatch) (models.Block, error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if err := s.checkLocked(page, side); err != nil {
		s.mu.Unlock()
		return models.Block{}, err
	}

	current := s.pages[page].Blocks(side)
	idx := -1
	for i, b := range current {
		if b.Id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return models.Block{}, ErrBlockNotFound
	}

	updated := applyPatch(current[idx].Clone(), patch, s.author, s.now())

	next := make([]models.Block, len(current))
	copy(next, current)
	next[idx] = updated
	s.pages[page].SetBlocks(side, next)
	s.mu.Unlock()

	s.notify(Change{Kind: BlocksChanged, PageIndex: page, Side: side, Blocks: cloneBlocks(next), Origin: OriginLocal})
	return updated.Clone(), nil
}

func applyPatch(b models.Block, p models.BlockPatch, author Author, now int64) models.Block {
	if p.X != nil {
		b.X = *p.X
	}
	if p.Y != nil {
		b.Y = *p.Y
	}
	if p.W != nil {
		b.W = *p.W
	}
	if p.H != nil {
		b.H = *p.H
	}
	b.SetRect(geometry.Sanitize(b.Rect(), b.Type))

	if p.Text != nil {
		if b.Type == models.BlockText {
			if p.Segments != nil {
				b.Segments = append([]models.TextSegment(nil), p.Segments...)
			} else {
				b.Segments = Segment(b.Text, b.Segments, *p.Text, author, now)
			}
		}
		b.Text = *p.Text
	} else if p.Segments != nil {
		b.Segments = append([]models.TextSegment(nil), p.Segments...)
	}

	if p.Font != nil {
		b.Font = *p.Font
	}
	if p.Color != nil {
		b.Color = *p.Color
	}
	if p.FontSize != nil {
		b.FontSize = clampFontSize(*p.FontSize)
	}
	if p.Src != nil {
		b.Src = *p.Src
	}
	if p.ImageSrc != nil {
		b.ImageSrc = *p.ImageSrc
	}
	if p.FrameSrc != nil {
		b.FrameSrc = *p.FrameSrc
	}
	if p.FrameInset != nil {
		inset := *p.FrameInset
		b.FrameInset = &inset
	}
	return b
}

func (s *Store) DeleteBlock(page int, side models.Side, id string) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if err := s.checkLocked(page, side); err != nil {
		s.mu.Unlock()
		return err
	}

	current := s.pages[page].Blocks(side)
	next := make([]models.Block, 0, len(current))
	for _, b := range current {
		if b.Id != id {
			next = append(next, b)
		}
	}
	if len(next) == len(current) {
		s.mu.Unlock()
		return ErrBlockNotFound
	}
	s.pages[page].SetBlocks(side, next)
	s.mu.Unlock()

	s.notify(Change{Kind: BlocksChanged, PageIndex: page, Side: side, Blocks: cloneBlocks(next), Origin: OriginLocal})
	return nil
}

// ReplaceBlocks swaps a whole page side for blocks. Replacing a list with an
// equal one is a no-op and notifies nobody. Later duplicates of an id are
// dropped. A remote replace past the last page appends empty pages up to it.
func (s *Store) ReplaceBlocks(page int, side models.Side, blocks []models.Block, origin Origin) error {
	next := make([]models.Block, 0, len(blocks))
	seen := make(map[string]struct{}, len(blocks))
	for _, b := range blocks {
		if b.Id == "" || !b.Type.Valid() {
			continue
		}
		if _, dup := seen[b.Id]; dup {
			continue
		}
		seen[b.Id] = struct{}{}
		b = b.Clone()
		b.SetRect(geometry.Sanitize(b.Rect(), b.Type))
		next = append(next, b)
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	// a peer may have added pages we have not seen yet
	added := 0
	if origin == OriginRemote && side.Valid() && page >= len(s.pages) && page < MaxPages {
		for len(s.pages) <= page {
			s.pages = append(s.pages, models.EmptyPage())
			added++
		}
	}
	if err := s.checkLocked(page, side); err != nil {
		s.mu.Unlock()
		return err
	}
	first := len(s.pages) - added
	if reflect.DeepEqual(s.pages[page].Blocks(side), next) {
		s.mu.Unlock()
		s.notifyAdded(first, added, origin)
		return nil
	}
	s.pages[page].SetBlocks(side, next)
	s.mu.Unlock()

	s.notifyAdded(first, added, origin)
	s.notify(Change{Kind: BlocksChanged, PageIndex: page, Side: side, Blocks: cloneBlocks(next), Origin: origin})
	return nil
}

func (s *Store) notifyAdded(first, count int, origin Origin) {
	for i := first; i < first+count; i++ {
		s.notify(Change{Kind: PageAdded, PageIndex: i, Origin: origin})
	}
}

// AddPage appends an empty page and returns its index.
func (s *Store) AddPage() int {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.pages = append(s.pages, models.EmptyPage())
	idx := len(s.pages) - 1
	s.mu.Unlock()

	s.notify(Change{Kind: PageAdded, PageIndex: idx, Origin: OriginLocal})
	return idx
}

func (s *Store) RemovePage(index int) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if index < 0 || index >= len(s.pages) {
		s.mu.Unlock()
		return ErrPageNotFound
	}
	if len(s.pages) <= 1 {
		s.mu.Unlock()
		return ErrLastPage
	}
	next := make([]models.Page, 0, len(s.pages)-1)
	next = append(next, s.pages[:index]...)
	next = append(next, s.pages[index+1:]...)
	s.pages = next
	s.mu.Unlock()

	s.notify(Change{Kind: PageRemoved, PageIndex: index, Origin: OriginLocal})
	return nil
}

// ResetPages replaces the whole book, e.g. after loading from storage.
func (s *Store) ResetPages(pages []models.Page, origin Origin) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.pages = normalizePages(pages)
	s.mu.Unlock()

	s.notify(Change{Kind: PagesReset, Origin: origin})
}

func (s *Store) checkLocked(page int, side models.Side) error {
	if !side.Valid() {
		return ErrInvalidSide
	}
	if page < 0 || page >= len(s.pages) {
		return ErrPageNotFound
	}
	return nil
}

func normalizePages(pages []models.Page) []models.Page {
	out := make([]models.Page, 0, len(pages))
	for _, p := range pages {
		if p.FrontBlocks == nil {
			p.FrontBlocks = []models.Block{}
		}
		if p.BackBlocks == nil {
			p.BackBlocks = []models.Block{}
		}
		out = append(out, models.Page{
			FrontBlocks: cloneBlocks(p.FrontBlocks),
			BackBlocks:  cloneBlocks(p.BackBlocks),
		})
	}
	if len(out) == 0 {
		out = append(out, models.EmptyPage())
	}
	return out
}

func cloneBlocks(in []models.Block) []models.Block {
	out := make([]models.Block, len(in))
	for i, b := range in {
		out[i] = b.Clone()
	}
	return out
}

func clampFontSize(size int) int {
	if size < models.MinFontSize {
		return models.MinFontSize
	}
	if size > models.MaxFontSize {
		return models.MaxFontSize
	}
	return size
}
