package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/zlnvch/flipbook/models"
)

// StaleAfter is how long an entry lives without a refresh.
const StaleAfter = 5000 * time.Millisecond

// Update is one presence message as it travels between peers. Sender identity
// (user id, name, color) travels in the envelope around it.
type Update struct {
	TextId         string `json:"textId"`
	CursorIndex    int    `json:"cursorIndex"`
	SelectionStart int    `json:"selectionStart"`
	SelectionEnd   int    `json:"selectionEnd"`
	IsActive       bool   `json:"isActive"`
	LastSeenTs     int64  `json:"lastSeenTs,omitempty"`
}

// Tracker keeps remote cursors per text block and user.
type Tracker struct {
	mu         sync.RWMutex
	entries    map[string]map[string]models.PresenceEntry
	staleAfter int64
	now        func() int64
}

func NewTracker(now func() int64) *Tracker {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &Tracker{
		entries:    make(map[string]map[string]models.PresenceEntry),
		staleAfter: StaleAfter.Milliseconds(),
		now:        now,
	}
}

// Apply upserts or removes the entry described by u. A missing lastSeenTs is
// replaced with the local clock.
func (t *Tracker) Apply(userId, name, color string, u Update) {
	if u.TextId == "" || userId == "" {
		return
	}
	if !u.IsActive {
		t.Remove(u.TextId, userId)
		return
	}

	ts := u.LastSeenTs
	if ts == 0 {
		ts = t.now()
	}
	t.Upsert(u.TextId, models.PresenceEntry{
		UserId:         userId,
		Name:           name,
		Color:          color,
		CursorIndex:    u.CursorIndex,
		SelectionStart: u.SelectionStart,
		SelectionEnd:   u.SelectionEnd,
		LastSeenTs:     ts,
	})
}

func (t *Tracker) Upsert(textId string, entry models.PresenceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.entries[textId]
	if !ok {
		users = make(map[string]models.PresenceEntry)
		t.entries[textId] = users
	}
	users[entry.UserId] = entry
}

func (t *Tracker) Remove(textId, userId string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.entries[textId]
	if !ok {
		return
	}
	delete(users, userId)
	if len(users) == 0 {
		delete(t.entries, textId)
	}
}

// RemoveUser drops every entry of a user, e.g. when they leave the book.
func (t *Tracker) RemoveUser(userId string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for textId, users := range t.entries {
		delete(users, userId)
		if len(users) == 0 {
			delete(t.entries, textId)
		}
	}
}

// Active lists fresh entries on a text block ordered by user id.
func (t *Tracker) Active(textId string) []models.PresenceEntry {
	now := t.now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	out := []models.PresenceEntry{}
	for _, e := range t.entries[textId] {
		if t.fresh(e, now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserId < out[j].UserId })
	return out
}

// ForBlocks returns fresh entries keyed by text block id, limited to blocks
// that still exist.
func (t *Tracker) ForBlocks(blocks []models.Block) map[string][]models.PresenceEntry {
	out := make(map[string][]models.PresenceEntry)
	for _, b := range blocks {
		if b.Type != models.BlockText {
			continue
		}
		if entries := t.Active(b.Id); len(entries) > 0 {
			out[b.Id] = entries
		}
	}
	return out
}

// Prune deletes stale entries and reports how many were removed.
func (t *Tracker) Prune() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for textId, users := range t.entries {
		for userId, e := range users {
			if !t.fresh(e, now) {
				delete(users, userId)
				removed++
			}
		}
		if len(users) == 0 {
			delete(t.entries, textId)
		}
	}
	return removed
}

func (t *Tracker) fresh(e models.PresenceEntry, now int64) bool {
	return now-e.LastSeenTs <= t.staleAfter
}
