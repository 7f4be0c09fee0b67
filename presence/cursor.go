package presence

import (
	"sync"
	"time"
)

// ThrottleInterval bounds how often one peer broadcasts its cursor.
const ThrottleInterval = 120 * time.Millisecond

// Throttle delivers at most one payload per interval. A payload scheduled
// while one is pending replaces it.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	send     func(Update)
	pending  *Update
	timer    *time.Timer
	stopped  bool
}

func NewThrottle(interval time.Duration, send func(Update)) *Throttle {
	return &Throttle{interval: interval, send: send}
}

func (t *Throttle) Schedule(u Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.pending = &u
	if t.timer != nil {
		return
	}
	t.timer = time.AfterFunc(t.interval, t.fire)
}

func (t *Throttle) fire() {
	t.mu.Lock()
	u := t.pending
	t.pending = nil
	t.timer = nil
	stopped := t.stopped
	t.mu.Unlock()

	if u != nil && !stopped {
		t.send(*u)
	}
}

// Cancel drops the pending payload without sending it.
func (t *Throttle) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Flush sends the pending payload now.
func (t *Throttle) Flush() {
	t.mu.Lock()
	u := t.pending
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	stopped := t.stopped
	t.mu.Unlock()

	if u != nil && !stopped {
		t.send(*u)
	}
}

func (t *Throttle) Stop() {
	t.Cancel()
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// LocalCursor turns local caret movement into throttled presence updates and
// announces when editing stops.
type LocalCursor struct {
	mu         sync.Mutex
	send       func(Update)
	throttle   *Throttle
	lastTextId string
	now        func() int64
}

func NewLocalCursor(interval time.Duration, now func() int64, send func(Update)) *LocalCursor {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	c := &LocalCursor{send: send, now: now}
	c.throttle = NewThrottle(interval, func(u Update) {
		u.LastSeenTs = c.now()
		send(u)
	})
	return c
}

// Move records a caret position. Moving to another text block first marks
// the previous one inactive.
func (c *LocalCursor) Move(textId string, cursorIndex, selectionStart, selectionEnd int) {
	if textId == "" {
		return
	}

	c.mu.Lock()
	prev := c.lastTextId
	c.lastTextId = textId
	c.mu.Unlock()

	if prev != "" && prev != textId {
		c.send(Update{TextId: prev, IsActive: false})
	}

	c.throttle.Schedule(Update{
		TextId:         textId,
		CursorIndex:    cursorIndex,
		SelectionStart: selectionStart,
		SelectionEnd:   selectionEnd,
		IsActive:       true,
	})
}

// End drops any pending update and sends an inactive message for the block
// being edited.
func (c *LocalCursor) End() {
	c.throttle.Cancel()

	c.mu.Lock()
	prev := c.lastTextId
	c.lastTextId = ""
	c.mu.Unlock()

	if prev != "" {
		c.send(Update{TextId: prev, IsActive: false})
	}
}

func (c *LocalCursor) TextId() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTextId
}

func (c *LocalCursor) Stop() {
	c.throttle.Stop()
}
