package worker

import (
	"context"
	"log"
	"time"

	"github.com/zlnvch/flipbook/book"
	"github.com/zlnvch/flipbook/models"
)

// PageSaver writes the full page list of one book.
type PageSaver interface {
	SaveBookPages(ctx context.Context, bookId string, pages []models.Page) error
}

type Snapshot struct {
	BookId string
	Pages  []models.Page
}

// SnapshotBatcher coalesces page-list saves. Only the most recent snapshot of
// each book submitted between two ticks is written.
type SnapshotBatcher struct {
	SubmitCh           chan Snapshot
	pageSaver          PageSaver
	tickerMilliseconds int
}

func NewSnapshotBatcher(pageSaver PageSaver, tickerMilliseconds int) *SnapshotBatcher {
	return &SnapshotBatcher{
		SubmitCh:           make(chan Snapshot, 1024), // buffer to absorb bursts
		pageSaver:          pageSaver,
		tickerMilliseconds: tickerMilliseconds,
	}
}

func (b *SnapshotBatcher) Submit(bookId string, pages []models.Page) {
	b.SubmitCh <- Snapshot{BookId: bookId, Pages: pages}
}

// Watch submits a snapshot of s after every change. The returned func stops
// watching.
func (b *SnapshotBatcher) Watch(bookId string, s *book.Store) func() {
	return s.Subscribe(func(book.Change) {
		b.Submit(bookId, s.Pages())
	})
}

func (b *SnapshotBatcher) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(time.Duration(b.tickerMilliseconds) * time.Millisecond)
	defer ticker.Stop()

	pending := make(map[string][]models.Page)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		for bookId, pages := range pending {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := b.pageSaver.SaveBookPages(ctx, bookId, pages); err != nil {
				log.Printf("Failed to save snapshot of book %s: %v", bookId, err)
			}
			cancel()
		}
		clear(pending)
	}

	for {
		select {
		case snap := <-b.SubmitCh:
			pending[snap.BookId] = snap.Pages

		case <-ticker.C:
			flush()

		case <-shutdownCtx.Done():
			// drain whatever was submitted before shutdown
		drain:
			for {
				select {
				case snap := <-b.SubmitCh:
					pending[snap.BookId] = snap.Pages
				default:
					break drain
				}
			}
			flush()
			return
		}
	}
}
