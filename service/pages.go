package service

import (
	"context"

	"github.com/zlnvch/flipbook/book"
	"github.com/zlnvch/flipbook/models"
	"github.com/zlnvch/flipbook/store"
)

func (s *Service) bookPages(bookId string) *store.PageRepository {
	return store.NewPageRepository(s.Store, "book:"+bookId+":", book.NewBlockId)
}

func (s *Service) peerPrefs(peerId string) *store.PageRepository {
	return store.NewPageRepository(s.Store, "peer:"+peerId+":", book.NewBlockId)
}

func (s *Service) LoadBookPages(ctx context.Context, bookId string) ([]models.Page, error) {
	if err := ValidateBookId(bookId); err != nil {
		return nil, err
	}
	return s.bookPages(bookId).LoadPages(ctx), nil
}

// SaveBookPages writes immediately. It is also what the snapshot batcher
// calls on flush.
func (s *Service) SaveBookPages(ctx context.Context, bookId string, pages []models.Page) error {
	if err := ValidateBookId(bookId); err != nil {
		return err
	}
	if err := ValidatePages(pages); err != nil {
		return err
	}
	return s.bookPages(bookId).SavePages(ctx, pages)
}

// QueueBookPages validates and hands the snapshot to the batcher.
func (s *Service) QueueBookPages(bookId string, pages []models.Page) error {
	if err := ValidateBookId(bookId); err != nil {
		return err
	}
	if err := ValidatePages(pages); err != nil {
		return err
	}
	s.SnapshotBatcher.Submit(bookId, pages)
	return nil
}

func (s *Service) LoadToolPrefs(ctx context.Context, peer models.Peer) store.ToolPrefs {
	return s.peerPrefs(peer.Id).LoadToolPrefs(ctx)
}

func (s *Service) SaveToolPrefs(ctx context.Context, peer models.Peer, prefs store.ToolPrefs) error {
	if prefs.Color != "" && !hexColorRegex.MatchString(prefs.Color) {
		return errInvalidColor
	}
	return s.peerPrefs(peer.Id).SaveToolPrefs(ctx, prefs)
}
