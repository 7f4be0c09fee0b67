package service

import (
	"errors"
	"fmt"
	"regexp"
	"unicode"
	"unicode/utf8"

	"github.com/zlnvch/flipbook/book"
	"github.com/zlnvch/flipbook/collab"
	"github.com/zlnvch/flipbook/models"
)

var hexColorRegex = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
var bookIdRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var errInvalidColor = errors.New("invalid color")

// MaxPayloadBytes caps a single websocket frame or REST body. Image blocks
// carry their data URIs inline.
const MaxPayloadBytes = 8 << 20

const (
	maxNameLength     = 32
	maxPages          = book.MaxPages
	maxBlocksPerSide  = 200
	maxBlockIdLength  = 64
	maxTextLength     = 20000
	maxTextSegments   = 500
	maxPresenceOffset = maxTextLength
	// a 5 MiB upload is about 6.7 MiB once base64 encoded
	maxSourceLength = 7 << 20
)

func ValidateBookId(bookId string) error {
	if !bookIdRegex.MatchString(bookId) {
		return errors.New("invalid book id")
	}
	return nil
}

func ValidateName(name string) error {
	if name == "" {
		return errors.New("name must not be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return errors.New("name too long")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return errors.New("name must not contain control characters")
		}
	}
	return nil
}

// ValidateEnvelope checks a stamped envelope before it is relayed.
func ValidateEnvelope(e collab.Envelope) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if err := ValidateBookId(e.BookId); err != nil {
		return err
	}

	switch e.Type {
	case collab.TypePageUpdate:
		if e.PageUpdate.PageIndex >= maxPages {
			return errors.New("page index out of range")
		}
		return ValidateBlocks(e.PageUpdate.Blocks)
	case collab.TypePresence:
		p := e.Presence
		if len(p.TextId) > maxBlockIdLength {
			return errors.New("invalid text id")
		}
		for _, v := range []int{p.CursorIndex, p.SelectionStart, p.SelectionEnd} {
			if v < 0 || v > maxPresenceOffset {
				return errors.New("invalid cursor position")
			}
		}
	}
	return nil
}

func ValidateBlocks(blocks []models.Block) error {
	if len(blocks) > maxBlocksPerSide {
		return errors.New("too many blocks")
	}
	for _, b := range blocks {
		if b.Id == "" || len(b.Id) > maxBlockIdLength {
			return errors.New("invalid block id")
		}
		if !b.Type.Valid() {
			return fmt.Errorf("invalid block type %q", b.Type)
		}
		if len(b.Text) > maxTextLength || len(b.Segments) > maxTextSegments {
			return errors.New("text too long")
		}
		if len(b.Src) > maxSourceLength || len(b.ImageSrc) > maxSourceLength || len(b.FrameSrc) > maxSourceLength {
			return errors.New("image too large")
		}
	}
	return nil
}

func ValidatePages(pages []models.Page) error {
	if len(pages) == 0 {
		return errors.New("a book needs at least one page")
	}
	if len(pages) > maxPages {
		return errors.New("too many pages")
	}
	for _, p := range pages {
		if err := ValidateBlocks(p.FrontBlocks); err != nil {
			return err
		}
		if err := ValidateBlocks(p.BackBlocks); err != nil {
			return err
		}
	}
	return nil
}
