package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"

	"github.com/zlnvch/flipbook/models"
)

const (
	PagesKey     = "diary-pages-v1"
	DefaultPages = 3

	legacyPageCountKey = "page-count"

	toolFontKey     = "tool-font"
	toolColorKey    = "tool-color"
	toolFontSizeKey = "tool-font-size"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// ToolPrefs are the last used settings of the text tool.
type ToolPrefs struct {
	Font     string `json:"font"`
	Color    string `json:"color"`
	FontSize int    `json:"fontSize"`
}

func DefaultToolPrefs() ToolPrefs {
	return ToolPrefs{Font: models.DefaultFont, Color: models.DefaultColor, FontSize: models.DefaultFontSize}
}

// PageRepository reads and writes a whole book as one JSON value. Keys are
// prefixed with a namespace so several books can share one store.
type PageRepository struct {
	kv        KeyValueStore
	namespace string
	newId     func() string
}

func NewPageRepository(kv KeyValueStore, namespace string, newId func() string) *PageRepository {
	return &PageRepository{kv: kv, namespace: namespace, newId: newId}
}

func (r *PageRepository) key(k string) string {
	return r.namespace + k
}

func (r *PageRepository) get(ctx context.Context, k string) string {
	v, err := r.kv.Get(ctx, r.key(k))
	if err != nil {
		if !errors.Is(err, ErrItemNotFound) {
			log.Printf("Failed to read %s: %v", r.key(k), err)
		}
		return ""
	}
	return v
}

// LoadPages never fails. A missing, unreadable or empty page list falls back
// to the legacy per-page keys, which in turn default to empty pages.
func (r *PageRepository) LoadPages(ctx context.Context) []models.Page {
	if stored := r.get(ctx, PagesKey); stored != "" {
		pages, err := decodePages([]byte(stored))
		if err == nil && len(pages) > 0 {
			return pages
		}
		if err != nil {
			log.Printf("Ignoring malformed page list %s: %v", r.key(PagesKey), err)
		}
	}
	return r.loadLegacy(ctx)
}

func (r *PageRepository) SavePages(ctx context.Context, pages []models.Page) error {
	if pages == nil {
		pages = []models.Page{}
	}
	out := make([]models.Page, len(pages))
	for i, p := range pages {
		if p.FrontBlocks == nil {
			p.FrontBlocks = []models.Block{}
		}
		if p.BackBlocks == nil {
			p.BackBlocks = []models.Block{}
		}
		out[i] = p
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal pages: %w", err)
	}
	if err := r.kv.Set(ctx, r.key(PagesKey), string(data)); err != nil {
		return fmt.Errorf("save pages: %w", err)
	}
	return nil
}

type storedPage struct {
	FrontBlocks json.RawMessage `json:"frontBlocks"`
	BackBlocks  json.RawMessage `json:"backBlocks"`
}

// decodePages accepts any JSON array. Pages or block lists of the wrong shape
// become empty, and individual blocks that cannot be decoded are skipped.
func decodePages(data []byte) ([]models.Page, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	pages := make([]models.Page, 0, len(raw))
	for _, rp := range raw {
		var sp storedPage
		if err := json.Unmarshal(rp, &sp); err != nil {
			pages = append(pages, models.EmptyPage())
			continue
		}
		pages = append(pages, models.Page{
			FrontBlocks: decodeBlocks(sp.FrontBlocks),
			BackBlocks:  decodeBlocks(sp.BackBlocks),
		})
	}
	return pages, nil
}

func decodeBlocks(data json.RawMessage) []models.Block {
	blocks := []models.Block{}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return blocks
	}
	for _, rb := range raw {
		var b models.Block
		if err := json.Unmarshal(rb, &b); err != nil || b.Id == "" || !b.Type.Valid() {
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks
}

func (r *PageRepository) loadLegacy(ctx context.Context) []models.Page {
	count := leadingInt(r.get(ctx, legacyPageCountKey))
	if count <= 0 {
		count = DefaultPages
	}

	pages := make([]models.Page, count)
	for i := range pages {
		pages[i] = models.Page{
			FrontBlocks: r.legacySide(ctx, i, models.SideFront),
			BackBlocks:  r.legacySide(ctx, i, models.SideBack),
		}
	}
	return pages
}

func (r *PageRepository) legacySide(ctx context.Context, index int, side models.Side) []models.Block {
	prefix := fmt.Sprintf("page-%d-%s", index, side)
	text := r.get(ctx, prefix)
	if text == "" {
		return []models.Block{}
	}

	b := models.NewTextBlock(r.newId(), 0, 0)
	b.Text = htmlTagRegex.ReplaceAllString(text, "")
	if color := r.get(ctx, prefix+"-color"); color != "" {
		b.Color = color
	}
	if font := r.get(ctx, prefix+"-font"); font != "" {
		b.Font = font
	}
	return []models.Block{b}
}

func (r *PageRepository) LoadToolPrefs(ctx context.Context) ToolPrefs {
	prefs := DefaultToolPrefs()
	if font := r.get(ctx, toolFontKey); font != "" {
		prefs.Font = font
	}
	if color := r.get(ctx, toolColorKey); color != "" {
		prefs.Color = color
	}
	if size, err := strconv.Atoi(r.get(ctx, toolFontSizeKey)); err == nil {
		prefs.FontSize = clampFontSize(size)
	}
	return prefs
}

func (r *PageRepository) SaveToolPrefs(ctx context.Context, prefs ToolPrefs) error {
	values := map[string]string{
		toolFontKey:     prefs.Font,
		toolColorKey:    prefs.Color,
		toolFontSizeKey: strconv.Itoa(clampFontSize(prefs.FontSize)),
	}
	for _, k := range []string{toolFontKey, toolColorKey, toolFontSizeKey} {
		if err := r.kv.Set(ctx, r.key(k), values[k]); err != nil {
			return fmt.Errorf("save %s: %w", k, err)
		}
	}
	return nil
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

// leadingInt parses the decimal digits at the start of s, ignoring the rest.
func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
