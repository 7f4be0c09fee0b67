package models

import "strings"

type BlockType string

const (
	BlockText        BlockType = "text"
	BlockSticker     BlockType = "sticker"
	BlockImage       BlockType = "image"
	BlockFramedImage BlockType = "framedImage"
)

func (t BlockType) Valid() bool {
	switch t {
	case BlockText, BlockSticker, BlockImage, BlockFramedImage:
		return true
	}
	return false
}

type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

func (s Side) Valid() bool {
	return s == SideFront || s == SideBack
}

const (
	DefaultFont     = `"Baloo Thambi 2", sans-serif`
	DefaultColor    = "#000000"
	DefaultFontSize = 16
	MinFontSize     = 10
	MaxFontSize     = 72

	DefaultFrameSrc = "/assets/frame.png"
)

// DefaultPageBounds is the editable area of one page side in pixels.
var DefaultPageBounds = Bounds{Width: 400, Height: 500}

// DefaultFrameInset matches the portrait frame artwork.
var DefaultFrameInset = FrameInset{Top: 10, Right: 10, Bottom: 30, Left: 10}

type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Bounds with a zero dimension are treated as not yet measured.
type Bounds struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b Bounds) Known() bool {
	return b.Width > 0 && b.Height > 0
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FrameInset holds percentage offsets of the photo window inside a frame.
type FrameInset struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

type TextSegment struct {
	Username  string `json:"username"`
	Color     string `json:"color"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Block is a positioned content item. Variant fields are only meaningful for
// the matching Type.
type Block struct {
	Id   string    `json:"id"`
	Type BlockType `json:"type"`
	X    float64   `json:"x"`
	Y    float64   `json:"y"`
	W    float64   `json:"w"`
	H    float64   `json:"h"`

	// text
	Text     string        `json:"text,omitempty"`
	Segments []TextSegment `json:"segments,omitempty"`
	Font     string        `json:"font,omitempty"`
	Color    string        `json:"color,omitempty"`
	FontSize int           `json:"fontSize,omitempty"`

	// sticker, image
	Src       string `json:"src,omitempty"`
	StickerId string `json:"stickerId,omitempty"`

	// framedImage
	ImageSrc   string      `json:"imageSrc,omitempty"`
	FrameSrc   string      `json:"frameSrc,omitempty"`
	FrameInset *FrameInset `json:"frameInset,omitempty"`
}

func (b Block) Rect() Rect {
	return Rect{X: b.X, Y: b.Y, W: b.W, H: b.H}
}

func (b *Block) SetRect(r Rect) {
	b.X, b.Y, b.W, b.H = r.X, r.Y, r.W, r.H
}

// Clone returns a copy that shares no slices or pointers with b.
func (b Block) Clone() Block {
	c := b
	if b.Segments != nil {
		c.Segments = append([]TextSegment(nil), b.Segments...)
	}
	if b.FrameInset != nil {
		inset := *b.FrameInset
		c.FrameInset = &inset
	}
	return c
}

// BlockPatch is a partial update. Nil fields are left untouched. A non-nil
// Segments slice is taken as already computed by the caller.
type BlockPatch struct {
	X          *float64
	Y          *float64
	W          *float64
	H          *float64
	Text       *string
	Segments   []TextSegment
	Font       *string
	Color      *string
	FontSize   *int
	Src        *string
	ImageSrc   *string
	FrameSrc   *string
	FrameInset *FrameInset
}

func RectPatch(r Rect) BlockPatch {
	return BlockPatch{X: &r.X, Y: &r.Y, W: &r.W, H: &r.H}
}

func NewTextBlock(id string, x, y float64) Block {
	return Block{
		Id: id, Type: BlockText, X: x, Y: y, W: 220, H: 90,
		Font: DefaultFont, Color: DefaultColor, FontSize: DefaultFontSize,
	}
}

func NewStickerBlock(id, stickerId, src string, x, y float64) Block {
	return Block{Id: id, Type: BlockSticker, X: x, Y: y, W: 90, H: 90, Src: src, StickerId: stickerId}
}

func NewImageBlock(id, src string, x, y float64) Block {
	return Block{Id: id, Type: BlockImage, X: x, Y: y, W: 180, H: 140, Src: src}
}

func NewFramedImageBlock(id, imageSrc string, x, y float64) Block {
	inset := DefaultFrameInset
	return Block{
		Id: id, Type: BlockFramedImage, X: x, Y: y, W: 220, H: 280,
		ImageSrc: imageSrc, FrameSrc: DefaultFrameSrc, FrameInset: &inset,
	}
}

// DefaultSize is the size a freshly inserted block of type t gets.
func DefaultSize(t BlockType) (float64, float64) {
	switch t {
	case BlockText:
		return 220, 90
	case BlockSticker:
		return 90, 90
	case BlockImage:
		return 180, 140
	case BlockFramedImage:
		return 220, 280
	}
	return 100, 100
}

type Page struct {
	FrontBlocks []Block `json:"frontBlocks"`
	BackBlocks  []Block `json:"backBlocks"`
}

func (p Page) Blocks(side Side) []Block {
	if side == SideBack {
		return p.BackBlocks
	}
	return p.FrontBlocks
}

func (p *Page) SetBlocks(side Side, blocks []Block) {
	if side == SideBack {
		p.BackBlocks = blocks
		return
	}
	p.FrontBlocks = blocks
}

func EmptyPage() Page {
	return Page{FrontBlocks: []Block{}, BackBlocks: []Block{}}
}

type PresenceEntry struct {
	UserId         string `json:"userId"`
	Name           string `json:"name"`
	Color          string `json:"color"`
	CursorIndex    int    `json:"cursorIndex"`
	SelectionStart int    `json:"selectionStart"`
	SelectionEnd   int    `json:"selectionEnd"`
	LastSeenTs     int64  `json:"lastSeenTs"`
}

type Role string

const (
	RoleOwner        Role = "owner"
	RoleCollaborator Role = "collaborator"
)

type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
)

type Collaborator struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Color    string `json:"color"`
}

type Invite struct {
	Username string       `json:"username"`
	Status   InviteStatus `json:"status"`
}

type CollabState struct {
	BookId        string         `json:"bookId"`
	Owner         string         `json:"owner"`
	Collaborators []Collaborator `json:"collaborators"`
	Invites       []Invite       `json:"invites"`
}

// Peer is one participant on a book topic.
type Peer struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

var CollabPalette = []string{
	"#BCC15B", "#57B7BC", "#FC7832", "#F0D055", "#7EC77B",
	"#7BB2FF", "#FF9EC9", "#9B7BFF", "#59D4A8", "#FFB347",
}

// ColorForName picks a stable palette color for a username. The hash is the
// 32-bit (h<<5)-h+c rolling hash over UTF-16 code units.
func ColorForName(name string) string {
	var h int32
	for _, r := range name {
		if r >= 0x10000 {
			r -= 0x10000
			h = (h << 5) - h + int32(0xD800+(r>>10))
			h = (h << 5) - h + int32(0xDC00+(r&0x3FF))
			continue
		}
		h = (h << 5) - h + int32(r)
	}
	idx := int64(h)
	if idx < 0 {
		idx = -idx
	}
	return CollabPalette[idx%int64(len(CollabPalette))]
}

// SameName compares usernames the way invites and collaborators are deduplicated.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
