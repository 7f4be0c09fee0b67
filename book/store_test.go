package book

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/flipbook/models"
)

func newTestStore(t *testing.T, pages int) (*Store, *[]Change) {
	t.Helper()
	book := make([]models.Page, pages)
	clock := int64(1000)
	s := NewStore(book, WithAuthor(sara), WithClock(func() int64 { clock++; return clock }))

	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })
	return s, &changes
}

func TestNewStore_EmptyBookGetsOnePage(t *testing.T) {
	s := NewStore(nil)
	assert.Equal(t, 1, s.PageCount())

	blocks, err := s.ListBlocks(0, models.SideFront)
	assert.NoError(t, err)
	assert.NotNil(t, blocks)
	assert.Empty(t, blocks)
}

func TestAddBlock(t *testing.T) {
	s, changes := newTestStore(t, 2)

	added, err := s.AddBlock(1, models.SideBack, models.NewStickerBlock("", "heart", "/stickers/heart.png", 10, 10))
	require.NoError(t, err)
	assert.NotEmpty(t, added.Id)

	blocks, _ := s.ListBlocks(1, models.SideBack)
	assert.Equal(t, []models.Block{added}, blocks)

	require.Len(t, *changes, 1)
	c := (*changes)[0]
	assert.Equal(t, BlocksChanged, c.Kind)
	assert.Equal(t, 1, c.PageIndex)
	assert.Equal(t, models.SideBack, c.Side)
	assert.Equal(t, OriginLocal, c.Origin)
	assert.Equal(t, blocks, c.Blocks)
}

func TestAddBlock_Errors(t *testing.T) {
	s, changes := newTestStore(t, 1)
	_, err := s.AddBlock(0, models.SideFront, models.NewTextBlock("t1", 0, 0))
	require.NoError(t, err)

	_, err = s.AddBlock(0, models.SideFront, models.NewTextBlock("t1", 0, 0))
	assert.ErrorIs(t, err, ErrDuplicateBlock)

	_, err = s.AddBlock(3, models.SideFront, models.NewTextBlock("t2", 0, 0))
	assert.ErrorIs(t, err, ErrPageNotFound)

	_, err = s.AddBlock(0, models.Side("top"), models.NewTextBlock("t3", 0, 0))
	assert.ErrorIs(t, err, ErrInvalidSide)

	_, err = s.AddBlock(0, models.SideFront, models.Block{Id: "x", Type: "video"})
	assert.ErrorIs(t, err, ErrInvalidBlockType)

	// same id on the other side is a different list
	_, err = s.AddBlock(0, models.SideBack, models.NewTextBlock("t1", 0, 0))
	assert.NoError(t, err)

	assert.Len(t, *changes, 2)
}

func TestAddBlock_SanitizesGeometry(t *testing.T) {
	s, _ := newTestStore(t, 1)
	b := models.NewImageBlock("img", "data:image/png;base64,AA", math.NaN(), math.Inf(1))
	b.W = math.NaN()
	b.H = -1

	added, err := s.AddBlock(0, models.SideFront, b)
	require.NoError(t, err)
	assert.Equal(t, models.Rect{X: 0, Y: 0, W: 180, H: 140}, added.Rect())
}

func TestUpdateBlock_ReplacesList(t *testing.T) {
	s, _ := newTestStore(t, 1)
	_, _ = s.AddBlock(0, models.SideFront, models.NewTextBlock("t1", 0, 0))
	before, _ := s.ListBlocks(0, models.SideFront)

	x := 42.0
	_, err := s.UpdateBlock(0, models.SideFront, "t1", models.BlockPatch{X: &x})
	require.NoError(t, err)

	after, _ := s.ListBlocks(0, models.SideFront)
	assert.Equal(t, 0.0, before[0].X)
	assert.Equal(t, 42.0, after[0].X)
}

func TestUpdateBlock_TextRunsSegmenter(t *testing.T) {
	s, _ := newTestStore(t, 1)
	_, _ = s.AddBlock(0, models.SideFront, models.NewTextBlock("t1", 0, 0))

	for _, text := range []string{"D", "Dear", "Dear diary"} {
		txt := text
		_, err := s.UpdateBlock(0, models.SideFront, "t1", models.BlockPatch{Text: &txt})
		require.NoError(t, err)
	}

	b, err := s.Block(0, models.SideFront, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Dear diary", b.Text)
	require.Len(t, b.Segments, 1)
	assert.Equal(t, "Sara", b.Segments[0].Username)
	assert.Equal(t, "Dear diary", b.Segments[0].Text)

	s.SetAuthor(omar)
	txt := "Dear dia"
	_, _ = s.UpdateBlock(0, models.SideFront, "t1", models.BlockPatch{Text: &txt})
	b, _ = s.Block(0, models.SideFront, "t1")
	require.Len(t, b.Segments, 1)
	assert.Equal(t, "Omar", b.Segments[0].Username)
	assert.Equal(t, "Dear dia", b.Segments[0].Text)
}

func TestUpdateBlock_SuppliedSegmentsSkipSegmenter(t *testing.T) {
	s, _ := newTestStore(t, 1)
	_, _ = s.AddBlock(0, models.SideFront, models.NewTextBlock("t1", 0, 0))

	txt := "ab"
	segs := []models.TextSegment{{Username: "Omar", Text: "a"}, {Username: "Lina", Text: "b"}}
	b, err := s.UpdateBlock(0, models.SideFront, "t1", models.BlockPatch{Text: &txt, Segments: segs})
	require.NoError(t, err)
	assert.Equal(t, segs, b.Segments)
}

func TestUpdateBlock_FontSizeClamped(t *testing.T) {
	s, _ := newTestStore(t, 1)
	_, _ = s.AddBlock(0, models.SideFront, models.NewTextBlock("t1", 0, 0))

	size := 400
	b, _ := s.UpdateBlock(0, models.SideFront, "t1", models.BlockPatch{FontSize: &size})
	assert.Equal(t, models.MaxFontSize, b.FontSize)
}

func TestUpdateBlock_Missing(t *testing.T) {
	s, changes := newTestStore(t, 1)
	_, err := s.UpdateBlock(0, models.SideFront, "nope", models.BlockPatch{})
	assert.ErrorIs(t, err, ErrBlockNotFound)
	assert.Empty(t, *changes)
}

func TestDeleteBlock(t *testing.T) {
	s, changes := newTestStore(t, 1)
	_, _ = s.AddBlock(0, models.SideFront, models.NewTextBlock("t1", 0, 0))
	_, _ = s.AddBlock(0, models.SideFront, models.NewTextBlock("t2", 0, 0))

	require.NoError(t, s.DeleteBlock(0, models.SideFront, "t1"))
	blocks, _ := s.ListBlocks(0, models.SideFront)
	require.Len(t, blocks, 1)
	assert.Equal(t, "t2", blocks[0].Id)

	assert.ErrorIs(t, s.DeleteBlock(0, models.SideFront, "t1"), ErrBlockNotFound)
	assert.Len(t, *changes, 3)
}

func TestListBlocks_ReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t, 1)
	_, _ = s.AddBlock(0, models.SideFront, models.NewTextBlock("t1", 0, 0))

	blocks, _ := s.ListBlocks(0, models.SideFront)
	blocks[0].X = 300

	again, _ := s.ListBlocks(0, models.SideFront)
	assert.Equal(t, 0.0, again[0].X)
}

func TestReplaceBlocks_Idempotent(t *testing.T) {
	s, changes := newTestStore(t, 1)
	incoming := []models.Block{
		models.NewTextBlock("t1", 10, 10),
		models.NewStickerBlock("s1", "star", "/s/star.png", 50, 50),
	}

	require.NoError(t, s.ReplaceBlocks(0, models.SideFront, incoming, OriginRemote))
	once, _ := s.ListBlocks(0, models.SideFront)

	require.NoError(t, s.ReplaceBlocks(0, models.SideFront, incoming, OriginRemote))
	twice, _ := s.ListBlocks(0, models.SideFront)

	assert.Equal(t, once, twice)
	require.Len(t, *changes, 1)
	assert.Equal(t, OriginRemote, (*changes)[0].Origin)
}

func TestReplaceBlocks_LastWriteWins(t *testing.T) {
	s, _ := newTestStore(t, 1)
	fromA := []models.Block{models.NewTextBlock("a", 0, 0)}
	fromB := []models.Block{models.NewTextBlock("b", 5, 5)}

	require.NoError(t, s.ReplaceBlocks(0, models.SideFront, fromA, OriginRemote))
	require.NoError(t, s.ReplaceBlocks(0, models.SideFront, fromB, OriginRemote))

	blocks, _ := s.ListBlocks(0, models.SideFront)
	require.Len(t, blocks, 1)
	assert.Equal(t, "b", blocks[0].Id)
}

func TestReplaceBlocks_DropsDuplicatesAndInvalid(t *testing.T) {
	s, _ := newTestStore(t, 1)
	incoming := []models.Block{
		models.NewTextBlock("t1", 0, 0),
		models.NewTextBlock("t1", 99, 99),
		{Id: "", Type: models.BlockImage},
		{Id: "v", Type: "video"},
	}

	require.NoError(t, s.ReplaceBlocks(0, models.SideFront, incoming, OriginRemote))
	blocks, _ := s.ListBlocks(0, models.SideFront)
	require.Len(t, blocks, 1)
	assert.Equal(t, 0.0, blocks[0].X)
}

func TestReplaceBlocks_UnknownPage(t *testing.T) {
	s, changes := newTestStore(t, 1)
	assert.ErrorIs(t, s.ReplaceBlocks(4, models.SideFront, nil, OriginLocal), ErrPageNotFound)
	assert.ErrorIs(t, s.ReplaceBlocks(-1, models.SideFront, nil, OriginRemote), ErrPageNotFound)
	assert.ErrorIs(t, s.ReplaceBlocks(MaxPages, models.SideFront, nil, OriginRemote), ErrPageNotFound)
	assert.ErrorIs(t, s.ReplaceBlocks(3, "top", nil, OriginRemote), ErrInvalidSide)
	assert.Equal(t, 1, s.PageCount())
	assert.Empty(t, *changes)
}

func TestReplaceBlocks_RemoteGrowsBook(t *testing.T) {
	s, changes := newTestStore(t, 1)
	incoming := []models.Block{models.NewTextBlock("t1", 0, 0)}

	require.NoError(t, s.ReplaceBlocks(2, models.SideBack, incoming, OriginRemote))
	assert.Equal(t, 3, s.PageCount())

	blocks, err := s.ListBlocks(2, models.SideBack)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "t1", blocks[0].Id)

	middle, err := s.ListBlocks(1, models.SideFront)
	require.NoError(t, err)
	assert.Empty(t, middle)

	require.Len(t, *changes, 3)
	assert.Equal(t, Change{Kind: PageAdded, PageIndex: 1, Origin: OriginRemote}, (*changes)[0])
	assert.Equal(t, Change{Kind: PageAdded, PageIndex: 2, Origin: OriginRemote}, (*changes)[1])
	assert.Equal(t, BlocksChanged, (*changes)[2].Kind)
	assert.Equal(t, OriginRemote, (*changes)[2].Origin)
}

func TestStore_NotificationsFollowApplyOrder(t *testing.T) {
	s := NewStore(make([]models.Page, 1))
	_, err := s.AddBlock(0, models.SideFront, models.NewStickerBlock("a", "star", "/s/star.png", 0, 0))
	require.NoError(t, err)
	_, err = s.AddBlock(0, models.SideFront, models.NewStickerBlock("b", "star", "/s/star.png", 0, 0))
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var last []models.Block
	held := false
	s.Subscribe(func(c Change) {
		mu.Lock()
		first := !held
		held = true
		mu.Unlock()
		if first {
			close(entered)
			<-release
		}
		mu.Lock()
		last = c.Blocks
		mu.Unlock()
	})

	x10, x20 := 10.0, 20.0
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.UpdateBlock(0, models.SideFront, "a", models.BlockPatch{X: &x10})
	}()
	<-entered

	// the second update waits for the first notification to finish
	second := make(chan struct{})
	go func() {
		defer close(second)
		s.UpdateBlock(0, models.SideFront, "b", models.BlockPatch{X: &x20})
	}()
	select {
	case <-second:
		t.Fatal("second update completed while the first was still notifying")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done
	<-second

	final, err := s.ListBlocks(0, models.SideFront)
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, final, last)
	assert.Equal(t, 10.0, last[0].X)
	assert.Equal(t, 20.0, last[1].X)
}

func TestPages_AddAndRemove(t *testing.T) {
	s, changes := newTestStore(t, 1)

	idx := s.AddPage()
	assert.Equal(t, 1, idx)
	assert.Equal(t, 2, s.PageCount())

	_, _ = s.AddBlock(1, models.SideFront, models.NewTextBlock("keep", 0, 0))
	require.NoError(t, s.RemovePage(0))
	assert.Equal(t, 1, s.PageCount())

	blocks, _ := s.ListBlocks(0, models.SideFront)
	require.Len(t, blocks, 1)
	assert.Equal(t, "keep", blocks[0].Id)

	assert.ErrorIs(t, s.RemovePage(0), ErrLastPage)
	assert.ErrorIs(t, s.RemovePage(5), ErrPageNotFound)

	kinds := []ChangeKind{}
	for _, c := range *changes {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []ChangeKind{PageAdded, BlocksChanged, PageRemoved}, kinds)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	s := NewStore(nil)
	calls := 0
	stop := s.Subscribe(func(Change) { calls++ })

	s.AddPage()
	stop()
	s.AddPage()

	assert.Equal(t, 1, calls)
}

func TestResetPages(t *testing.T) {
	s, changes := newTestStore(t, 1)
	s.ResetPages([]models.Page{{FrontBlocks: []models.Block{models.NewTextBlock("t", 0, 0)}}, {}}, OriginLocal)

	assert.Equal(t, 2, s.PageCount())
	back, err := s.ListBlocks(1, models.SideBack)
	assert.NoError(t, err)
	assert.NotNil(t, back)
	require.Len(t, *changes, 1)
	assert.Equal(t, PagesReset, (*changes)[0].Kind)
}
