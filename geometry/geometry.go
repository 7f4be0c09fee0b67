package geometry

import (
	"math"

	"github.com/zlnvch/flipbook/models"
)

type Size struct {
	W float64
	H float64
}

var minSizes = map[models.BlockType]Size{
	models.BlockText:        {W: 50, H: 30},
	models.BlockSticker:     {W: 30, H: 30},
	models.BlockImage:       {W: 50, H: 50},
	models.BlockFramedImage: {W: 50, H: 50},
}

// MinSize returns the smallest size a block of type t may have.
func MinSize(t models.BlockType) Size {
	if s, ok := minSizes[t]; ok {
		return s
	}
	return Size{W: 30, H: 30}
}

// Clamp keeps rect inside bounds. Position is clamped first and size is then
// clamped relative to the clamped origin. Unknown bounds return rect as is.
func Clamp(rect models.Rect, bounds models.Bounds, min Size) models.Rect {
	if !bounds.Known() {
		return rect
	}

	x := math.Max(0, math.Min(rect.X, bounds.Width-rect.W))
	y := math.Max(0, math.Min(rect.Y, bounds.Height-rect.H))
	w := math.Max(min.W, math.Min(rect.W, bounds.Width-x))
	h := math.Max(min.H, math.Min(rect.H, bounds.Height-y))

	return models.Rect{X: x, Y: y, W: w, H: h}
}

// Sanitize replaces non-finite coordinates with 0 and non-finite or
// non-positive sizes with the type default, then floors the size at the
// type minimum.
func Sanitize(rect models.Rect, t models.BlockType) models.Rect {
	if !finite(rect.X) {
		rect.X = 0
	}
	if !finite(rect.Y) {
		rect.Y = 0
	}

	defW, defH := models.DefaultSize(t)
	if !finite(rect.W) || rect.W <= 0 {
		rect.W = defW
	}
	if !finite(rect.H) || rect.H <= 0 {
		rect.H = defH
	}

	min := MinSize(t)
	rect.W = math.Max(rect.W, min.W)
	rect.H = math.Max(rect.H, min.H)
	return rect
}

// Fit sanitizes and clamps a block rect in one step.
func Fit(rect models.Rect, bounds models.Bounds, t models.BlockType) models.Rect {
	return Clamp(Sanitize(rect, t), bounds, MinSize(t))
}

// Contains reports whether inner lies within [0,width]x[0,height].
func Contains(bounds models.Bounds, inner models.Rect) bool {
	return inner.X >= 0 && inner.Y >= 0 &&
		inner.X+inner.W <= bounds.Width && inner.Y+inner.H <= bounds.Height
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
