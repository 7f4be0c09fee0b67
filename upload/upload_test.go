package upload

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/flipbook/models"
)

// 1x1 transparent PNG
var pngBytes, _ = base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

func TestReadDataURI_SniffsContent(t *testing.T) {
	f := NewFileReader()
	uri, err := f.ReadDataURI("photo", bytes.NewReader(pngBytes), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, decoded)
}

func TestReadDataURI_HintAndExtension(t *testing.T) {
	f := NewFileReader()

	uri, err := f.ReadDataURI("photo.bin", bytes.NewReader(pngBytes), "image/webp; charset=binary")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/webp;base64,"))

	uri, err = f.ReadDataURI("photo.JPG", bytes.NewReader(pngBytes), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/jpeg;base64,"))
}

func TestReadDataURI_Rejects(t *testing.T) {
	f := &FileReader{MaxBytes: 16}

	_, err := f.ReadDataURI("notes.txt", strings.NewReader("plain words"), "")
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = f.ReadDataURI("photo.png", bytes.NewReader(nil), "")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = f.ReadDataURI("photo.png", bytes.NewReader(pngBytes), "")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestPendingBlock(t *testing.T) {
	at := models.Point{X: 12, Y: 34}

	img := PendingBlock(ModeImage, "i1", "data:image/png;base64,AA", at)
	assert.Equal(t, models.BlockImage, img.Type)
	assert.Equal(t, "data:image/png;base64,AA", img.Src)

	framed := PendingBlock(ModePortrait, "f1", "data:image/png;base64,AA", at)
	assert.Equal(t, models.BlockFramedImage, framed.Type)
	assert.Equal(t, "data:image/png;base64,AA", framed.ImageSrc)
	assert.Equal(t, models.DefaultFrameSrc, framed.FrameSrc)
	assert.Equal(t, models.Rect{X: 12, Y: 34, W: 220, H: 280}, framed.Rect())
}
