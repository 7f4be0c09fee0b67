package upload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zlnvch/flipbook/models"
)

var (
	ErrNotImage = errors.New("file is not an image")
	ErrTooLarge = errors.New("file is too large")
	ErrEmpty    = errors.New("file is empty")
)

// DefaultMaxBytes bounds a single upload. Data URIs end up inside the page
// list, which is stored as one value.
const DefaultMaxBytes = 5 << 20

type Mode string

const (
	ModeImage    Mode = "image"
	ModePortrait Mode = "portrait"
)

// FileReader turns uploaded files into data URIs.
type FileReader struct {
	MaxBytes int64
}

func NewFileReader() *FileReader {
	return &FileReader{MaxBytes: DefaultMaxBytes}
}

// ReadDataURI reads r fully and encodes it as a base64 data URI. The MIME type
// comes from mimeHint, then the file extension of name, then the content.
func (f *FileReader) ReadDataURI(name string, r io.Reader, mimeHint string) (string, error) {
	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if int64(len(data)) > limit {
		return "", ErrTooLarge
	}

	mimeType := detectMIME(name, data, mimeHint)
	if !strings.HasPrefix(mimeType, "image/") {
		return "", ErrNotImage
	}

	var buf bytes.Buffer
	buf.WriteString("data:")
	buf.WriteString(mimeType)
	buf.WriteString(";base64,")
	buf.WriteString(base64.StdEncoding.EncodeToString(data))
	return buf.String(), nil
}

func detectMIME(name string, data []byte, hint string) string {
	if hint != "" {
		if mt, _, err := mime.ParseMediaType(hint); err == nil {
			return mt
		}
	}
	if ext := filepath.Ext(name); ext != "" {
		if mt, _, err := mime.ParseMediaType(mime.TypeByExtension(strings.ToLower(ext))); err == nil {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

// PendingBlock is the block an upload places once the user picks a spot.
// Portrait mode wraps the photo in the default frame.
func PendingBlock(mode Mode, id, dataURI string, at models.Point) models.Block {
	if mode == ModePortrait {
		return models.NewFramedImageBlock(id, dataURI, at.X, at.Y)
	}
	return models.NewImageBlock(id, dataURI, at.X, at.Y)
}
