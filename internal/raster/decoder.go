package raster

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/ledongthuc/pdf"
)

// Letter size in points, used when a page carries no usable MediaBox.
const (
	defaultPageWidth  = 612
	defaultPageHeight = 792
)

var ErrNoPages = errors.New("document has no pages")

// PDFDecoder reads page 1 geometry with github.com/ledongthuc/pdf.
type PDFDecoder struct{}

func (PDFDecoder) Decode(data []byte) (PageInfo, error) {
	if len(data) == 0 {
		return PageInfo{}, ErrNoPages
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return PageInfo{}, fmt.Errorf("read pdf: %w", err)
	}
	pages := reader.NumPage()
	if pages < 1 {
		return PageInfo{}, ErrNoPages
	}
	page := reader.Page(1)
	if page.V.IsNull() {
		return PageInfo{}, ErrNoPages
	}

	w, h, ok := mediaBox(page.V)
	if !ok {
		w, h = defaultPageWidth, defaultPageHeight
	}
	if rot := inheritedInt(page.V, "Rotate"); rot%180 != 0 {
		w, h = h, w
	}
	return PageInfo{Width: w, Height: h, Pages: pages}, nil
}

// mediaBox walks the page tree upward since MediaBox is inheritable.
func mediaBox(v pdf.Value) (float64, float64, bool) {
	for cur := v; !cur.IsNull(); cur = cur.Key("Parent") {
		box := cur.Key("MediaBox")
		if box.Kind() != pdf.Array || box.Len() != 4 {
			continue
		}
		w := math.Abs(box.Index(2).Float64() - box.Index(0).Float64())
		h := math.Abs(box.Index(3).Float64() - box.Index(1).Float64())
		if w > 0 && h > 0 {
			return w, h, true
		}
	}
	return 0, 0, false
}

func inheritedInt(v pdf.Value, key string) int64 {
	for cur := v; !cur.IsNull(); cur = cur.Key("Parent") {
		if val := cur.Key(key); val.Kind() == pdf.Integer {
			return val.Int64()
		}
	}
	return 0
}
