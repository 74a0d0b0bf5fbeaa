package raster

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

const pointsPerInch = 72.0

// MuPDFRenderer rasterizes with MuPDF through github.com/gen2brain/go-fitz.
type MuPDFRenderer struct{}

func (MuPDFRenderer) Render(ctx context.Context, data []byte, _ PageInfo, scale float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, ErrNoPages
	}
	img, err := doc.ImageDPI(0, pointsPerInch*scale)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSurfaceUnavailable, err)
	}
	return img, nil
}
