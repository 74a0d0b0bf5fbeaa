package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"

	"golang.org/x/image/draw"

	"resumind/internal/intake"
	"resumind/internal/shared/telemetry"
)

const (
	// DefaultScale is the render multiplier applied to page 1 geometry.
	DefaultScale = 4.0

	PNGContentType = "image/png"
)

var (
	// ErrSurfaceUnavailable means no rendering surface could be acquired.
	ErrSurfaceUnavailable = errors.New("failed to acquire a rendering surface")
	// ErrEncode means the rendered page could not be encoded as PNG.
	ErrEncode = errors.New("failed to encode the rendered page as PNG")
)

// PageInfo is the geometry of the first page in PDF points.
type PageInfo struct {
	Width  float64
	Height float64
	Pages  int
}

// Decoder parses a document and reports the geometry of its first page.
type Decoder interface {
	Decode(data []byte) (PageInfo, error)
}

// Renderer rasterizes the first page of a document at the given scale.
type Renderer interface {
	Render(ctx context.Context, data []byte, page PageInfo, scale float64) (image.Image, error)
}

// Result is the outcome of a conversion. Exactly one of Image and Error is set.
type Result struct {
	Image      *intake.File
	DisplayURL string
	Error      string
}

// OK reports whether the conversion produced an image.
func (r Result) OK() bool {
	return r.Image != nil && r.Error == ""
}

// Converter turns page 1 of a PDF into a PNG.
type Converter struct {
	Decoder  Decoder
	Renderer Renderer
	Scale    float64
	// URLs, when set, receives the PNG and yields a transient display URL
	// owned by Owner under Slot.
	URLs *URLRegistry
}

// Request carries the document and optional display URL ownership.
type Request struct {
	File  *intake.File
	Owner string
	Slot  string
}

// Convert never returns an error; failures are described in Result.Error.
func (c *Converter) Convert(ctx context.Context, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("raster.convert.panic", map[string]any{"panic": fmt.Sprint(r)})
			res = failure(fmt.Errorf("%v", r))
		}
	}()

	if req.File == nil || len(req.File.Data) == 0 {
		return failure(intake.ErrNoFile)
	}
	if err := ctx.Err(); err != nil {
		return failure(err)
	}

	// The decoder may retain or mutate the buffer, so it gets its own copy.
	data := bytes.Clone(req.File.Data)

	decoder := c.Decoder
	if decoder == nil {
		decoder = PDFDecoder{}
	}
	page, err := decoder.Decode(data)
	if err != nil {
		return failure(err)
	}

	if c.Renderer == nil {
		return Result{Error: surfaceMessage}
	}
	scale := c.Scale
	if scale <= 0 {
		scale = DefaultScale
	}

	rendered, err := c.Renderer.Render(ctx, data, page, scale)
	if err != nil {
		if errors.Is(err, ErrSurfaceUnavailable) {
			return Result{Error: surfaceMessage}
		}
		return failure(err)
	}
	if rendered == nil {
		return Result{Error: surfaceMessage}
	}

	canvas := composite(rendered, page, scale)
	encoded, err := encodePNG(canvas)
	if err != nil {
		telemetry.Warn("raster.encode.failed", map[string]any{"err": err, "file_name": req.File.Name})
		return Result{Error: encodeMessage}
	}

	out := Result{
		Image: &intake.File{
			Name:        PNGName(req.File.Name),
			ContentType: PNGContentType,
			Data:        encoded,
		},
	}
	if c.URLs != nil {
		out.DisplayURL = c.URLs.Create(req.Owner, req.Slot, PNGContentType, encoded)
	}
	return out
}

var (
	surfaceMessage = "Failed to get a rendering surface for the page"
	encodeMessage  = "Failed to create an image from the rendered page"
)

func failure(err error) Result {
	return Result{Error: fmt.Sprintf("Failed to convert PDF: %v", err)}
}

// PNGName replaces a trailing .pdf (any case) with .png.
func PNGName(name string) string {
	base := name
	if len(base) >= 4 && strings.EqualFold(base[len(base)-4:], ".pdf") {
		base = base[:len(base)-4]
	}
	return base + ".png"
}

// composite paints the rendered page onto an opaque white canvas sized to
// the page geometry times scale, resampling when the sizes differ.
func composite(src image.Image, page PageInfo, scale float64) *image.RGBA {
	w := int(math.Round(page.Width * scale))
	h := int(math.Round(page.Height * scale))
	if w <= 0 || h <= 0 {
		w, h = src.Bounds().Dx(), src.Bounds().Dy()
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if src.Bounds().Dx() == w && src.Bounds().Dy() == h {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if buf.Len() == 0 {
		return nil, ErrEncode
	}
	return buf.Bytes(), nil
}
