// Package imaging normalizes user photos into single-frame RGB JPEGs before
// they are sent to a vision model.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	// Decoders registered with image.Decode.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"golang.org/x/image/draw"

	"fuelagent/llm"
)

const (
	DefaultQuality      = 90
	DefaultMaxDimension = 2048
	jpegMIME            = "image/jpeg"
)

// Image is one normalized photo. Data is empty when the bytes were spilled
// to disk, in which case Bytes reads them back.
type Image struct {
	MIMEType string
	Data     []byte
	Path     string

	// Converted is false when the original bytes were passed through.
	Converted bool
}

func (i Image) Bytes() ([]byte, error) {
	if i.Path == "" {
		return i.Data, nil
	}
	data, err := os.ReadFile(i.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read normalized image: %w", err)
	}
	return data, nil
}

// Batch owns the normalized images of one request. Release must be called
// once the pipeline is done with them.
type Batch struct {
	Images  []Image
	Skipped int
	dir     string
}

// Parts returns the images as model prompt parts in input order.
func (b *Batch) Parts() ([]llm.Part, error) {
	parts := make([]llm.Part, 0, len(b.Images))
	for _, img := range b.Images {
		data, err := img.Bytes()
		if err != nil {
			return nil, err
		}
		parts = append(parts, llm.Image(img.MIMEType, data))
	}
	return parts, nil
}

// Release removes any spilled files. It is safe to call more than once.
func (b *Batch) Release() error {
	if b == nil || b.dir == "" {
		return nil
	}
	dir := b.dir
	b.dir = ""
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove spill dir %s: %w", dir, err)
	}
	return nil
}

type Normalizer struct {
	Quality      int
	MaxDimension int

	// SpillDir, when set, keeps normalized bytes on disk instead of in memory.
	SpillDir string
}

func NewNormalizer(quality int, spillDir string) *Normalizer {
	return &Normalizer{Quality: quality, MaxDimension: DefaultMaxDimension, SpillDir: spillDir}
}

// Normalize decodes each input, keeps the first frame, flattens it onto a
// white background and re-encodes it as JPEG. Undecodable inputs are skipped;
// inputs that decode but fail to encode are passed through unchanged.
func (n *Normalizer) Normalize(ctx context.Context, raw [][]byte) (*Batch, error) {
	b := &Batch{Images: make([]Image, 0, len(raw))}

	if n.SpillDir != "" && len(raw) > 0 {
		dir, err := os.MkdirTemp(n.SpillDir, "normalize-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create spill dir: %w", err)
		}
		b.dir = dir
	}

	for i, data := range raw {
		if err := ctx.Err(); err != nil {
			_ = b.Release()
			return nil, err
		}

		img, err := n.normalizeOne(data)
		if err != nil {
			slog.Warn("NORMALIZER: Skipping undecodable image", "index", i, "bytes", len(data), "error", err)
			b.Skipped++
			continue
		}

		if b.dir != "" {
			path := filepath.Join(b.dir, fmt.Sprintf("%03d%s", i, extension(img.MIMEType)))
			if err := os.WriteFile(path, img.Data, 0o600); err != nil {
				_ = b.Release()
				return nil, fmt.Errorf("failed to spill image %d: %w", i, err)
			}
			img.Path, img.Data = path, nil
		}
		b.Images = append(b.Images, img)
	}

	slog.Debug("NORMALIZER: Normalized batch", "inputs", len(raw), "kept", len(b.Images), "skipped", b.Skipped)
	return b, nil
}

func (n *Normalizer) normalizeOne(data []byte) (Image, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("failed to decode image: %w", err)
	}

	out, err := n.encode(flatten(src, n.maxDimension()))
	if err != nil {
		slog.Warn("NORMALIZER: Passing original bytes through", "format", format, "error", err)
		return Image{MIMEType: http.DetectContentType(data), Data: data}, nil
	}
	return Image{MIMEType: jpegMIME, Data: out, Converted: true}, nil
}

func (n *Normalizer) encode(img image.Image) ([]byte, error) {
	q := n.Quality
	if q <= 0 || q > 100 {
		q = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (n *Normalizer) maxDimension() int {
	if n.MaxDimension <= 0 {
		return DefaultMaxDimension
	}
	return n.MaxDimension
}

// flatten draws src onto an opaque white RGBA canvas, downscaling so that
// the longest side is at most maxDim.
func flatten(src image.Image, maxDim int) *image.RGBA {
	sb := src.Bounds()
	w, h := sb.Dx(), sb.Dy()
	if long := max(w, h); long > maxDim {
		w = max(1, w*maxDim/long)
		h = max(1, h*maxDim/long)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	}
	return dst
}

func extension(mime string) string {
	switch mime {
	case jpegMIME:
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ".bin"
}
