package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"path"
	"strings"

	"github.com/cocdeshijie/MikaniroBytes/internal/storage"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const DefaultThumbnailSize = 256

// ImageGenerator writes bounded thumbnails of raster images.
type ImageGenerator struct {
	previews storage.Store
	size     int
}

// NewImageGenerator creates a thumbnail generator writing into the preview store.
func NewImageGenerator(previews storage.Store, size int) *ImageGenerator {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	return &ImageGenerator{previews: previews, size: size}
}

// Kind is the preview type tag, e.g. "thumbnail_256".
func (g *ImageGenerator) Kind() string {
	return fmt.Sprintf("thumbnail_%d", g.size)
}

// ThumbnailPath maps a stored file path to its thumbnail path: same directory, "<stem>_<size><ext>".
// PNG sources keep PNG; everything else becomes JPEG.
func ThumbnailPath(srcRel string, size int) (string, imaging.Format) {
	dir, name := path.Split(srcRel)
	ext := storage.Ext(name)
	stem := strings.TrimSuffix(name, path.Ext(name))
	format := imaging.JPEG
	switch ext {
	case ".png":
		format = imaging.PNG
	case ".jpg", ".jpeg":
	default:
		ext = ".jpg"
	}
	return fmt.Sprintf("%s%s_%d%s", dir, stem, size, ext), format
}

// Generate decodes srcAbs and writes a thumbnail that fits the bounding box.
func (g *ImageGenerator) Generate(ctx context.Context, srcAbs, srcRel string) (*Result, error) {
	img, err := imaging.Open(srcAbs, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	thumb := imaging.Fit(img, g.size, g.size, imaging.Lanczos)
	rel, format := ThumbnailPath(srcRel, g.size)

	var out image.Image = thumb
	if format == imaging.JPEG {
		// JPEG 没有透明通道, 铺白底
		bg := imaging.New(thumb.Bounds().Dx(), thumb.Bounds().Dy(), color.White)
		out = imaging.Overlay(bg, thumb, image.Pt(0, 0), 1.0)
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, out, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	if _, err := g.previews.Write(rel, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("write thumbnail: %w", err)
	}
	b := out.Bounds()
	return &Result{
		Kind:    g.Kind(),
		RelPath: storage.Sanitize(rel),
		Width:   b.Dx(),
		Height:  b.Dy(),
	}, nil
}
