package inspect

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageModifier transforms an image before it is measured.
type ImageModifier interface {
	Modify(img image.Image) image.Image
}

// RegionCropper keeps the half of the frame anchored at the region's side.
type RegionCropper struct {
	Region Region
}

// Modify to implement ImageModifier interface
func (c RegionCropper) Modify(img image.Image) image.Image {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()

	switch c.Region {
	case Left:
		return imaging.CropAnchor(img, half(w), h, imaging.Left)
	case Right:
		return imaging.CropAnchor(img, half(w), h, imaging.Right)
	case Top:
		return imaging.CropAnchor(img, w, half(h), imaging.Top)
	case Bottom:
		return imaging.CropAnchor(img, w, half(h), imaging.Bottom)
	default:
		return img
	}
}

// GridResizer squashes the image onto a fixed size grid, ignoring aspect.
type GridResizer struct {
	Size int
}

// Modify to implement ImageModifier interface
func (r GridResizer) Modify(img image.Image) image.Image {
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return img
	}
	return imaging.Resize(img, r.Size, r.Size, imaging.Box)
}

// LoadImage reads the file at path and applies the modifiers in order.
func LoadImage(path string, modifiers ...ImageModifier) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}

	for _, modifier := range modifiers {
		img = modifier.Modify(img)
	}

	return img, nil
}

// Native measures images in-process with the imaging package.
type Native struct{}

func (Native) Dimensions(_ context.Context, path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func (n Native) MeanLuma(ctx context.Context, path string) (float64, error) {
	return n.RegionLuma(ctx, path, Full)
}

func (Native) RegionLuma(_ context.Context, path string, region Region) (float64, error) {
	img, err := LoadImage(path, RegionCropper{Region: region}, GridResizer{Size: GridSize})
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", path, err)
	}
	return meanLuma(img), nil
}

func meanLuma(img image.Image) float64 {
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}

	var sum uint64
	for y := 0; y < b.Dy(); y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+b.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			sum += uint64(row[x])
		}
	}
	return float64(sum) / float64(n) / 255.0
}

func half(v int) int {
	if v < 2 {
		return v
	}
	return v / 2
}
