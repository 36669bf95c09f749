package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"

	"vdbtexture3d/internal/models"
	"vdbtexture3d/pkg/atlas"
)

// Viewer reads z slices back out of a decoded atlas image
type Viewer struct {
	// img is the decoded atlas, top row first
	img image.Image

	// layout is the arrangement the atlas was written with
	layout atlas.Layout
}

// NewViewer wraps a decoded atlas image
func NewViewer(img image.Image, layout atlas.Layout) (*Viewer, error) {
	b := img.Bounds()
	if b.Dx() != layout.Width() || b.Dy() != layout.Height() {
		return nil, fmt.Errorf("atlas image is %dx%d, layout needs %dx%d",
			b.Dx(), b.Dy(), layout.Width(), layout.Height())
	}
	return &Viewer{img: img, layout: layout}, nil
}

// OpenAtlas decodes a BMP atlas file
func OpenAtlas(path string, layout atlas.Layout) (*Viewer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := bmp.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode atlas %s: %w", path, err)
	}
	return NewViewer(img, layout)
}

// atlasPoint maps voxel (x, y) of slice z to its location in the decoded image.
// Rows are stored bottom-up, so the first atlas row ends up at the bottom and
// every tile is flipped vertically.
func (v *Viewer) atlasPoint(x, y, z int) image.Point {
	l := v.layout
	b := v.img.Bounds()
	return image.Point{
		X: b.Min.X + l.TilePosition(z)*l.SliceWidth + x,
		Y: b.Min.Y + l.Height() - 1 - (l.Row(z)*l.SliceHeight + y),
	}
}

// ExtractSlice returns slice z in voxel orientation: pixel (x, y) holds voxel (x, y, z)
func (v *Viewer) ExtractSlice(z int) (*image.RGBA, error) {
	if z < 0 || z >= v.layout.TileCount {
		return nil, fmt.Errorf("slice %d outside [0, %d)", z, v.layout.TileCount)
	}

	w, h := v.layout.SliceWidth, v.layout.SliceHeight
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := v.atlasPoint(x, y, z)
			out.Set(x, y, v.img.At(p.X, p.Y))
		}
	}
	return out, nil
}

// ExtractChannel returns one channel of slice z as a grayscale image
func (v *Viewer) ExtractChannel(z int, ch models.Channel) (*image.Gray, error) {
	rgba, err := v.ExtractSlice(z)
	if err != nil {
		return nil, err
	}

	b := rgba.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := rgba.RGBAAt(x, y)
			var g uint8
			switch ch {
			case models.Red:
				g = c.R
			case models.Green:
				g = c.G
			case models.Blue:
				g = c.B
			default:
				return nil, fmt.Errorf("invalid channel %v", ch)
			}
			out.SetGray(x, y, color.Gray{Y: g})
		}
	}
	return out, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence saves the density and flames channels of every slice to outputDir
func (v *Viewer) SaveSliceSequence(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	channels := []struct {
		name string
		ch   models.Channel
	}{
		{"density", models.Red},
		{"flames", models.Green},
	}

	for z := 0; z < v.layout.TileCount; z++ {
		for _, c := range channels {
			img, err := v.ExtractChannel(z, c.ch)
			if err != nil {
				return err
			}

			filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", c.name, z))
			if err := v.SaveSlice(img, filename); err != nil {
				return err
			}
		}
	}

	return nil
}
