// Package atlas packs the z slices of a voxel volume into a tiled 2D atlas
// and writes it as a 24-bit uncompressed BMP, the layout a Texture3D
// importer expects.
package atlas

import (
	"fmt"
	"io"
	"math"

	"vdbtexture3d/internal/models"
)

// Layout describes how slices are arranged into atlas rows
type Layout struct {
	// SliceWidth and SliceHeight are the pixel size of one tile
	SliceWidth  int
	SliceHeight int

	// TileCount is the number of z slices
	TileCount int

	// TilesPerRow is the number of tiles side by side in one atlas row
	TilesPerRow int

	// RowCount is the number of atlas rows
	RowCount int
}

// NewLayout computes the atlas layout for a bounding box whose lower corner is the origin
func NewLayout(box models.Vec3i, maxTilesPerRow int) (Layout, error) {
	if maxTilesPerRow <= 0 {
		return Layout{}, fmt.Errorf("max tiles per row must be positive, got %d", maxTilesPerRow)
	}
	if box.X < 0 || box.Y < 0 || box.Z < 0 {
		return Layout{}, fmt.Errorf("bounding box %v has a negative component", box)
	}

	l := Layout{
		SliceWidth:  box.X + 1,
		SliceHeight: box.Y + 1,
		TileCount:   box.Z + 1,
	}
	l.TilesPerRow = min(l.TileCount, maxTilesPerRow)
	l.RowCount = (l.TileCount-1)/l.TilesPerRow + 1

	// Header fields are 32 bits wide
	if int64(l.Width()) > math.MaxInt32 || int64(l.Height()) > math.MaxInt32 || int64(l.FileSize()) > math.MaxUint32 {
		return Layout{}, fmt.Errorf("atlas %dx%d is too large for a BMP file", l.Width(), l.Height())
	}

	return l, nil
}

// Width returns the atlas width in pixels
func (l Layout) Width() int {
	return l.SliceWidth * l.TilesPerRow
}

// Height returns the atlas height in pixels
func (l Layout) Height() int {
	return l.SliceHeight * l.RowCount
}

// RowBytes returns the unpadded byte length of one pixel row
func (l Layout) RowBytes() int {
	return l.Width() * BytesPerPixel
}

// Stride returns the byte length of one pixel row padded to a multiple of 4
func (l Layout) Stride() int {
	return (l.RowBytes() + 3) &^ 3
}

// PixelDataSize returns the byte length of the pixel array
func (l Layout) PixelDataSize() int {
	return l.Stride() * l.Height()
}

// FileSize returns the byte length of the encoded bitmap
func (l Layout) FileSize() int {
	return HeaderSize + l.PixelDataSize()
}

// Reversed reports whether tiles run right to left within a row.
//
// BMP stores pixel rows bottom-up, so stacked atlas rows come out vertically
// flipped. With more than one row the horizontal order inside each row is
// reversed to match. A single row keeps the natural order.
func (l Layout) Reversed() bool {
	return l.TileCount > l.TilesPerRow
}

// Row returns the atlas row holding slice i
func (l Layout) Row(i int) int {
	return i / l.TilesPerRow
}

// TilePosition returns the horizontal tile index of slice i within its row
func (l Layout) TilePosition(i int) int {
	rowStart := l.Row(i) * l.TilesPerRow
	if l.Reversed() {
		return rowStart + l.TilesPerRow - i - 1
	}
	return i - rowStart
}

// Filename returns the conventional output name t3d_w{tilesPerRow}_h{rowCount}.bmp
func (l Layout) Filename() string {
	return fmt.Sprintf("t3d_w%d_h%d.bmp", l.TilesPerRow, l.RowCount)
}

// WriteRows writes the padded pixel array, one atlas row at a time.
// Each row buffer is allocated zeroed, filled with the row's slices and
// discarded after it is written, so unused tiles of a short last row stay black.
func (l Layout) WriteRows(w io.Writer, s *SliceSet) error {
	if s.Width() != l.SliceWidth || s.Height() != l.SliceHeight || s.Depth() != l.TileCount {
		return fmt.Errorf("slice set %dx%dx%d does not match layout %dx%dx%d",
			s.Width(), s.Height(), s.Depth(), l.SliceWidth, l.SliceHeight, l.TileCount)
	}

	stride := l.Stride()
	tileBytes := l.SliceWidth * BytesPerPixel

	for rowStart := 0; rowStart < l.TileCount; rowStart += l.TilesPerRow {
		buf := make([]byte, l.SliceHeight*stride)

		for i := rowStart; i < rowStart+l.TilesPerRow && i < l.TileCount; i++ {
			slice := s.Slice(i)
			if slice == nil {
				return ErrReleased
			}

			x0 := l.TilePosition(i) * tileBytes
			for y := 0; y < l.SliceHeight; y++ {
				copy(buf[y*stride+x0:y*stride+x0+tileBytes], slice[y*tileBytes:(y+1)*tileBytes])
			}
		}

		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("failed to write atlas row %d: %w", rowStart/l.TilesPerRow, err)
		}
	}

	return nil
}
