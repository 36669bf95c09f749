package atlas

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"

	"vdbtexture3d/internal/models"
	"vdbtexture3d/pkg/volume"
)

// newLayout builds a layout with the default 24 tiles per row
func newLayout(t *testing.T, box models.Vec3i) Layout {
	t.Helper()
	l, err := NewLayout(box, 24)
	if err != nil {
		t.Fatalf("Failed to create layout for %v: %v", box, err)
	}
	return l
}

// fill projects density and flames into a new slice set
func fill(t *testing.T, box models.Vec3i, density, flames volume.Field) *SliceSet {
	t.Helper()
	s, err := NewSliceSet(box)
	if err != nil {
		t.Fatalf("Failed to create slice set: %v", err)
	}
	if density != nil {
		if _, err := s.Project(density, models.Red); err != nil {
			t.Fatalf("Failed to project density: %v", err)
		}
	}
	if flames != nil {
		if _, err := s.Project(flames, models.Green); err != nil {
			t.Fatalf("Failed to project flames: %v", err)
		}
	}
	return s
}

// encode returns the complete bitmap bytes
func encode(t *testing.T, l Layout, s *SliceSet) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := Encode(&buf, l, s); err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	return buf.Bytes()
}

// decodedAt returns the red, green and blue bytes of the decoded image at the
// location voxel (x, y) of slice z lands on
func decodedAt(img image.Image, l Layout, x, y, z int) (r, g, b byte) {
	px := l.TilePosition(z)*l.SliceWidth + x
	py := l.Height() - 1 - (l.Row(z)*l.SliceHeight + y)
	r32, g32, b32, _ := img.At(px, py).RGBA()
	return byte(r32 >> 8), byte(g32 >> 8), byte(b32 >> 8)
}

// TestLayoutProperties checks the layout formulas over a range of boxes
func TestLayoutProperties(t *testing.T) {
	for _, x := range []int{0, 1, 2, 5, 10} {
		for _, y := range []int{0, 3} {
			for z := 0; z <= 60; z++ {
				l := newLayout(t, models.Vec3i{X: x, Y: y, Z: z})

				tiles := z + 1
				wantPerRow := min(tiles, 24)
				wantRows := (tiles + 23) / 24

				if l.TilesPerRow != wantPerRow || l.RowCount != wantRows {
					t.Fatalf("box (%d,%d,%d): got %d per row x %d rows, want %d x %d",
						x, y, z, l.TilesPerRow, l.RowCount, wantPerRow, wantRows)
				}
				if l.Width() != (x+1)*wantPerRow || l.Height() != (y+1)*wantRows {
					t.Fatalf("box (%d,%d,%d): atlas %dx%d", x, y, z, l.Width(), l.Height())
				}

				stride := l.Stride()
				if stride%4 != 0 {
					t.Fatalf("box (%d,%d,%d): stride %d not a multiple of 4", x, y, z, stride)
				}
				if pad := stride - l.RowBytes(); pad < 0 || pad > 3 {
					t.Fatalf("box (%d,%d,%d): padding %d out of range", x, y, z, pad)
				}
				if l.FileSize() != 54+stride*l.Height() {
					t.Fatalf("box (%d,%d,%d): file size %d", x, y, z, l.FileSize())
				}
			}
		}
	}
}

// TestNewLayoutErrors verifies invalid inputs are rejected
func TestNewLayoutErrors(t *testing.T) {
	if _, err := NewLayout(models.Vec3i{X: 1, Y: 1, Z: 1}, 0); err == nil {
		t.Error("Expected error for zero tiles per row")
	}
	if _, err := NewLayout(models.Vec3i{X: -1, Y: 1, Z: 1}, 24); err == nil {
		t.Error("Expected error for negative box")
	}
	if _, err := NewLayout(models.Vec3i{X: 1 << 20, Y: 1 << 20, Z: 0}, 24); err == nil {
		t.Error("Expected error for an atlas that overflows the header")
	}
}

// TestTilePositionOrdering verifies natural order for one row and reversed order otherwise
func TestTilePositionOrdering(t *testing.T) {
	for _, z := range []int{0, 1, 5, 23, 24, 30, 47, 48, 100} {
		l := newLayout(t, models.Vec3i{Z: z})
		reversed := z+1 > 24
		if l.Reversed() != reversed {
			t.Errorf("z=%d: Reversed() = %v, want %v", z, l.Reversed(), reversed)
		}

		for i := 0; i < l.TileCount; i++ {
			pos := l.TilePosition(i)
			if pos < 0 || pos >= l.TilesPerRow {
				t.Fatalf("z=%d: slice %d at position %d outside the row", z, i, pos)
			}
			for j := i + 1; j < l.TileCount && l.Row(j) == l.Row(i); j++ {
				if reversed && l.TilePosition(i) <= l.TilePosition(j) {
					t.Errorf("z=%d: slice %d should be right of slice %d", z, i, j)
				}
				if !reversed && l.TilePosition(i) >= l.TilePosition(j) {
					t.Errorf("z=%d: slice %d should be left of slice %d", z, i, j)
				}
			}
		}
	}
}

// TestThirtyOneLayers covers the 31-layer, two-row scenario
func TestThirtyOneLayers(t *testing.T) {
	l := newLayout(t, models.Vec3i{X: 0, Y: 0, Z: 30})

	if l.TilesPerRow != 24 || l.RowCount != 2 {
		t.Fatalf("Expected 24 x 2 tiles, got %d x %d", l.TilesPerRow, l.RowCount)
	}
	if l.Filename() != "t3d_w24_h2.bmp" {
		t.Errorf("Unexpected filename %s", l.Filename())
	}

	want := map[int]int{0: 23, 23: 0, 24: 23, 30: 17}
	for i, pos := range want {
		if got := l.TilePosition(i); got != pos {
			t.Errorf("Slice %d at position %d, want %d", i, got, pos)
		}
	}
}

// TestTwoByTwoByTwo checks the exact bytes of the smallest two-slice atlas
func TestTwoByTwoByTwo(t *testing.T) {
	box := models.Vec3i{X: 1, Y: 1, Z: 1}
	l := newLayout(t, box)

	if l.Width() != 4 || l.Height() != 2 || l.TilesPerRow != 2 || l.RowCount != 1 {
		t.Fatalf("Unexpected layout %+v", l)
	}
	if l.Filename() != "t3d_w2_h1.bmp" {
		t.Errorf("Unexpected filename %s", l.Filename())
	}

	density := volume.NewSparseGrid("density")
	density.Set(models.Coord{X: 0, Y: 0, Z: 0}, 1.0)
	flames := volume.NewSparseGrid("flames")
	flames.Set(models.Coord{X: 1, Y: 1, Z: 1}, 0.5)

	got := encode(t, l, fill(t, box, density, flames))

	want := []byte{
		'B', 'M', 78, 0, 0, 0, 0, 0, 0, 0, 54, 0, 0, 0,
		40, 0, 0, 0, 4, 0, 0, 0, 2, 0, 0, 0, 1, 0, 24, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
		// y=0: z=0 left tile, z=1 right tile
		0, 0, 255, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		// y=1
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 127, 0,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Bitmap mismatch\n got %v\nwant %v", got, want)
	}
}

// TestHeaderFields decodes every header field
func TestHeaderFields(t *testing.T) {
	l := newLayout(t, models.Vec3i{X: 4, Y: 2, Z: 40})
	h := l.Header()
	le := binary.LittleEndian

	if len(h) != 54 {
		t.Fatalf("Expected 54 header bytes, got %d", len(h))
	}
	if string(h[0:2]) != "BM" {
		t.Errorf("Bad signature %q", h[0:2])
	}
	checks := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"file size", le.Uint32(h[2:]), uint32(l.FileSize())},
		{"reserved", le.Uint32(h[6:]), 0},
		{"pixel offset", le.Uint32(h[10:]), 54},
		{"info size", le.Uint32(h[14:]), 40},
		{"width", le.Uint32(h[18:]), uint32(l.Width())},
		{"height", le.Uint32(h[22:]), uint32(l.Height())},
		{"planes", uint32(le.Uint16(h[26:])), 1},
		{"bpp", uint32(le.Uint16(h[28:])), 24},
		{"compression", le.Uint32(h[30:]), 0},
		{"image size", le.Uint32(h[34:]), 0},
		{"x resolution", le.Uint32(h[38:]), 0},
		{"y resolution", le.Uint32(h[42:]), 0},
		{"palette", le.Uint32(h[46:]), 0},
		{"important", le.Uint32(h[50:]), 0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %d, want %d", c.name, c.got, c.want)
		}
	}
}

// TestDecodeOrientation writes atlases and reads them back with a real BMP decoder
func TestDecodeOrientation(t *testing.T) {
	boxes := []models.Vec3i{
		{X: 1, Y: 1, Z: 1},
		{X: 2, Y: 3, Z: 9},
		{X: 2, Y: 1, Z: 30},
		{X: 0, Y: 0, Z: 50},
	}

	for _, box := range boxes {
		t.Run(box.String(), func(t *testing.T) {
			l := newLayout(t, box)

			density := volume.NewSparseGrid("density")
			flames := volume.NewSparseGrid("flames")
			for z := 0; z <= box.Z; z++ {
				// One distinct marker per slice, at a slice-dependent pixel
				x, y := z%(box.X+1), (z/2)%(box.Y+1)
				density.Set(models.Coord{X: x, Y: y, Z: z}, float32(z+1)/float32(box.Z+2))
				flames.Set(models.Coord{X: box.X - x, Y: box.Y - y, Z: z}, 0.25)
			}

			data := encode(t, l, fill(t, box, density, flames))
			if len(data) != l.FileSize() {
				t.Fatalf("Encoded %d bytes, want %d", len(data), l.FileSize())
			}

			img, err := bmp.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Decoder rejected the bitmap: %v", err)
			}
			if b := img.Bounds(); b.Dx() != l.Width() || b.Dy() != l.Height() {
				t.Fatalf("Decoded %dx%d, want %dx%d", b.Dx(), b.Dy(), l.Width(), l.Height())
			}

			for c, v := range density.ActiveVoxels() {
				r, _, b := decodedAt(img, l, c.X, c.Y, c.Z)
				if r != Quantize(v) || b != 0 {
					t.Errorf("density %v: decoded red %d blue %d, want red %d", c, r, b, Quantize(v))
				}
			}
			for c := range flames.ActiveVoxels() {
				_, g, b := decodedAt(img, l, c.X, c.Y, c.Z)
				if g != Quantize(0.25) || b != 0 {
					t.Errorf("flames %v: decoded green %d blue %d, want green %d", c, g, b, Quantize(0.25))
				}
			}
		})
	}
}

// TestChannelIsolation verifies each field only touches its own channel
func TestChannelIsolation(t *testing.T) {
	box := models.Vec3i{X: 3, Y: 3, Z: 3}

	density := volume.NewSparseGrid("density")
	density.Set(models.Coord{X: 1, Y: 2, Z: 3}, 0.6)
	flames := volume.NewSparseGrid("flames")
	flames.Set(models.Coord{X: 2, Y: 1, Z: 0}, 0.8)

	s := fill(t, box, density, flames)

	if p := s.Pixel(1, 2, 3); p != [3]byte{0, 0, Quantize(0.6)} {
		t.Errorf("Density pixel = %v, want red only", p)
	}
	if p := s.Pixel(2, 1, 0); p != [3]byte{0, Quantize(0.8), 0} {
		t.Errorf("Flames pixel = %v, want green only", p)
	}

	// Everything else stays black
	for z := 0; z <= box.Z; z++ {
		for y := 0; y <= box.Y; y++ {
			for x := 0; x <= box.X; x++ {
				if (x == 1 && y == 2 && z == 3) || (x == 2 && y == 1 && z == 0) {
					continue
				}
				if p := s.Pixel(x, y, z); p != [3]byte{} {
					t.Errorf("Pixel (%d,%d,%d) = %v, want black", x, y, z, p)
				}
			}
		}
	}
}

// TestSharedPixel verifies both fields land in the same pixel without interfering
func TestSharedPixel(t *testing.T) {
	box := models.Vec3i{X: 1, Y: 1, Z: 0}
	c := models.Coord{X: 1, Y: 0, Z: 0}

	density := volume.NewSparseGrid("density")
	density.Set(c, 1)
	flames := volume.NewSparseGrid("flames")
	flames.Set(c, 0.5)

	// Order of the two passes does not matter
	a := fill(t, box, density, flames)
	b, _ := NewSliceSet(box)
	b.Project(flames, models.Green)
	b.Project(density, models.Red)

	if a.Pixel(1, 0, 0) != b.Pixel(1, 0, 0) || a.Pixel(1, 0, 0) != [3]byte{0, 127, 255} {
		t.Errorf("Got %v and %v, want [0 127 255]", a.Pixel(1, 0, 0), b.Pixel(1, 0, 0))
	}
}

// TestIdempotentEncoding verifies identical input yields identical bytes
func TestIdempotentEncoding(t *testing.T) {
	box := models.Vec3i{X: 5, Y: 4, Z: 40}
	l := newLayout(t, box)

	build := func() *volume.SparseGrid {
		g := volume.NewSparseGrid("density")
		for z := 0; z <= box.Z; z++ {
			for x := 0; x <= box.X; x++ {
				g.Set(models.Coord{X: x, Y: z % (box.Y + 1), Z: z}, float32(x)/float32(box.X))
			}
		}
		return g
	}

	first := encode(t, l, fill(t, box, build(), nil))
	second := encode(t, l, fill(t, box, build(), nil))
	if !bytes.Equal(first, second) {
		t.Error("Encoding the same input twice produced different bytes")
	}
}

// TestPartialLastRow verifies unused tiles of the last row stay black
func TestPartialLastRow(t *testing.T) {
	box := models.Vec3i{X: 0, Y: 0, Z: 30}
	l := newLayout(t, box)

	density := volume.NewSparseGrid("density")
	for z := 0; z <= box.Z; z++ {
		density.Set(models.Coord{Z: z}, 1)
	}
	data := encode(t, l, fill(t, box, density, nil))

	// Second atlas row is the second pixel row in the file
	row := data[HeaderSize+l.Stride() : HeaderSize+2*l.Stride()]
	for pos := 0; pos < 24; pos++ {
		red := row[pos*BytesPerPixel+2]
		occupied := pos >= 17
		if occupied && red != 255 {
			t.Errorf("Position %d should hold a slice", pos)
		}
		if !occupied && red != 0 {
			t.Errorf("Position %d should be black, got red %d", pos, red)
		}
	}
	// Padding bytes are zero: 24*3 = 72 is already aligned, so check stride
	if l.Stride() != 72 {
		t.Errorf("Expected stride 72, got %d", l.Stride())
	}
}

// TestRowPadding verifies the padding bytes are zero for unaligned widths
func TestRowPadding(t *testing.T) {
	box := models.Vec3i{X: 0, Y: 2, Z: 0} // 3 bytes per row, padded to 4
	l := newLayout(t, box)

	density := volume.NewSparseGrid("density")
	for y := 0; y <= box.Y; y++ {
		density.Set(models.Coord{Y: y}, 1)
	}
	data := encode(t, l, fill(t, box, density, nil))

	if l.Stride() != 4 || len(data) != 54+12 {
		t.Fatalf("Unexpected stride %d, size %d", l.Stride(), len(data))
	}
	for y := 0; y <= box.Y; y++ {
		row := data[HeaderSize+y*4 : HeaderSize+(y+1)*4]
		if !bytes.Equal(row, []byte{0, 0, 255, 0}) {
			t.Errorf("Row %d = %v, want [0 0 255 0]", y, row)
		}
	}
}

// TestDegenerateBox verifies a zero box yields a single 1x1 tile
func TestDegenerateBox(t *testing.T) {
	l := newLayout(t, models.Vec3i{})
	if l.Width() != 1 || l.Height() != 1 || l.TileCount != 1 {
		t.Fatalf("Unexpected layout %+v", l)
	}
	data := encode(t, l, fill(t, models.Vec3i{}, nil, nil))
	if len(data) != 58 {
		t.Errorf("Expected 58 bytes, got %d", len(data))
	}
	if l.Filename() != "t3d_w1_h1.bmp" {
		t.Errorf("Unexpected filename %s", l.Filename())
	}
}

// TestQuantize verifies truncation and wrap-around
func TestQuantize(t *testing.T) {
	cases := []struct {
		in   float32
		want byte
	}{
		{0, 0},
		{1, 255},
		{0.5, 127},
		{0.999, 254},
		{1.5, 126},
		{-0.5, 129},
	}
	for _, c := range cases {
		if got := Quantize(c.in); got != c.want {
			t.Errorf("Quantize(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

// TestOutOfBounds verifies both bounds policies
func TestOutOfBounds(t *testing.T) {
	box := models.Vec3i{X: 1, Y: 1, Z: 1}
	g := volume.NewSparseGrid("density")
	g.Set(models.Coord{X: 0, Y: 0, Z: 0}, 1)
	g.Set(models.Coord{X: 2, Y: 0, Z: 0}, 1)
	g.Set(models.Coord{X: 0, Y: 0, Z: -1}, 1)

	s, _ := NewSliceSet(box)
	_, err := s.Project(g, models.Red)
	var rangeErr *CoordinateRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("Expected CoordinateRangeError, got %v", err)
	}
	if rangeErr.Field != "density" || rangeErr.Box != box {
		t.Errorf("Unexpected error contents %+v", rangeErr)
	}

	s, _ = NewSliceSet(box)
	s.Policy = DropOutOfBounds
	st, err := s.Project(g, models.Red)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if st.Written != 1 || st.Dropped != 2 || st.Values.Count != 3 {
		t.Errorf("Unexpected stats %+v", st)
	}
	if s.Pixel(0, 0, 0)[2] != 255 {
		t.Error("In-bounds voxel was not written")
	}
}

// TestReleasedSet verifies a released set refuses further use
func TestReleasedSet(t *testing.T) {
	box := models.Vec3i{X: 1, Y: 1, Z: 1}
	s, _ := NewSliceSet(box)
	s.Release()

	if _, err := s.Project(volume.NewSparseGrid("density"), models.Red); !errors.Is(err, ErrReleased) {
		t.Errorf("Expected ErrReleased from Project, got %v", err)
	}
	if err := Encode(&bytes.Buffer{}, newLayout(t, box), s); !errors.Is(err, ErrReleased) {
		t.Errorf("Expected ErrReleased from Encode, got %v", err)
	}
}

// TestLayoutMismatch verifies a slice set of the wrong shape is refused
func TestLayoutMismatch(t *testing.T) {
	s, _ := NewSliceSet(models.Vec3i{X: 1, Y: 1, Z: 1})
	if err := Encode(&bytes.Buffer{}, newLayout(t, models.Vec3i{X: 2, Y: 1, Z: 1}), s); err == nil {
		t.Error("Expected error for mismatched slice set")
	}
}

// failingWriter fails every write
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

// TestWriteErrors verifies output failures surface as errors
func TestWriteErrors(t *testing.T) {
	box := models.Vec3i{X: 1, Y: 1, Z: 1}
	l := newLayout(t, box)
	s := fill(t, box, nil, nil)

	if err := Encode(failingWriter{}, l, s); err == nil {
		t.Error("Expected error from failing writer")
	}

	dir := t.TempDir()
	if err := WriteFile(filepath.Join(dir, "missing", l.Filename()), l, s); err == nil {
		t.Error("Expected error for missing output directory")
	}

	// A failed encode leaves no partial file behind
	path := filepath.Join(dir, l.Filename())
	released, _ := NewSliceSet(box)
	released.Release()
	if err := WriteFile(path, l, released); err == nil {
		t.Error("Expected error for released slice set")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected partial file to be removed, stat returned %v", err)
	}

	if err := WriteFile(path, l, s); err != nil {
		t.Fatalf("Failed to write bitmap: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Bitmap not written: %v", err)
	}
	if info.Size() != int64(l.FileSize()) {
		t.Errorf("File size %d, want %d", info.Size(), l.FileSize())
	}
}
