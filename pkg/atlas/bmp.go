package atlas

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	// BytesPerPixel is the size of one BGR pixel, no alpha
	BytesPerPixel = 3

	FileHeaderSize = 14
	InfoHeaderSize = 40
	HeaderSize     = FileHeaderSize + InfoHeaderSize
)

// Header returns the 54-byte BMP file and info headers for l
func (l Layout) Header() []byte {
	h := make([]byte, HeaderSize)
	le := binary.LittleEndian

	// BITMAPFILEHEADER
	h[0], h[1] = 'B', 'M'
	le.PutUint32(h[2:], uint32(l.FileSize()))
	// h[6:10] reserved
	le.PutUint32(h[10:], HeaderSize)

	// BITMAPINFOHEADER
	info := h[FileHeaderSize:]
	le.PutUint32(info[0:], InfoHeaderSize)
	le.PutUint32(info[4:], uint32(int32(l.Width())))
	le.PutUint32(info[8:], uint32(int32(l.Height()))) // positive: bottom-up rows
	le.PutUint16(info[12:], 1)                        // color planes
	le.PutUint16(info[14:], BytesPerPixel*8)
	// compression, image size, resolution and palette fields stay zero

	return h
}

// Encode writes the complete bitmap for the slices in s to w
func Encode(w io.Writer, l Layout, s *SliceSet) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.Write(l.Header()); err != nil {
		return fmt.Errorf("failed to write bitmap header: %w", err)
	}
	if err := l.WriteRows(bw, s); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush bitmap: %w", err)
	}

	return nil
}

// WriteFile encodes the bitmap into a new file at path.
// A partially written file is removed when encoding fails.
func WriteFile(path string, l Layout, s *SliceSet) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create bitmap file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close bitmap file: %w", cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	return Encode(f, l, s)
}
