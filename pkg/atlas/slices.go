package atlas

import (
	"errors"
	"fmt"

	"vdbtexture3d/internal/models"
	"vdbtexture3d/pkg/volume"
)

// BoundsPolicy decides what Project does with voxels outside the box
type BoundsPolicy int

const (
	// RejectOutOfBounds fails the projection with a *CoordinateRangeError
	RejectOutOfBounds BoundsPolicy = iota

	// DropOutOfBounds skips the voxel and counts it
	DropOutOfBounds
)

// ErrReleased is returned when a released SliceSet is used
var ErrReleased = errors.New("slice set released")

// CoordinateRangeError reports an active voxel outside the bounding box
type CoordinateRangeError struct {
	Field string
	Coord models.Coord
	Box   models.Vec3i
}

func (e *CoordinateRangeError) Error() string {
	return fmt.Sprintf("field %s: voxel %v outside bounding box (0,0,0)-%v", e.Field, e.Coord, e.Box)
}

// Quantize converts a field value to a byte by truncating value*255.
// Values outside [0,1] are not clamped and wrap modulo 256.
func Quantize(v float32) byte {
	return byte(int64(v * 255))
}

// SliceSet holds one zeroed BGR pixel buffer per z layer of a bounding box.
// All layers share one allocation; layer z starts at z*width*height*3.
type SliceSet struct {
	box    models.Vec3i
	width  int
	height int
	depth  int
	pix    []byte

	// Policy applies to voxels outside the box
	Policy BoundsPolicy
}

// ProjectStats reports the outcome of projecting one field
type ProjectStats struct {
	// Written counts voxels stored into a slice
	Written int

	// Dropped counts voxels skipped under DropOutOfBounds
	Dropped int

	// Values summarizes every active value seen, including dropped ones
	Values volume.Stats
}

// NewSliceSet allocates box.Z+1 slices of (box.X+1) x (box.Y+1) pixels
func NewSliceSet(box models.Vec3i) (*SliceSet, error) {
	if box.X < 0 || box.Y < 0 || box.Z < 0 {
		return nil, fmt.Errorf("bounding box %v has a negative component", box)
	}

	s := &SliceSet{
		box:    box,
		width:  box.X + 1,
		height: box.Y + 1,
		depth:  box.Z + 1,
	}
	s.pix = make([]byte, s.depth*s.sliceBytes())
	return s, nil
}

// Width returns the pixel width of one slice
func (s *SliceSet) Width() int { return s.width }

// Height returns the pixel height of one slice
func (s *SliceSet) Height() int { return s.height }

// Depth returns the number of slices
func (s *SliceSet) Depth() int { return s.depth }

func (s *SliceSet) sliceBytes() int {
	return s.width * s.height * BytesPerPixel
}

// Slice returns the pixel rows of layer z, top row first, without padding.
// It returns nil once the set has been released.
func (s *SliceSet) Slice(z int) []byte {
	if s.pix == nil {
		return nil
	}
	n := s.sliceBytes()
	return s.pix[z*n : (z+1)*n : (z+1)*n]
}

// Pixel returns the blue, green and red bytes at (x, y) in layer z
func (s *SliceSet) Pixel(x, y, z int) [3]byte {
	off := s.offset(models.Coord{X: x, Y: y, Z: z})
	return [3]byte{s.pix[off], s.pix[off+1], s.pix[off+2]}
}

func (s *SliceSet) offset(c models.Coord) int {
	return c.Z*s.sliceBytes() + (c.Y*s.width+c.X)*BytesPerPixel
}

// Project writes every active voxel of f into channel ch of its slice.
// A later write to the same pixel and channel overwrites the earlier one.
func (s *SliceSet) Project(f volume.Field, ch models.Channel) (ProjectStats, error) {
	var st ProjectStats
	if s.pix == nil {
		return st, ErrReleased
	}
	if ch < models.Blue || ch > models.Red {
		return st, fmt.Errorf("invalid channel %v", ch)
	}

	var values volume.StatsAccumulator
	for c, v := range f.ActiveVoxels() {
		values.Add(float64(v))

		if !s.box.Contains(c) {
			if s.Policy == DropOutOfBounds {
				st.Dropped++
				continue
			}
			st.Values = values.Stats()
			return st, &CoordinateRangeError{Field: f.Name(), Coord: c, Box: s.box}
		}

		s.pix[s.offset(c)+int(ch)] = Quantize(v)
		st.Written++
	}

	st.Values = values.Stats()
	return st, nil
}

// Release drops the pixel memory. The set cannot be used afterwards.
func (s *SliceSet) Release() {
	s.pix = nil
}
