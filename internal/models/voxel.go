package models

import "fmt"

// Vec3i is an integer 3-vector, used for voxel coordinates and bounding box corners
type Vec3i struct {
	X, Y, Z int
}

// Max returns the component-wise maximum of v and o
func (v Vec3i) Max(o Vec3i) Vec3i {
	return Vec3i{X: max(v.X, o.X), Y: max(v.Y, o.Y), Z: max(v.Z, o.Z)}
}

// Contains reports whether c lies inside the box spanning from the origin to v (inclusive)
func (v Vec3i) Contains(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.Z >= 0 &&
		c.X <= v.X && c.Y <= v.Y && c.Z <= v.Z
}

func (v Vec3i) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}

// Coord is the integer index of a single voxel
type Coord = Vec3i

// Channel selects one byte of a 24-bit BGR pixel
type Channel int

const (
	Blue Channel = iota
	Green
	Red
)

func (c Channel) String() string {
	switch c {
	case Blue:
		return "blue"
	case Green:
		return "green"
	case Red:
		return "red"
	}
	return fmt.Sprintf("channel(%d)", int(c))
}
