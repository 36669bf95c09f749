// Package volume exposes sparse scalar voxel fields to the atlas converter.
//
// A Field answers two questions: what Vec3i metadata does it carry, and which
// voxels are active. Backends for in-memory grids, NumPy .npy volumes and
// NIfTI-1 volumes are provided, plus a YAML manifest naming the fields of one
// source.
package volume

import (
	"errors"
	"fmt"
	"iter"
	"math"

	"vdbtexture3d/internal/models"
)

var (
	// ErrFieldNotFound is returned when a source has no field of the requested name
	ErrFieldNotFound = errors.New("field not found")

	// ErrMetadataNotFound is returned when a field carries no metadata of the requested name
	ErrMetadataNotFound = errors.New("metadata not found")

	// ErrMetadataType is returned when metadata exists but is not a 3-integer vector
	ErrMetadataType = errors.New("metadata is not a Vec3i")

	// ErrUnknownFormat is returned for manifest entries with an unsupported format
	ErrUnknownFormat = errors.New("unknown field format")
)

// Field is a sparse scalar voxel field
type Field interface {
	// Name returns the field's name in its source
	Name() string

	// Vec3Metadata looks up integer vector metadata by name.
	// It returns ErrMetadataNotFound or ErrMetadataType when no usable value exists.
	Vec3Metadata(name string) (models.Vec3i, error)

	// ActiveVoxels returns a single-use sequence over every active voxel.
	// Iteration order is unspecified.
	ActiveVoxels() iter.Seq2[models.Coord, float32]
}

// Source gives access to named fields
type Source interface {
	Field(name string) (Field, error)
}

// metadata is a free-form metadata table as decoded from YAML or set in code
type metadata map[string]any

func (m metadata) vec3(name string) (models.Vec3i, error) {
	raw, ok := m[name]
	if !ok {
		return models.Vec3i{}, fmt.Errorf("%w: %s", ErrMetadataNotFound, name)
	}
	v, err := toVec3i(raw)
	if err != nil {
		return models.Vec3i{}, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// toVec3i accepts the shapes a Vec3i can arrive in from YAML or Go callers
func toVec3i(raw any) (models.Vec3i, error) {
	switch v := raw.(type) {
	case models.Vec3i:
		return v, nil
	case [3]int:
		return models.Vec3i{X: v[0], Y: v[1], Z: v[2]}, nil
	case []int:
		if len(v) == 3 {
			return models.Vec3i{X: v[0], Y: v[1], Z: v[2]}, nil
		}
	case []any:
		if len(v) != 3 {
			break
		}
		var out [3]int
		for i, e := range v {
			n, ok := e.(int)
			if !ok {
				return models.Vec3i{}, fmt.Errorf("%w: component %d is %T", ErrMetadataType, i, e)
			}
			out[i] = n
		}
		return models.Vec3i{X: out[0], Y: out[1], Z: out[2]}, nil
	}
	return models.Vec3i{}, fmt.Errorf("%w: got %T", ErrMetadataType, raw)
}

// integral converts a float coordinate to int, rejecting fractional values
func integral(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// Dense is implemented by fields backed by a full voxel grid
type Dense interface {
	// Size returns the voxel count along each axis
	Size() models.Vec3i
}

// Fields is an in-memory Source keyed by field name
type Fields map[string]Field

// Field implements Source
func (fs Fields) Field(name string) (Field, error) {
	f, ok := fs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, name)
	}
	return f, nil
}
