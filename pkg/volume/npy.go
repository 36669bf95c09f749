package volume

import (
	"fmt"
	"iter"

	"github.com/kshedden/gonpy"

	"vdbtexture3d/internal/models"
)

// NpyField is a dense volume stored as a 3-dimensional NumPy array.
//
// A C-ordered array has shape [Z, Y, X]; a Fortran-ordered array has shape
// [X, Y, Z]. Both put x on the fastest-varying axis. Non-zero samples are the
// active voxels.
type NpyField struct {
	name string

	// size is the voxel count along each axis
	size models.Vec3i

	data []float64
	meta metadata
}

// LoadNpyField reads a float32 or float64 .npy file
func LoadNpyField(name, path string, meta map[string]any) (*NpyField, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open npy file %s: %w", path, err)
	}

	if len(r.Shape) != 3 {
		return nil, fmt.Errorf("npy file %s has %d dimensions, need 3", path, len(r.Shape))
	}

	var size models.Vec3i
	if r.ColumnMajor {
		size = models.Vec3i{X: r.Shape[0], Y: r.Shape[1], Z: r.Shape[2]}
	} else {
		size = models.Vec3i{X: r.Shape[2], Y: r.Shape[1], Z: r.Shape[0]}
	}

	var data []float64
	switch r.Dtype {
	case "f4":
		f32, err := r.GetFloat32()
		if err != nil {
			return nil, fmt.Errorf("failed to read npy file %s: %w", path, err)
		}
		data = make([]float64, len(f32))
		for i, v := range f32 {
			data[i] = float64(v)
		}
	case "f8":
		data, err = r.GetFloat64()
		if err != nil {
			return nil, fmt.Errorf("failed to read npy file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("npy file %s has dtype %q, need f4 or f8", path, r.Dtype)
	}

	if len(data) != size.X*size.Y*size.Z {
		return nil, fmt.Errorf("npy file %s holds %d values, shape %v needs %d",
			path, len(data), r.Shape, size.X*size.Y*size.Z)
	}

	return &NpyField{name: name, size: size, data: data, meta: metadata(meta)}, nil
}

// Name implements Field
func (f *NpyField) Name() string {
	return f.name
}

// Size returns the voxel count along each axis
func (f *NpyField) Size() models.Vec3i {
	return f.size
}

// Vec3Metadata implements Field
func (f *NpyField) Vec3Metadata(name string) (models.Vec3i, error) {
	return f.meta.vec3(name)
}

// ActiveVoxels implements Field
func (f *NpyField) ActiveVoxels() iter.Seq2[models.Coord, float32] {
	return func(yield func(models.Coord, float32) bool) {
		idx := 0
		for z := 0; z < f.size.Z; z++ {
			for y := 0; y < f.size.Y; y++ {
				for x := 0; x < f.size.X; x++ {
					v := f.data[idx]
					idx++
					if v == 0 {
						continue
					}
					if !yield(models.Coord{X: x, Y: y, Z: z}, float32(v)) {
						return
					}
				}
			}
		}
	}
}
