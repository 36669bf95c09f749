package volume

import (
	"iter"

	"vdbtexture3d/internal/models"
)

// SparseGrid is an in-memory sparse field.
// Only coordinates that were Set are active.
type SparseGrid struct {
	name   string
	values map[models.Coord]float32
	meta   metadata
}

// NewSparseGrid creates an empty sparse grid
func NewSparseGrid(name string) *SparseGrid {
	return &SparseGrid{
		name:   name,
		values: make(map[models.Coord]float32),
		meta:   make(metadata),
	}
}

// Name returns the grid's name
func (g *SparseGrid) Name() string {
	return g.name
}

// Set activates the voxel at c with value v
func (g *SparseGrid) Set(c models.Coord, v float32) {
	g.values[c] = v
}

// Len returns the number of active voxels
func (g *SparseGrid) Len() int {
	return len(g.values)
}

// SetMetadata stores a metadata value. Any type may be stored; Vec3Metadata
// reports ErrMetadataType for values that are not integer 3-vectors.
func (g *SparseGrid) SetMetadata(name string, value any) {
	g.meta[name] = value
}

// Vec3Metadata implements Field
func (g *SparseGrid) Vec3Metadata(name string) (models.Vec3i, error) {
	return g.meta.vec3(name)
}

// ActiveVoxels implements Field
func (g *SparseGrid) ActiveVoxels() iter.Seq2[models.Coord, float32] {
	return func(yield func(models.Coord, float32) bool) {
		for c, v := range g.values {
			if !yield(c, v) {
				return
			}
		}
	}
}
