package volume

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"vdbtexture3d/internal/models"
)

// Field formats understood by the manifest
const (
	FormatInline = "inline"
	FormatNpy    = "npy"
	FormatNifti  = "nifti"
)

// FieldSpec describes one field of a manifest
type FieldSpec struct {
	// Format is one of "inline", "npy" or "nifti"
	Format string `yaml:"format"`

	// Path locates the field's data file, relative to the manifest
	Path string `yaml:"path,omitempty"`

	// Metadata is attached to the field as-is
	Metadata map[string]any `yaml:"metadata,omitempty"`

	// Voxels lists [x, y, z, value] entries for inline fields
	Voxels [][]float64 `yaml:"voxels,omitempty"`

	// Extent optionally narrows the region sampled from a nifti volume to the
	// origin through this corner. It defaults to the image's last voxel.
	Extent []int `yaml:"extent,omitempty"`
}

// Manifest is a YAML description of a voxel source
type Manifest struct {
	Fields map[string]FieldSpec `yaml:"fields"`

	// dir resolves relative paths
	dir string
}

// LoadManifest reads a manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}

	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("error parsing manifest %s: %w", path, err)
	}
	m.dir = filepath.Dir(path)

	return m, nil
}

// Names returns the manifest's field names in sorted order
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Field implements Source. Data files are read on every call.
func (m *Manifest) Field(name string) (Field, error) {
	spec, ok := m.Fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, name)
	}

	switch spec.Format {
	case FormatInline:
		return spec.inlineGrid(name)
	case FormatNpy:
		return LoadNpyField(name, m.resolve(spec.Path), spec.Metadata)
	case FormatNifti:
		return spec.niftiField(name, m.resolve(spec.Path))
	}
	return nil, fmt.Errorf("%w: field %s has format %q", ErrUnknownFormat, name, spec.Format)
}

func (m *Manifest) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.dir, path)
}

func (s FieldSpec) niftiField(name, path string) (*NiftiField, error) {
	if len(s.Extent) != 0 && len(s.Extent) != 3 {
		return nil, fmt.Errorf("nifti field %s: extent must have 3 components", name)
	}

	f, err := LoadNiftiField(name, path, s.Metadata)
	if err != nil {
		return nil, err
	}
	if len(s.Extent) == 3 {
		if err := f.Limit(models.Vec3i{X: s.Extent[0], Y: s.Extent[1], Z: s.Extent[2]}); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (s FieldSpec) inlineGrid(name string) (*SparseGrid, error) {
	g := NewSparseGrid(name)
	for k, v := range s.Metadata {
		g.SetMetadata(k, v)
	}

	for i, entry := range s.Voxels {
		if len(entry) != 4 {
			return nil, fmt.Errorf("field %s voxel %d: need [x, y, z, value], got %d numbers", name, i, len(entry))
		}
		var c [3]int
		for axis := 0; axis < 3; axis++ {
			n, ok := integral(entry[axis])
			if !ok {
				return nil, fmt.Errorf("field %s voxel %d: coordinate %v is not an integer", name, i, entry[axis])
			}
			c[axis] = n
		}
		g.Set(models.Coord{X: c[0], Y: c[1], Z: c[2]}, float32(entry[3]))
	}

	return g, nil
}
