package volume

import (
	"fmt"
	"iter"
	"math"
	"os"

	"github.com/KyungWonPark/nifti"

	"vdbtexture3d/internal/models"
)

// niftiMagic marks a single-file NIfTI-1 image, header and data together
var niftiMagic = [4]byte{'n', '+', '1', 0}

// NiftiField samples time point 0 of a NIfTI-1 volume.
// The sampled region spans from the origin to extent (inclusive), the image's
// last voxel unless narrowed with Limit. Non-zero samples are the active voxels.
type NiftiField struct {
	name string
	img  nifti.Nifti1Image

	// size is the voxel count along each axis, from the image header
	size   models.Vec3i
	extent models.Vec3i
	meta   metadata
}

// LoadNiftiField reads a .nii or .nii.gz file into memory
func LoadNiftiField(name, path string, meta map[string]any) (*NiftiField, error) {
	// The loader does not report a missing file itself
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open nifti file %s: %w", path, err)
	}

	f := &NiftiField{name: name, meta: metadata(meta)}
	if err := loadNiftiImage(&f.img, path); err != nil {
		return nil, err
	}

	header := f.img.GetHeader()
	if header.Magic != niftiMagic {
		return nil, fmt.Errorf("%s is not a single-file NIfTI-1 image", path)
	}
	if header.Bitpix == 0 {
		return nil, fmt.Errorf("nifti file %s declares no voxel bit width", path)
	}

	dims := f.img.GetDims()
	for axis, n := range dims[:3] {
		if n <= 0 || n > math.MaxInt16 {
			return nil, fmt.Errorf("nifti file %s has invalid dimension %d on axis %d", path, n, axis)
		}
	}
	f.size = models.Vec3i{X: dims[0], Y: dims[1], Z: dims[2]}
	f.extent = models.Vec3i{X: f.size.X - 1, Y: f.size.Y - 1, Z: f.size.Z - 1}

	// Every in-range index is below the last voxel's
	if _, err := f.sample(f.extent); err != nil {
		return nil, fmt.Errorf("nifti file %s is truncated: %w", path, err)
	}

	return f, nil
}

// loadNiftiImage reads header and data, reporting the loader's panics on
// malformed input as errors
func loadNiftiImage(img *nifti.Nifti1Image, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed nifti file %s: %v", path, r)
		}
	}()
	img.LoadImage(path, true)
	return nil
}

// sample reads voxel c at time point 0
func (f *NiftiField) sample(c models.Coord) (v float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("voxel %v lies past the end of the image data", c)
		}
	}()
	return f.img.GetAt(uint32(c.X), uint32(c.Y), uint32(c.Z), 0), nil
}

// Name implements Field
func (f *NiftiField) Name() string {
	return f.name
}

// Size returns the voxel count along each axis
func (f *NiftiField) Size() models.Vec3i {
	return f.size
}

// Limit narrows the sampled region to the origin through extent.
// The extent may not reach past the image's last voxel.
func (f *NiftiField) Limit(extent models.Vec3i) error {
	last := models.Vec3i{X: f.size.X - 1, Y: f.size.Y - 1, Z: f.size.Z - 1}
	if !last.Contains(extent) {
		return fmt.Errorf("nifti field %s: extent %v outside image (0,0,0)-%v", f.name, extent, last)
	}
	f.extent = extent
	return nil
}

// Vec3Metadata implements Field
func (f *NiftiField) Vec3Metadata(name string) (models.Vec3i, error) {
	return f.meta.vec3(name)
}

// ActiveVoxels implements Field
func (f *NiftiField) ActiveVoxels() iter.Seq2[models.Coord, float32] {
	return func(yield func(models.Coord, float32) bool) {
		for z := 0; z <= f.extent.Z; z++ {
			for y := 0; y <= f.extent.Y; y++ {
				for x := 0; x <= f.extent.X; x++ {
					v := f.img.GetAt(uint32(x), uint32(y), uint32(z), 0)
					if v == 0 {
						continue
					}
					if !yield(models.Coord{X: x, Y: y, Z: z}, v) {
						return
					}
				}
			}
		}
	}
}
