package volume

import (
	"fmt"
	"io"

	"vdbtexture3d/internal/models"
)

// ReadVec3Metadata looks up Vec3i metadata on a field.
// A missing or mistyped value is reported to log and read as zero.
func ReadVec3Metadata(f Field, name string, log io.Writer) models.Vec3i {
	v, err := f.Vec3Metadata(name)
	if err != nil {
		logMetadataError(log, f, name, err)
		return models.Vec3i{}
	}
	return v
}

func logMetadataError(log io.Writer, f Field, name string, err error) {
	fmt.Fprintf(log, "Error: cannot get Vec3I metadata %s on field %s: %v\n", name, f.Name(), err)
}

// ScanMax walks a field's active voxels and returns the component-wise
// maximum coordinate. ok is false for a field without active voxels.
func ScanMax(f Field) (m models.Vec3i, ok bool) {
	for c := range f.ActiveVoxels() {
		if !ok {
			m, ok = c, true
			continue
		}
		m = m.Max(c)
	}
	return m, ok
}

// BoundingBoxResolver derives the shared atlas extent of several fields
type BoundingBoxResolver struct {
	// Key is the metadata name holding each field's max corner
	Key string

	// ScanWhenMissing falls back to ScanMax instead of zero
	ScanWhenMissing bool

	// Log receives lookup failures
	Log io.Writer
}

// Resolve returns the component-wise maximum of every field's max corner
func (r BoundingBoxResolver) Resolve(fields ...Field) models.Vec3i {
	log := r.Log
	if log == nil {
		log = io.Discard
	}

	var box models.Vec3i
	for i, f := range fields {
		v, err := f.Vec3Metadata(r.Key)
		if err != nil {
			logMetadataError(log, f, r.Key, err)
			v = models.Vec3i{}
			if r.ScanWhenMissing {
				if scanned, ok := ScanMax(f); ok {
					fmt.Fprintf(log, "Using scanned bounding box %v for field %s\n", scanned, f.Name())
					v = scanned
				}
			}
		}
		if i == 0 {
			box = v
		} else {
			box = box.Max(v)
		}
	}
	return box
}
