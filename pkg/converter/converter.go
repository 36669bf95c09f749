// Package converter runs the voxel-to-atlas pipeline: open the density and
// flames fields, resolve their shared bounding box, project both into per-z
// slices, pack the slices into atlas rows and write the bitmap.
package converter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"vdbtexture3d/internal/models"
	"vdbtexture3d/pkg/atlas"
	"vdbtexture3d/pkg/config"
	"vdbtexture3d/pkg/volume"
)

// Params holds the conversion parameters
type Params struct {
	// Source provides the named fields
	Source volume.Source

	// OutputDir is the directory the atlas bitmap is written to
	OutputDir string

	// MaxTilesPerRow caps how many slices share one atlas row
	MaxTilesPerRow int

	// DensityField and FlamesField name the fields written to red and green
	DensityField string
	FlamesField  string

	// BBoxMetadata is the Vec3i metadata key holding each field's max corner
	BBoxMetadata string

	// OutOfBounds decides what happens to voxels outside the bounding box
	OutOfBounds atlas.BoundsPolicy

	// ScanWhenMissing derives a field's box from its voxels when the metadata is absent
	ScanWhenMissing bool

	// Verbose prints per-field statistics and layout details
	Verbose bool

	// Log receives progress output; nil means stdout
	Log io.Writer
}

// ParamsFromConfig builds conversion parameters from a loaded configuration
func ParamsFromConfig(cfg *config.Config, src volume.Source) *Params {
	p := &Params{
		Source:          src,
		OutputDir:       cfg.Atlas.OutputDir,
		MaxTilesPerRow:  cfg.Atlas.MaxTilesPerRow,
		DensityField:    cfg.Fields.Density,
		FlamesField:     cfg.Fields.Flames,
		BBoxMetadata:    cfg.Fields.BBoxMetadata,
		OutOfBounds:     atlas.RejectOutOfBounds,
		ScanWhenMissing: cfg.Bounds.ScanWhenMissing,
		Verbose:         cfg.Output.Verbose,
	}
	if cfg.Bounds.OutOfBounds == config.OutOfBoundsDrop {
		p.OutOfBounds = atlas.DropOutOfBounds
	}
	return p
}

// Result describes a finished conversion
type Result struct {
	// Box is the resolved bounding box max corner
	Box models.Vec3i

	// Layout is the atlas arrangement that was written
	Layout atlas.Layout

	// OutputFile is the path of the written bitmap
	OutputFile string

	// Density and Flames report what each projection pass wrote
	Density atlas.ProjectStats
	Flames  atlas.ProjectStats
}

// Converter turns the density and flames fields of a source into a Texture3D atlas bitmap
type Converter struct {
	params *Params
	log    io.Writer
	result Result
}

// NewConverter creates a new converter instance with the provided parameters
func NewConverter(params *Params) *Converter {
	log := params.Log
	if log == nil {
		log = os.Stdout
	}
	return &Converter{params: params, log: log}
}

// Process runs the full conversion
func (c *Converter) Process() error {
	if c.params.Source == nil {
		return fmt.Errorf("no voxel source")
	}

	fmt.Fprintln(c.log, "Step 1: Opening fields...")
	density, err := c.params.Source.Field(c.params.DensityField)
	if err != nil {
		return fmt.Errorf("failed to open density field: %w", err)
	}
	flames, err := c.params.Source.Field(c.params.FlamesField)
	if err != nil {
		return fmt.Errorf("failed to open flames field: %w", err)
	}
	if c.params.Verbose {
		c.describe(density)
		c.describe(flames)
	}

	fmt.Fprintln(c.log, "Step 2: Resolving bounding box...")
	resolver := volume.BoundingBoxResolver{
		Key:             c.params.BBoxMetadata,
		ScanWhenMissing: c.params.ScanWhenMissing,
		Log:             c.log,
	}
	box := resolver.Resolve(density, flames)
	c.result.Box = box
	fmt.Fprintf(c.log, "Bounding box: (0,0,0)-%v\n", box)

	layout, err := atlas.NewLayout(box, c.params.MaxTilesPerRow)
	if err != nil {
		return fmt.Errorf("failed to lay out atlas: %w", err)
	}
	c.result.Layout = layout

	fmt.Fprintln(c.log, "Step 3: Allocating slice buffers...")
	slices, err := atlas.NewSliceSet(box)
	if err != nil {
		return fmt.Errorf("failed to allocate slices: %w", err)
	}
	defer slices.Release()
	slices.Policy = c.params.OutOfBounds
	if c.params.Verbose {
		fmt.Fprintf(c.log, "Allocated %d slices of %dx%d pixels\n", slices.Depth(), slices.Width(), slices.Height())
	}

	fmt.Fprintln(c.log, "Step 4: Projecting density into red and flames into green...")
	c.result.Density, err = c.project(slices, density, models.Red)
	if err != nil {
		return err
	}
	c.result.Flames, err = c.project(slices, flames, models.Green)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.log, "Step 5: Packing atlas...")
	if c.params.Verbose {
		order := "natural"
		if layout.Reversed() {
			order = "reversed"
		}
		fmt.Fprintf(c.log, "%d tiles, %d per row, %d rows, %s order within rows\n",
			layout.TileCount, layout.TilesPerRow, layout.RowCount, order)
		fmt.Fprintf(c.log, "Atlas size: %dx%d pixels, stride %d bytes\n",
			layout.Width(), layout.Height(), layout.Stride())
	}

	fmt.Fprintln(c.log, "Step 6: Writing bitmap...")
	outputDir := c.params.OutputDir
	if outputDir == "" {
		outputDir = "."
	}
	path := filepath.Join(outputDir, layout.Filename())
	if err := atlas.WriteFile(path, layout, slices); err != nil {
		return fmt.Errorf("failed to write atlas: %w", err)
	}
	c.result.OutputFile = path
	fmt.Fprintf(c.log, "Wrote %s (%d bytes)\n", path, layout.FileSize())

	return nil
}

// describe prints a field's backing grid size when it has one
func (c *Converter) describe(f volume.Field) {
	if d, ok := f.(volume.Dense); ok {
		size := d.Size()
		fmt.Fprintf(c.log, "Field %s: dense grid of %dx%dx%d voxels\n", f.Name(), size.X, size.Y, size.Z)
		return
	}
	fmt.Fprintf(c.log, "Field %s: sparse\n", f.Name())
}

// project writes one field into one channel and reports what happened
func (c *Converter) project(slices *atlas.SliceSet, f volume.Field, ch models.Channel) (atlas.ProjectStats, error) {
	st, err := slices.Project(f, ch)
	if err != nil {
		return st, fmt.Errorf("failed to project field %s: %w", f.Name(), err)
	}

	if c.params.Verbose {
		fmt.Fprintf(c.log, "Field %s -> %v: %v\n", f.Name(), ch, st.Values)
	}
	if st.Dropped > 0 {
		fmt.Fprintf(c.log, "Warning: dropped %d voxels of field %s outside the bounding box\n", st.Dropped, f.Name())
	}
	if st.Values.OutOfRange > 0 {
		fmt.Fprintf(c.log, "Warning: %d values of field %s are outside [0,1] and wrap when quantized\n",
			st.Values.OutOfRange, f.Name())
	}
	return st, nil
}

// GetResult returns the outcome of the last Process call
func (c *Converter) GetResult() Result {
	return c.result
}
