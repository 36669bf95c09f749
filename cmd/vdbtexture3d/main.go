package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"vdbtexture3d/pkg/config"
	"vdbtexture3d/pkg/converter"
	"vdbtexture3d/pkg/visualization"
	"vdbtexture3d/pkg/volume"
)

// exitMissingInput is the exit status when the voxel source does not exist
const exitMissingInput = 2

// errMissingInput marks a voxel source path with nothing behind it
var errMissingInput = errors.New("voxel source does not exist")

// checkInput verifies the voxel source path can be read.
// Only a missing path yields errMissingInput.
func checkInput(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", errMissingInput, path)
	} else if err != nil {
		return fmt.Errorf("failed to access voxel source: %w", err)
	}
	return nil
}

func main() {
	// Parse command line arguments
	inputPath := flag.String("input", "sample.yaml", "Voxel source manifest listing the density and flames fields")
	configPath := flag.String("config", "vdbtexture3d.yaml", "Configuration file (defaults are used if it does not exist)")
	outputDir := flag.String("output-dir", "", "Directory for the atlas bitmap (overrides config)")
	maxTiles := flag.Int("max-tiles", 0, "Maximum tiles per atlas row (overrides config)")
	extractSlices := flag.Bool("extract-slices", false, "Read the atlas back and save every slice as an image")
	slicesDir := flag.String("slices-dir", "", "Directory to save extracted slices (overrides config)")
	verbose := flag.Bool("verbose", true, "Print field statistics and layout details")
	createConfig := flag.Bool("create-config", false, "Write a default configuration file to -config and exit")
	flag.Parse()

	if *createConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to create configuration file: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	// Validate inputs
	if err := checkInput(*inputPath); errors.Is(err, errMissingInput) {
		fmt.Fprintf(os.Stderr, "Err: voxel source %q does not exist.\n", *inputPath)
		os.Exit(exitMissingInput)
	} else if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Explicit flags win over the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output-dir":
			cfg.Atlas.OutputDir = *outputDir
		case "max-tiles":
			cfg.Atlas.MaxTilesPerRow = *maxTiles
		case "extract-slices":
			cfg.Output.ExtractSlices = *extractSlices
		case "slices-dir":
			cfg.Output.SlicesDir = *slicesDir
		case "verbose":
			cfg.Output.Verbose = *verbose
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	manifest, err := volume.LoadManifest(*inputPath)
	if err != nil {
		log.Fatalf("Failed to load voxel source: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("VOXEL FIELDS TO TEXTURE3D ATLAS")
	fmt.Println("================================")
	fmt.Printf("Source: %s (fields: %v)\n", *inputPath, manifest.Names())

	params := converter.ParamsFromConfig(cfg, manifest)
	conv := converter.NewConverter(params)

	startTime := time.Now()
	if err := conv.Process(); err != nil {
		log.Fatalf("Conversion failed: %v", err)
	}
	processingTime := time.Since(startTime)

	result := conv.GetResult()
	fmt.Printf("\nConversion completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Atlas saved to: %s\n", result.OutputFile)
	fmt.Printf("- %d slices, %d per row, %d rows\n",
		result.Layout.TileCount, result.Layout.TilesPerRow, result.Layout.RowCount)
	fmt.Printf("- density voxels written: %d\n", result.Density.Written)
	fmt.Printf("- flames voxels written: %d\n", result.Flames.Written)

	if cfg.Output.ExtractSlices {
		fmt.Println("\nExtracting slices from the written atlas...")

		viewer, err := visualization.OpenAtlas(result.OutputFile, result.Layout)
		if err != nil {
			log.Fatalf("Failed to read atlas back: %v", err)
		}

		dir := cfg.Output.SlicesDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cfg.Atlas.OutputDir, dir)
		}
		if err := viewer.SaveSliceSequence(dir); err != nil {
			log.Printf("Warning: Failed to save slices: %v", err)
		} else {
			fmt.Printf("Slices saved to: %s\n", dir)
		}
	}
}
