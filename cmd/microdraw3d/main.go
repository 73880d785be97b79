// Command microdraw3d downloads MicroDraw annotations and converts them into
// 3D edge meshes, NIfTI volumes and preview images.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"microdraw3d/internal/logging"
	"microdraw3d/pkg/config"
	"microdraw3d/pkg/mesh"
	"microdraw3d/pkg/microdraw"
	"microdraw3d/pkg/nifti"
	"microdraw3d/pkg/reconstruction"
	"microdraw3d/pkg/visualization"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config  string `name:"config" short:"c" help:"YAML configuration file" default:"microdraw3d.yaml" type:"path"`
	Verbose bool   `short:"v" help:"Enable debug logging"`
}

// setup loads the configuration and builds the logger.
func (g *Globals) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(g.Config)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Logging.Level
	if g.Verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Logging.Development || g.Verbose)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// CLI defines the command-line interface for microdraw3d.
type CLI struct {
	Globals

	Download  DownloadCmd `cmd:"" help:"Download a dataset and all its slice annotations"`
	Convert   ConvertCmd  `cmd:"" help:"Convert a dataset into an edge mesh and a volume"`
	Mesh      MeshCmd     `cmd:"" help:"Write the text edge mesh of a dataset"`
	Nifti     NiftiCmd    `cmd:"" name:"nifti" help:"Write the NIfTI volume of a dataset"`
	Preview   PreviewCmd  `cmd:"" help:"Draw all slices of a dataset into one image"`
	Slices    SlicesCmd   `cmd:"" help:"Export the slices of a NIfTI volume as images"`
	ConfigCmd ConfigGroup `cmd:"" name:"config" help:"Configuration file operations"`
}

// DownloadCmd fetches a dataset from a MicroDraw server.
type DownloadCmd struct {
	Source  string `help:"Dataset definition URL (overrides remote.source)"`
	Project string `help:"Project name (overrides remote.project)"`
	Token   string `help:"Access token (overrides remote.token)" env:"MICRODRAW_TOKEN"`
	Out     string `short:"o" help:"Output JSON file" default:"dataset.json" type:"path"`
}

func (c *DownloadCmd) Run(g *Globals) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := cfg.ClientOptions()
	if c.Token != "" {
		opts.Token = c.Token
	}
	source := firstNonEmpty(c.Source, cfg.Remote.Source)
	project := firstNonEmpty(c.Project, cfg.Remote.Project)
	if source == "" {
		return fmt.Errorf("no dataset source given: use --source or remote.source")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Downloading %s...\n", source)
	startTime := time.Now()
	ds, err := microdraw.NewClient(opts, logger).DownloadAll(ctx, source, project)
	if err != nil {
		return err
	}
	if err := microdraw.SaveDataset(c.Out, ds); err != nil {
		return err
	}

	fmt.Printf("Downloaded %d slices in %.2f seconds\n", ds.NumSlices, time.Since(startTime).Seconds())
	fmt.Printf("Dataset saved to: %s\n", c.Out)
	return nil
}

// ConvertCmd runs the full conversion and prints volume metrics.
type ConvertCmd struct {
	Dataset string `arg:"" help:"Dataset JSON file" type:"existingfile"`
	Mesh    string `help:"Output text mesh" default:"mesh.txt" type:"path"`
	Volume  string `help:"Output NIfTI volume" default:"volume.nii.gz" type:"path"`
	Region  string `help:"Only rasterize regions with this name (overrides volume.regionName)"`
	Cores   int    `help:"Number of slices rasterized in parallel (overrides volume.numCores)"`
}

func (c *ConvertCmd) Run(g *Globals) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	params := &reconstruction.Params{
		DatasetFile: c.Dataset,
		MeshFile:    c.Mesh,
		MeshScale:   cfg.MeshScale(),
		VolumeFile:  c.Volume,
		Raster:      rasterParams(cfg, c.Region, c.Cores),
	}

	reconstructor := reconstruction.NewReconstructor(params, logger)

	fmt.Println("Starting conversion...")
	startTime := time.Now()
	if err := reconstructor.Process(); err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}
	processingTime := time.Since(startTime)

	metrics := reconstructor.GetMetrics()
	fmt.Printf("\nConversion completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Edge mesh saved to: %s\n", c.Mesh)
	fmt.Printf("Volume saved to: %s\n\n", c.Volume)

	fmt.Printf("Volume Metrics:\n")
	fmt.Printf("===============\n")
	fmt.Printf("Mesh vertices / edges: %d / %d\n", metrics.Vertices, metrics.Edges)
	fmt.Printf("Regions drawn: %d\n", metrics.Regions)
	fmt.Printf("Regions skipped: %d\n", metrics.Skipped)
	fmt.Printf("Filled voxels: %d (%.2f%%)\n", metrics.FilledVoxels, 100*metrics.FilledFraction)
	fmt.Printf("Filled voxels per slice: %.1f ± %.1f\n", metrics.SliceMean, metrics.SliceStdDev)

	for _, err := range reconstructor.GetSkipped() {
		fmt.Printf("- skipped %v\n", err)
	}
	return nil
}

// MeshCmd writes the edge mesh only.
type MeshCmd struct {
	Dataset string `arg:"" help:"Dataset JSON file" type:"existingfile"`
	Out     string `short:"o" help:"Output text mesh" default:"mesh.txt" type:"path"`
}

func (c *MeshCmd) Run(g *Globals) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ds, err := microdraw.LoadDataset(c.Dataset)
	if err != nil {
		return err
	}

	m := reconstruction.NewAssembler(logger).Assemble(ds)
	if err := mesh.SaveText(c.Out, m, cfg.MeshScale()); err != nil {
		return err
	}

	fmt.Printf("Wrote %d vertices and %d edges to %s\n", len(m.Vertices), len(m.Edges), c.Out)
	return nil
}

// NiftiCmd writes the voxel volume only.
type NiftiCmd struct {
	Dataset string `arg:"" help:"Dataset JSON file" type:"existingfile"`
	Out     string `short:"o" help:"Output NIfTI volume (.nii or .nii.gz)" default:"volume.nii.gz" type:"path"`
	Region  string `help:"Only rasterize regions with this name (overrides volume.regionName)"`
	Cores   int    `help:"Number of slices rasterized in parallel (overrides volume.numCores)"`
}

func (c *NiftiCmd) Run(g *Globals) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ds, err := microdraw.LoadDataset(c.Dataset)
	if err != nil {
		return err
	}

	params := rasterParams(cfg, c.Region, c.Cores)
	result, err := reconstruction.SaveNIfTI(ds, c.Out, &params, logger)
	if err != nil {
		return err
	}

	d := result.Volume.Dims
	fmt.Printf("Wrote %dx%dx%d volume with %d regions to %s\n", d[0], d[1], d[2], result.Regions, c.Out)
	if n := len(result.Skipped); n > 0 {
		fmt.Printf("Skipped %d regions (see log)\n", n)
	}
	return nil
}

// PreviewCmd draws every slice of a dataset.
type PreviewCmd struct {
	Dataset string `arg:"" help:"Dataset JSON file" type:"existingfile"`
	Out     string `short:"o" help:"Output image (.png or .jpg)" default:"preview.png" type:"path"`
	Columns int    `help:"Tiles per row (overrides preview.columns)"`
}

func (c *PreviewCmd) Run(g *Globals) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ds, err := microdraw.LoadDataset(c.Dataset)
	if err != nil {
		return err
	}

	opts := cfg.PreviewOptions()
	if c.Columns > 0 {
		opts.Columns = c.Columns
	}

	img, err := visualization.DrawDataset(reconstruction.NewAssembler(logger).SliceRegions(ds), opts)
	if err != nil {
		return err
	}
	if err := visualization.SavePreview(img, c.Out); err != nil {
		return err
	}

	fmt.Printf("Preview of %d slices saved to: %s\n", ds.NumSlices, c.Out)
	return nil
}

// SlicesCmd exports volume slices along one or all axes.
type SlicesCmd struct {
	Volume   string `arg:"" help:"NIfTI volume (.nii or .nii.gz)" type:"existingfile"`
	Out      string `short:"o" help:"Output directory" default:"slices" type:"path"`
	Axis     string `help:"Axis to slice along" enum:"x,y,z,all" default:"all"`
	Physical bool   `help:"Stretch slices to the physical voxel aspect"`
}

func (c *SlicesCmd) Run(g *Globals) error {
	_, logger, err := g.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	vol, err := nifti.Load(c.Volume)
	if err != nil {
		return err
	}

	viewer := visualization.NewViewer(vol)
	viewer.PhysicalAspect = c.Physical

	axes := []string{c.Axis}
	if c.Axis == "all" {
		axes = []string{"x", "y", "z"}
	}
	for _, axis := range axes {
		fmt.Printf("Saving %s-axis slices to: %s\n", axis, filepath.Join(c.Out, axis))
	}
	if err := viewer.SaveAxes(axes, c.Out); err != nil {
		return fmt.Errorf("slice extraction failed: %w", err)
	}

	fmt.Println("Slice extraction completed!")
	return nil
}

// ConfigGroup contains configuration file operations.
type ConfigGroup struct {
	Init ConfigInitCmd `cmd:"" help:"Write a configuration file with default values"`
}

// ConfigInitCmd writes the default configuration to the --config path.
type ConfigInitCmd struct {
	Force bool `help:"Overwrite an existing file"`
}

func (c *ConfigInitCmd) Run(g *Globals) error {
	if _, err := os.Stat(g.Config); err == nil && !c.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", g.Config)
	}
	if err := config.CreateDefaultConfigFile(g.Config); err != nil {
		return err
	}
	fmt.Printf("Default configuration written to: %s\n", g.Config)
	return nil
}

func rasterParams(cfg *config.Config, region string, cores int) reconstruction.RasterParams {
	params := cfg.RasterParams()
	if region != "" {
		params.RegionName = region
	}
	if cores > 0 {
		params.NumCores = cores
	}
	return params
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("microdraw3d"),
		kong.Description("Convert MicroDraw slice annotations into 3D meshes and volumes"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
