package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/osio/gcs"
	"github.com/alessio/shellescape"
	"github.com/caarlos0/env/v11"
	shellwords "github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	adst "go.airbusds-geo.com/gcp/storage"
	"go.airbusds-geo.com/log"
	"sigs.k8s.io/yaml"

	"github.com/cran/gfcanalysis"
)

type envConfig struct {
	DataFolder string `env:"GFC_DATA_FOLDER"`
	Dataset    string `env:"GFC_DATASET" envDefault:"GFC-2023-v1.11"`
}

// job mirrors the extract flags so one pipeline call can be described in a
// YAML file passed with --config. Explicit flags win over file values.
type job struct {
	AOI          string  `json:"aoi"`
	EPSG         int     `json:"epsg"`
	Stack        string  `json:"stack"`
	Dataset      string  `json:"dataset"`
	Folder       string  `json:"folder"`
	UTM          bool    `json:"utm"`
	Rescale      bool    `json:"rescale"`
	Tolerance    float64 `json:"tolerance"`
	Out          string  `json:"out"`
	Overwrite    bool    `json:"overwrite"`
	Compression  string  `json:"compression"`
	COG          bool    `json:"cog"`
	WarpSwitches string  `json:"warpSwitches"`
	Workers      int     `json:"workers"`
}

var (
	cfg             envConfig
	verbose         bool
	blocksize       string
	numCachedBlocks int
	startTime       time.Time
	gcsRegistered   bool
	adstcl          *adst.Client

	jobFile string
	run     job
)

var rootCmd = &cobra.Command{
	Use:   "gfcexport",
	Short: "extract forest change rasters for an area of interest",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		startTime = time.Now()
		if !verbose {
			os.Setenv("LOGLEVEL", "info")
			log.Structured()
		}
		if err := env.Parse(&cfg); err != nil {
			return fmt.Errorf("env config: %w", err)
		}
		godal.RegisterAll()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		log.Logger(cmd.Context()).Sugar().Debugf("command %s took %.1fs",
			cmd.Name(), time.Since(startTime).Seconds())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&blocksize, "blocksize", "512k", "gs cache blocksize")
	rootCmd.PersistentFlags().IntVar(&numCachedBlocks, "numblocks", 1000, "number of gs cached blocks")
	rootCmd.AddCommand(extractCmd, tilesCmd)

	for _, cmd := range []*cobra.Command{extractCmd, tilesCmd} {
		cmd.Flags().StringVar(&run.AOI, "aoi", "", "aoi file (geojson, or wkt polygon)")
		cmd.Flags().IntVar(&run.EPSG, "epsg", 4326, "epsg code of the aoi CRS")
		cmd.Flags().StringVar(&run.Stack, "stack", "change", "product stack: change, first or last")
		cmd.Flags().StringVar(&run.Dataset, "dataset", "", "dataset version tag (default from GFC_DATASET)")
		cmd.Flags().StringVar(&run.Folder, "folder", "", "tile data folder, local or gs:// (default from GFC_DATA_FOLDER)")
	}

	extractCmd.Flags().BoolVar(&run.UTM, "utm", false, "reproject to the local UTM zone")
	extractCmd.Flags().BoolVar(&run.Rescale, "rescale", false, "rescale reflectance composites to physical values")
	extractCmd.Flags().Float64Var(&run.Tolerance, "tolerance", gfcanalysis.DefaultTolerance, "mosaic grid alignment tolerance, pixel fraction")
	extractCmd.Flags().StringVar(&run.Out, "out", "", "output geotiff path")
	extractCmd.Flags().BoolVar(&run.Overwrite, "overwrite", false, "overwrite an existing output file")
	extractCmd.Flags().StringVar(&run.Compression, "compression", "lzw", "output compression: lzw, deflate or none")
	extractCmd.Flags().BoolVar(&run.COG, "cog", false, "restructure the output as a cloud-optimized geotiff")
	extractCmd.Flags().StringVar(&run.WarpSwitches, "warpSwitches", "", "extra gdalwarp switches, e.g. \"-tr 30 30 -tap\"")
	extractCmd.Flags().IntVar(&run.Workers, "workers", 0, "parallel tile loads (0 = default)")
	extractCmd.Flags().StringVar(&jobFile, "config", "", "yaml job file providing defaults for the flags above")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// mergeJobFile fills every flag the user did not set explicitly from the
// yaml job file.
func mergeJobFile(cmd *cobra.Command) error {
	if jobFile == "" {
		return nil
	}
	raw, err := os.ReadFile(jobFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", jobFile, err)
	}
	var fromFile job
	if err := yaml.Unmarshal(raw, &fromFile); err != nil {
		return fmt.Errorf("parse %s: %w", jobFile, err)
	}
	flags := cmd.Flags()
	if !flags.Changed("aoi") && fromFile.AOI != "" {
		run.AOI = fromFile.AOI
	}
	if !flags.Changed("epsg") && fromFile.EPSG != 0 {
		run.EPSG = fromFile.EPSG
	}
	if !flags.Changed("stack") && fromFile.Stack != "" {
		run.Stack = fromFile.Stack
	}
	if !flags.Changed("dataset") && fromFile.Dataset != "" {
		run.Dataset = fromFile.Dataset
	}
	if !flags.Changed("folder") && fromFile.Folder != "" {
		run.Folder = fromFile.Folder
	}
	if !flags.Changed("utm") {
		run.UTM = run.UTM || fromFile.UTM
	}
	if !flags.Changed("rescale") {
		run.Rescale = run.Rescale || fromFile.Rescale
	}
	if !flags.Changed("tolerance") && fromFile.Tolerance != 0 {
		run.Tolerance = fromFile.Tolerance
	}
	if !flags.Changed("out") && fromFile.Out != "" {
		run.Out = fromFile.Out
	}
	if !flags.Changed("overwrite") {
		run.Overwrite = run.Overwrite || fromFile.Overwrite
	}
	if !flags.Changed("compression") && fromFile.Compression != "" {
		run.Compression = fromFile.Compression
	}
	if !flags.Changed("cog") {
		run.COG = run.COG || fromFile.COG
	}
	if !flags.Changed("warpSwitches") && fromFile.WarpSwitches != "" {
		run.WarpSwitches = fromFile.WarpSwitches
	}
	if !flags.Changed("workers") && fromFile.Workers != 0 {
		run.Workers = fromFile.Workers
	}
	return nil
}

func (j *job) applyEnvDefaults() {
	if j.Folder == "" {
		j.Folder = cfg.DataFolder
	}
	if j.Dataset == "" {
		j.Dataset = cfg.Dataset
	}
}

// registerGCS plugs a gs:// VSI handler into gdal when any path needs it.
func registerGCS(ctx context.Context, paths ...string) error {
	if gcsRegistered {
		return nil
	}
	needed := false
	for _, p := range paths {
		if strings.HasPrefix(p, "gs://") {
			needed = true
			break
		}
	}
	if !needed {
		return nil
	}
	stcl, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("storage.newclient: %w", err)
	}
	if adstcl, err = adst.New(ctx, adst.WithStorageClient(stcl)); err != nil {
		return fmt.Errorf("ads storage.new: %w", err)
	}
	gcsh, err := gcs.Handle(ctx, gcs.GCSClient(stcl))
	if err != nil {
		return fmt.Errorf("gcs.handle: %w", err)
	}
	gcsa, err := osio.NewAdapter(gcsh, osio.BlockSize(blocksize), osio.NumCachedBlocks(numCachedBlocks))
	if err != nil {
		return fmt.Errorf("osio.new: %w", err)
	}
	if err := godal.RegisterVSIHandler("gs://", gcsa); err != nil {
		return fmt.Errorf("register osio: %w", err)
	}
	gcsRegistered = true
	return nil
}

func loadAOI(j *job) (*gfcanalysis.AOI, error) {
	if j.AOI == "" {
		return nil, fmt.Errorf("--aoi is required")
	}
	raw, err := os.ReadFile(j.AOI)
	if err != nil {
		return nil, fmt.Errorf("read aoi %s: %w", j.AOI, err)
	}
	doc := strings.TrimSpace(string(raw))
	if strings.HasPrefix(doc, "POLYGON") || strings.HasPrefix(doc, "MULTIPOLYGON") {
		return gfcanalysis.NewAOIFromWKT(doc, j.EPSG)
	}
	return gfcanalysis.NewAOI([]byte(doc), j.EPSG)
}

// warpSwitchList parses the user-supplied gdalwarp switches and rejects the
// ones the pipeline owns.
func warpSwitchList(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	switches, err := shellwords.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse warp switches: %w", err)
	}
	for _, sw := range switches {
		switch sw {
		case "-t_srs", "-r", "-srcnodata", "-dstnodata", "-of", "-te_srs":
			return nil, fmt.Errorf("%s switch not allowed", sw)
		}
	}
	return switches, nil
}

func parseCompression(s string) (gfcanalysis.Compression, error) {
	switch strings.ToLower(s) {
	case "lzw":
		return gfcanalysis.CompressionLZW, nil
	case "deflate":
		return gfcanalysis.CompressionDeflate, nil
	case "none":
		return gfcanalysis.CompressionNone, nil
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "assemble, crop and optionally reproject the product over an aoi",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := mergeJobFile(cmd); err != nil {
			return err
		}
		run.applyEnvDefaults()
		if run.Folder == "" {
			return fmt.Errorf("--folder or GFC_DATA_FOLDER is required")
		}
		if run.Out == "" {
			return fmt.Errorf("--out is required")
		}

		aoi, err := loadAOI(&run)
		if err != nil {
			return err
		}
		switches, err := warpSwitchList(run.WarpSwitches)
		if err != nil {
			return err
		}
		compression, err := parseCompression(run.Compression)
		if err != nil {
			return err
		}
		if err := registerGCS(ctx, run.Folder, run.Out); err != nil {
			return err
		}
		if len(switches) > 0 {
			log.Logger(ctx).Sugar().Debugf("extra warp switches: %s", shellescape.QuoteCommand(switches))
		}

		// gs:// destinations are produced locally then uploaded
		outPath, overwrite := run.Out, run.Overwrite
		var upload string
		if strings.HasPrefix(run.Out, "gs://") {
			if _, _, err := adst.Parse(run.Out); err != nil {
				return fmt.Errorf("invalid dst %s: %w", run.Out, err)
			}
			tmpf, err := os.CreateTemp("", "gfcexport-*.tif")
			if err != nil {
				return fmt.Errorf("create temp tif: %w", err)
			}
			tmpf.Close()
			defer os.Remove(tmpf.Name())
			upload = run.Out
			outPath = tmpf.Name()
			overwrite = true
		}

		stack, err := gfcanalysis.Extract(ctx, aoi, gfcanalysis.ExtractOptions{
			Variant:        run.Stack,
			DatasetVersion: run.Dataset,
			DataFolder:     run.Folder,
			ToUTM:          run.UTM,
			Rescale:        run.Rescale,
			Tolerance:      run.Tolerance,
			OutputPath:     outPath,
			Overwrite:      overwrite,
			Compression:    compression,
			COG:            run.COG,
			WarpSwitches:   switches,
			Workers:        run.Workers,
		})
		if err != nil {
			return err
		}
		if upload != "" {
			if err := adstcl.UploadFromFile(ctx, upload, outPath); err != nil {
				return fmt.Errorf("upload %s: %w", upload, err)
			}
		}
		log.Logger(ctx).Sugar().Infof("wrote %s: %dx%d pixels, %d bands (%s)",
			run.Out, stack.Width, stack.Height, len(stack.Bands), strings.Join(stack.Bands, ","))
		return nil
	},
}

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "list the tile files an aoi needs (for the download step)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		run.applyEnvDefaults()
		aoi, err := loadAOI(&run)
		if err != nil {
			return err
		}
		variant, err := gfcanalysis.ParseVariant(run.Stack)
		if err != nil {
			return err
		}
		tiles, err := gfcanalysis.TilesFor(aoi)
		if err != nil {
			return err
		}
		for _, tile := range tiles {
			for _, p := range gfcanalysis.TilePaths(tile, variant, run.Dataset, run.Folder) {
				fmt.Println(p)
			}
		}
		return nil
	},
}
