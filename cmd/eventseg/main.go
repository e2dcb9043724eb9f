// Command eventseg detects events in pre-computed audio feature
// trajectories and reports, plots and stores the segmentation.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/eventseg/internal/config"
	"github.com/banshee-data/eventseg/internal/featureio"
	"github.com/banshee-data/eventseg/internal/monitoring"
	"github.com/banshee-data/eventseg/internal/report"
	"github.com/banshee-data/eventseg/internal/security"
	"github.com/banshee-data/eventseg/internal/segmentation"
	"github.com/banshee-data/eventseg/internal/storage/sqlite"
	"github.com/banshee-data/eventseg/internal/version"
)

// options are the parsed command-line flags.
type options struct {
	features    string
	configPath  string
	selectNames string
	dbPath      string
	pngPath     string
	htmlPath    string
	jsonPath    string
	outDir      string
	workers     int
	listRuns    int
	quiet       bool
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("eventseg", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.features, "features", "", "feature table (.csv or .json)")
	fs.StringVar(&o.configPath, "config", "", "tuning config (.json or .yaml); default searches config/tuning.defaults.json")
	fs.StringVar(&o.selectNames, "select", "", "comma-separated feature names to use, in order (default all)")
	fs.StringVar(&o.dbPath, "db", "", "sqlite database to record the run in")
	fs.StringVar(&o.pngPath, "png", "", "write an overview plot to this PNG file")
	fs.StringVar(&o.htmlPath, "html", "", "write an interactive chart to this HTML file")
	fs.StringVar(&o.jsonPath, "json", "", "write the full result as JSON to this file")
	fs.StringVar(&o.outDir, "out-dir", "", "write <source>.png, .html and .json into this directory")
	fs.IntVar(&o.workers, "workers", -1, "parallel workers per frame (0 = GOMAXPROCS, default from config)")
	fs.IntVar(&o.listRuns, "list", 0, "list the N most recent runs stored in -db and exit")
	fs.BoolVar(&o.quiet, "quiet", false, "suppress diagnostic logging")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if o.showVersion {
		return o, nil
	}
	if o.listRuns > 0 {
		if o.dbPath == "" {
			return nil, errors.New("-list requires -db")
		}
		return o, nil
	}
	if o.features == "" {
		return nil, errors.New("-features is required")
	}
	if o.outDir != "" {
		if o.pngPath == "" {
			o.pngPath = filepath.Join(o.outDir, security.OutputName(o.features, ".png"))
		}
		if o.htmlPath == "" {
			o.htmlPath = filepath.Join(o.outDir, security.OutputName(o.features, ".html"))
		}
		if o.jsonPath == "" {
			o.jsonPath = filepath.Join(o.outDir, security.OutputName(o.features, ".json"))
		}
	}
	return o, nil
}

// prepareOutputs creates -out-dir and checks every output path. Explicit
// paths must stay inside -out-dir when it is set, otherwise inside the
// working or temp directory.
func prepareOutputs(o *options) error {
	var dirs []string
	if o.outDir != "" {
		if err := os.MkdirAll(o.outDir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		dirs = []string{o.outDir}
	}
	for _, p := range []string{o.pngPath, o.htmlPath, o.jsonPath} {
		if p == "" {
			continue
		}
		if err := security.ValidateOutputPath(p, dirs...); err != nil {
			return err
		}
	}
	return nil
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		path = config.FindDefaultConfig()
		if path == "" {
			monitoring.Logf("no tuning config found, using built-in defaults")
			return config.EmptyTuningConfig(), nil
		}
	}
	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("loaded tuning config %s", path)
	return cfg, nil
}

// buildFeatures normalises each column with its configured extents and
// pairs it with its parameters.
func buildFeatures(tbl *featureio.Table, cfg *config.TuningConfig) []segmentation.Feature {
	features := make([]segmentation.Feature, len(tbl.Names))
	for i, name := range tbl.Names {
		ft := cfg.Feature(name)
		features[i] = segmentation.Feature{
			Name:    name,
			Params:  segmentation.ParametersFromTuning(ft),
			History: featureio.Normalize(tbl.Columns[i], ft.GetMinValue(), ft.GetMaxValue()),
		}
	}
	return features
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.quiet {
		monitoring.SetLogger(nil)
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.String("eventseg"))
		return nil
	}
	if o.listRuns > 0 {
		return listRuns(stdout, o.dbPath, o.listRuns)
	}

	if err := prepareOutputs(o); err != nil {
		return err
	}

	tuning, err := loadTuning(o.configPath)
	if err != nil {
		return err
	}
	tbl, err := featureio.Load(o.features)
	if err != nil {
		return err
	}
	if o.selectNames != "" {
		names := strings.Split(o.selectNames, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		if tbl, err = tbl.Select(names...); err != nil {
			return err
		}
	}

	segCfg := segmentation.SegmenterConfigFromTuning(tuning)
	if o.workers >= 0 {
		segCfg.Workers = o.workers
	}
	seg := segmentation.NewSegmenter(segCfg)
	seg.SetFeatures(buildFeatures(tbl, tuning))

	start := time.Now()
	if err := seg.SegmentContext(ctx); err != nil {
		return err
	}
	elapsed := time.Since(start)

	segments := seg.Segments()
	res := &report.Result{
		Source:    o.features,
		Features:  tbl.Names,
		Frames:    tbl.Frames(),
		PathCost:  seg.PathCost(),
		Modes:     seg.Modes(),
		Segments:  segments,
		Summaries: report.Summarize(tbl, seg.Modes(), segments),
	}

	fmt.Fprintf(stdout, "%s: %d frames, %d features, %d segments, path cost %.4f\n",
		o.features, res.Frames, len(res.Features), len(segments), res.PathCost)
	if err := report.WriteText(stdout, res.Summaries); err != nil {
		return err
	}

	if err := writeOutputs(o, tbl, res); err != nil {
		return err
	}

	if o.dbPath != "" {
		id, err := storeRun(o.dbPath, tuning, res, elapsed, seg.Config().Workers)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "stored run %s in %s\n", id, o.dbPath)
	}
	return nil
}

func writeOutputs(o *options, tbl *featureio.Table, res *report.Result) error {
	title := filepath.Base(o.features)

	if o.pngPath != "" {
		if err := report.SavePNG(o.pngPath, tbl, res.Modes, res.Segments, title); err != nil {
			return err
		}
		monitoring.Logf("wrote %s", o.pngPath)
	}
	if o.htmlPath != "" {
		if err := writeFile(o.htmlPath, func(w io.Writer) error {
			return report.WriteHTML(w, tbl, res.Modes, res.Segments, title)
		}); err != nil {
			return err
		}
		monitoring.Logf("wrote %s", o.htmlPath)
	}
	if o.jsonPath != "" {
		if err := writeFile(o.jsonPath, func(w io.Writer) error {
			return report.WriteJSON(w, res)
		}); err != nil {
			return err
		}
		monitoring.Logf("wrote %s", o.jsonPath)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func storeRun(dbPath string, tuning *config.TuningConfig, res *report.Result, elapsed time.Duration, workers int) (string, error) {
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return "", err
	}
	defer db.Close()

	tuningJSON, err := json.Marshal(tuning)
	if err != nil {
		return "", fmt.Errorf("encode tuning: %w", err)
	}
	run := &sqlite.Run{
		Source:       res.Source,
		FrameCount:   res.Frames,
		FeatureNames: res.Features,
		PathCost:     res.PathCost,
		Modes:        res.Modes,
		Segments:     res.Segments,
		TuningJSON:   tuningJSON,
		DurationMs:   elapsed.Milliseconds(),
		Workers:      workers,
	}
	if err := sqlite.NewRunStore(db.DB).Insert(run); err != nil {
		return "", err
	}
	return run.RunID, nil
}

func listRuns(w io.Writer, dbPath string, limit int) error {
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := sqlite.NewRunStore(db.DB).List(limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		// List omits the segment rows; the stored modes reproduce them.
		fmt.Fprintf(w, "%s  %s  %s  frames=%d features=%s segments=%d cost=%.4f\n",
			r.RunID, time.Unix(0, r.CreatedAt).UTC().Format(time.RFC3339), r.Source,
			r.FrameCount, strings.Join(r.FeatureNames, ","), len(segmentation.ExtractSegments(r.Modes)), r.PathCost)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("eventseg: %v", err)
	}
}
