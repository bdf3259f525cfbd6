// Package main renders one replay frame to a PNG file without a server.
//
//	snapshot -o frame.png -index 120 -start 50 -end 200 results/*.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atlas-desktop/portfolio-replay/internal/config"
	"github.com/atlas-desktop/portfolio-replay/internal/render"
	"github.com/atlas-desktop/portfolio-replay/internal/session"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to a config file")
	out := flag.String("o", "frame.png", "Output PNG path")
	index := flag.Int("index", -1, "Playback step to render (-1 renders the last step)")
	start := flag.Int("start", -1, "First step of the zoom window")
	end := flag.Int("end", -1, "Last step of the zoom window")
	width := flag.Int("width", 0, "Canvas width in pixels")
	height := flag.Int("height", 0, "Canvas height in pixels")
	hideFP := flag.Bool("hide-fp", false, "Hide false positive markers")
	hideFN := flag.Bool("hide-fn", false, "Hide false negative markers")
	printReport := flag.Bool("report", false, "Print a summary report per dataset to stdout")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: snapshot [flags] result.json...")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, cfg, options{
		out: *out, index: *index, start: *start, end: *end,
		width: *width, height: *height,
		hideFP: *hideFP, hideFN: *hideFN, report: *printReport,
		files: flag.Args(),
	}); err != nil {
		logger.Error("Snapshot failed", zap.Error(err))
		os.Exit(1)
	}
}

type options struct {
	out            string
	index          int
	start, end     int
	width, height  int
	hideFP, hideFN bool
	report         bool
	files          []string
}

func run(logger *zap.Logger, cfg *types.AppConfig, opts options) error {
	sess, err := session.New(logger.Named("session"), session.Options{Viewer: cfg.Viewer})
	if err != nil {
		return err
	}
	defer sess.Close()

	files := make([]types.RawFile, 0, len(opts.files))
	for _, path := range opts.files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, types.RawFile{Name: filepath.Base(path), Data: raw})
	}

	added, failures := sess.AddFiles(context.Background(), files)
	for _, f := range failures {
		logger.Warn("Skipped result file", zap.String("name", f.Name), zap.Error(f.Err))
	}
	if len(added) == 0 {
		return fmt.Errorf("none of %d files could be loaded", len(files))
	}

	if opts.width > 0 && opts.height > 0 {
		sess.SetCanvas(opts.width, opts.height)
	}
	if opts.start >= 0 && opts.end > opts.start {
		sess.SetZoomRange(opts.start, opts.end)
	}
	if opts.hideFP {
		if _, err := sess.ToggleFilter(types.AnomalyFalsePositive); err != nil {
			return err
		}
	}
	if opts.hideFN {
		if _, err := sess.ToggleFilter(types.AnomalyFalseNegative); err != nil {
			return err
		}
	}

	target := opts.index
	if target < 0 {
		target = sess.State().Playback.MaxIndex
	}
	sess.Seek(target)

	img, _ := sess.RenderFrame()

	f, err := os.Create(opts.out)
	if err != nil {
		return err
	}
	if err := render.EncodePNG(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", opts.out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	logger.Info("Frame written",
		zap.String("path", opts.out),
		zap.Int("index", target),
		zap.Int("datasets", len(added)),
	)

	if opts.report {
		reports := make([]*types.DatasetReport, 0, len(added))
		for _, ds := range added {
			r, err := sess.Report(ds.ID)
			if err != nil {
				return err
			}
			reports = append(reports, r)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	return nil
}
