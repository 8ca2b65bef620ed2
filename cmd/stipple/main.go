// Command stipple turns an image into a weighted Voronoi stippling.
//
// Usage:
//
//	stipple [flags] SRC DST [THRESH [POINTSIZE [COUNT [SCALE]]]]
//
// SRC is read as PNG, JPEG, GIF, BMP, TIFF or WebP, converted to gray and
// upscaled by SCALE with a bilinear filter. COUNT sites are relaxed until
// the change of the cell-area spread drops below THRESH, then drawn as
// black dots of diameter POINTSIZE into the PNG file DST.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gogpu/gg"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/term"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gogpu/stipple"
	_ "github.com/gogpu/stipple/gpu"
)

const usage = "Usage: stipple [flags] SRC DST [THRESH [POINTSIZE [COUNT [SCALE]]]]"

// config is the parsed command line.
type config struct {
	src, dst  string
	threshold float64
	pointSize float64
	count     int
	scale     int

	verbose  bool
	backend  string
	seed     uint64
	maxIter  int
	jsonLogs bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseArgs(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}

	logger := newLogger(cfg, stderr)
	stipple.SetLogger(logger)
	gg.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := stippleFile(ctx, cfg, stdout, logger); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func parseArgs(args []string, stderr io.Writer) (config, error) {
	cfg := config{threshold: 1e-4, pointSize: 11, count: 1280, scale: 3}

	fs := flag.NewFlagSet("stipple", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}
	fs.BoolVar(&cfg.verbose, "v", false, "log every iteration")
	fs.StringVar(&cfg.backend, "backend", "auto", "voronoi backend: auto, gpu, software or jfa")
	fs.Uint64Var(&cfg.seed, "seed", 1, "seed for the initial site placement")
	fs.IntVar(&cfg.maxIter, "max-iter", 0, "stop after this many iterations (0 = until converged)")
	fs.BoolVar(&cfg.jsonLogs, "json", false, "log as JSON even on a terminal")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	pos := fs.Args()
	if len(pos) < 2 || len(pos) > 6 {
		fs.Usage()
		return cfg, fmt.Errorf("expected 2 to 6 arguments, got %d", len(pos))
	}
	cfg.src, cfg.dst = pos[0], pos[1]

	var err error
	if len(pos) > 2 {
		if cfg.threshold, err = strconv.ParseFloat(pos[2], 64); err != nil || cfg.threshold < 0 {
			return cfg, fmt.Errorf("invalid THRESH %q", pos[2])
		}
	}
	if len(pos) > 3 {
		if cfg.pointSize, err = strconv.ParseFloat(pos[3], 64); err != nil || !(cfg.pointSize > 0) {
			return cfg, fmt.Errorf("invalid POINTSIZE %q", pos[3])
		}
	}
	if len(pos) > 4 {
		if cfg.count, err = strconv.Atoi(pos[4]); err != nil || cfg.count <= 0 {
			return cfg, fmt.Errorf("invalid COUNT %q", pos[4])
		}
	}
	if len(pos) > 5 {
		if cfg.scale, err = strconv.Atoi(pos[5]); err != nil || cfg.scale <= 0 {
			return cfg, fmt.Errorf("invalid SCALE %q", pos[5])
		}
	}
	switch cfg.backend {
	case "auto", "gpu", "software", "jfa":
	default:
		return cfg, fmt.Errorf("unknown backend %q", cfg.backend)
	}
	return cfg, nil
}

// newLogger writes text to a terminal and JSON elsewhere.
func newLogger(cfg config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if f, ok := w.(*os.File); ok && !cfg.jsonLogs && term.IsTerminal(int(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func stippleFile(ctx context.Context, cfg config, stdout io.Writer, logger *slog.Logger) error {
	start := time.Now()

	gray, err := loadGray(cfg.src, cfg.scale)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%dx%d\n", gray.Width, gray.Height)

	opts := []stipple.Option{
		stipple.WithCount(cfg.count),
		stipple.WithThreshold(cfg.threshold),
		stipple.WithSeed(cfg.seed),
		stipple.WithMaxIterations(cfg.maxIter),
		stipple.WithProgress(func(p stipple.Progress) {
			if p.Delta >= cfg.threshold {
				fmt.Fprintln(stdout, p.Delta)
			}
			logger.Debug("iteration", "n", p.Iteration, "sigma", p.Sigma, "delta", p.Delta, "elapsed", p.Elapsed)
		}),
	}
	switch cfg.backend {
	case "gpu":
		if stipple.Backend() == nil {
			return errors.New("GPU backend not available")
		}
	case "software":
		opts = append(opts, stipple.WithBackend(stipple.NewSoftwareBackend(0)))
	case "jfa":
		opts = append(opts, stipple.WithBackend(stipple.NewJumpFloodBackend(0)))
	}

	eng, err := stipple.NewEngine(gray, opts...)
	if err != nil {
		return err
	}
	defer eng.Close()
	if cfg.backend == "gpu" && eng.BackendName() == "software" {
		return errors.New("GPU backend cannot serve this resolution")
	}

	if err := eng.Seed(); err != nil {
		return err
	}
	state, err := eng.Run(ctx)
	switch {
	case err == nil:
	case state == stipple.StateCancelled && ctx.Err() != nil:
		// Interrupted runs still export the sites of the last iteration.
		logger.Info("stippling interrupted", "iterations", eng.Iteration(), "delta", eng.Delta())
	default:
		return fmt.Errorf("after %d iterations (%s): %w", eng.Iteration(), state, err)
	}

	var buf bytes.Buffer
	w, h := eng.Bounds()
	if err := stipple.WritePNG(&buf, w, h, eng.ExportSites(), cfg.pointSize); err != nil {
		return err
	}
	if err := writeFileAtomic(cfg.dst, buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", cfg.dst, err)
	}

	logger.Info("stippling done",
		"state", state.String(), "iterations", eng.Iteration(),
		"backend", eng.BackendName(), "width", w, "height", h,
		"elapsed", time.Since(start))
	return nil
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place, so path is either untouched or complete.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// loadGray decodes path and upscales it by scale with a bilinear filter.
func loadGray(path string, scale int) (stipple.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return stipple.Gray{}, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return stipple.Gray{}, fmt.Errorf("decode %s: %w", path, err)
	}

	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return stipple.GrayFromImage(dst), nil
}
