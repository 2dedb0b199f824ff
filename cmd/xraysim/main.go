package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"xraysim/internal/logging"
	"xraysim/internal/models"
	"xraysim/pkg/config"
	"xraysim/pkg/report"
	"xraysim/pkg/simulation"
	"xraysim/pkg/visualization"
)

// Exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// errUsage marks command-line mistakes, which exit with exitUsage
var errUsage = errors.New("usage error")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// offsetValue parses "DX,DY" into an offset
type offsetValue struct {
	offset *models.Offset
}

func (o offsetValue) String() string {
	if o.offset == nil {
		return "0,0"
	}
	return fmt.Sprintf("%d,%d", o.offset.DX, o.offset.DY)
}

func (o offsetValue) Set(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return fmt.Errorf("expected DX DY, got %q", s)
	}
	dx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return fmt.Errorf("invalid DX: %w", err)
	}
	dy, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return fmt.Errorf("invalid DY: %w", err)
	}
	*o.offset = models.Offset{DX: dx, DY: dy}
	return nil
}

// joinOffsetArgs rewrites "--cone-offset DX DY" into the single-value form the
// flag package understands. Values of other flags and everything after the
// "--" terminator are passed through untouched.
func joinOffsetArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			return append(out, args[i:]...), nil
		}
		if a == "--cone-offset" || a == "-cone-offset" {
			if i+2 >= len(args) {
				return nil, fmt.Errorf("%w: %s needs two values DX DY", errUsage, a)
			}
			out = append(out, "--cone-offset="+args[i+1]+","+args[i+2])
			i += 2
			continue
		}

		out = append(out, a)
		if takesValue(fs, a) && i+1 < len(args) {
			out = append(out, args[i+1])
			i++
		}
	}
	return out, nil
}

// takesValue reports whether arg names a defined non-boolean flag whose value
// is the next argument
func takesValue(fs *flag.FlagSet, arg string) bool {
	if !strings.HasPrefix(arg, "-") || strings.Contains(arg, "=") {
		return false
	}
	name := strings.TrimPrefix(strings.TrimPrefix(arg, "-"), "-")
	f := fs.Lookup(name)
	if f == nil {
		return false
	}
	if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
		return false
	}
	return true
}

// options holds the parsed command line
type options struct {
	configPath string
	envFile    string
	envLoaded  bool
	seed       uint64
	photons    float64
	stats      bool
	set        map[string]bool
}

func run(args []string, stdout, stderr io.Writer) int {
	errColor := color.New(color.FgRed)

	cfg, opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		errColor.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			return exitUsage
		}
		return exitError
	}

	log := logging.New(logging.Options{
		Verbose: cfg.Logging.Verbose,
		File:    cfg.Logging.File,
		Console: stderr,
	}).With(zap.String("run_id", uuid.NewString()))
	defer log.Sync()

	if opts.envLoaded {
		log.Info("loaded environment file", zap.String("path", opts.envFile))
	}

	if err := simulate(cfg, opts, log, stdout); err != nil {
		log.Debug("run failed", zap.Error(err))
		errColor.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	return exitOK
}

// parseArgs builds the effective configuration: defaults, then the config
// file, then XRAYSIM_* variables, then explicit flags.
func parseArgs(args []string, stderr io.Writer) (*config.Config, *options, error) {
	def := config.DefaultConfig()
	fs := flag.NewFlagSet("xraysim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	var offset models.Offset
	var phantomName string

	kvp := fs.Float64("kvp", def.Acquisition.KVp, "Tube voltage (kVp), required unless set by --config or XRAYSIM_KVP")
	mas := fs.Float64("mas", def.Acquisition.MAs, "Tube current-time product (mAs), required unless set by --config or XRAYSIM_MAS")
	out := fs.String("out", def.Output.Path, "Output PNG filename")
	scale := fs.Float64("cone-scale", def.Phantom.Scale, "Phantom height/width fraction of full frame (0-1)")
	fs.Var(offsetValue{&offset}, "cone-offset", "Phantom offset in pixels: --cone-offset DX DY")
	fs.Float64Var(&opts.photons, "photons", 0, "Override photons per pixel (skip air-kerma model)")
	sigma := fs.Float64("sigma", def.Noise.Sigma, "Additive Gaussian system-noise sigma")
	fs.StringVar(&phantomName, "phantom", def.Phantom.Kind.String(), "Phantom kind: cone or sphere")
	height := fs.Int("height", def.Canvas.Height, "Canvas height in pixels")
	width := fs.Int("width", def.Canvas.Width, "Canvas width in pixels")
	fs.Uint64Var(&opts.seed, "seed", 0, "Random seed; when neither this flag nor the config sets one, the seed is derived from the clock")
	exportWidth := fs.Int("export-width", 0, "Resample the saved image to this width (bilinear)")
	exportHeight := fs.Int("export-height", 0, "Resample the saved image to this height (bilinear)")
	reportPath := fs.String("report", "", "Write an HTML report of profiles and noise power spectrum")
	fs.BoolVar(&opts.stats, "stats", false, "Print image quality metrics")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	logFile := fs.String("log-file", "", "Also write JSON logs to this file (rotated)")
	fs.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&opts.envFile, "env-file", "", "Dotenv file with XRAYSIM_* variables")

	args, err := joinOffsetArgs(fs, args)
	if err != nil {
		return nil, nil, err
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		return nil, nil, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}

	opts.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	if opts.envFile != "" {
		if _, err := os.Stat(opts.envFile); err != nil {
			return nil, nil, fmt.Errorf("env file: %w", err)
		}
		if err := config.LoadEnvFile(opts.envFile); err != nil {
			return nil, nil, err
		}
		opts.envLoaded = true
	}

	cfg := def
	var provided config.Provided
	if opts.configPath != "" {
		if cfg, provided, err = config.ReadConfig(opts.configPath); err != nil {
			return nil, nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, nil, err
	}

	fromFile := map[string]bool{"kvp": provided.KVp, "mas": provided.MAs}
	for _, name := range []string{"kvp", "mas"} {
		envKey := config.EnvPrefix + strings.ToUpper(name)
		fromEnv := strings.TrimSpace(os.Getenv(envKey)) != ""
		if !opts.set[name] && !fromFile[name] && !fromEnv {
			return nil, nil, fmt.Errorf("%w: --%s is required (flag, %s or config acquisition.%s)", errUsage, name, envKey, name)
		}
	}

	// Explicit flags win over file and environment
	overrides := map[string]func(){
		"kvp":           func() { cfg.Acquisition.KVp = *kvp },
		"mas":           func() { cfg.Acquisition.MAs = *mas },
		"out":           func() { cfg.Output.Path = *out },
		"cone-scale":    func() { cfg.Phantom.Scale = *scale },
		"cone-offset":   func() { cfg.Phantom.OffsetX, cfg.Phantom.OffsetY = offset.DX, offset.DY },
		"sigma":         func() { cfg.Noise.Sigma = *sigma },
		"height":        func() { cfg.Canvas.Height = *height },
		"width":         func() { cfg.Canvas.Width = *width },
		"seed":          func() { cfg.Noise.Seed = opts.seed },
		"export-width":  func() { cfg.Output.ExportWidth = *exportWidth },
		"export-height": func() { cfg.Output.ExportHeight = *exportHeight },
		"report":        func() { cfg.Output.Report = *reportPath },
		"verbose":       func() { cfg.Logging.Verbose = *verbose },
		"log-file":      func() { cfg.Logging.File = *logFile },
	}
	for name, apply := range overrides {
		if opts.set[name] {
			apply()
		}
	}
	if opts.set["phantom"] {
		kind, err := models.ParsePhantomKind(phantomName)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", errUsage, err)
		}
		cfg.Phantom.Kind = kind
	}

	return cfg, opts, nil
}

// simulate runs the pipeline and writes every requested output
func simulate(cfg *config.Config, opts *options, log *zap.Logger, stdout io.Writer) error {
	params := cfg.Params()
	if opts.set["photons"] {
		photons := opts.photons
		params.Photons = &photons
	}

	// An explicit --seed, including 0, is always honoured
	seed := cfg.Noise.Seed
	if seed == 0 && !opts.set["seed"] {
		seed = uint64(time.Now().UnixNano())
	}

	log.Info("simulating",
		zap.Stringer("phantom", params.Kind),
		zap.Float64("kvp", params.KVp),
		zap.Float64("mas", params.MAs),
		zap.Float64("scale", params.Scale),
		zap.Int("dx", params.Offset.DX),
		zap.Int("dy", params.Offset.DY),
		zap.Float64("sigma", params.Sigma),
		zap.Uint64("seed", seed))

	startTime := time.Now()
	res, err := simulation.NewSimulator(log).Run(params, rand.NewSource(seed))
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	log.Debug("simulation finished",
		zap.Float64("photons_per_pixel", res.Photons),
		zap.Duration("elapsed", time.Since(startTime)))

	viewer := visualization.NewViewer(res.Image)
	outPath := cfg.Output.Path
	if cfg.Output.ExportWidth > 0 || cfg.Output.ExportHeight > 0 {
		err = viewer.Export(outPath, cfg.Output.ExportWidth, cfg.Output.ExportHeight)
	} else {
		err = viewer.SavePNG(outPath)
	}
	if err != nil {
		return fmt.Errorf("failed to save image to %s: %w", outPath, err)
	}
	fmt.Fprintf(stdout, "Saved image to %s\n", outPath)

	if cfg.Output.Report != "" {
		rep, err := report.Build(fmt.Sprintf("X-ray simulation: %s at %.0f kVp", params.Kind, params.KVp), res)
		if err != nil {
			return fmt.Errorf("failed to build report: %w", err)
		}
		if err := rep.Save(cfg.Output.Report); err != nil {
			return fmt.Errorf("failed to save report to %s: %w", cfg.Output.Report, err)
		}
		fmt.Fprintf(stdout, "Saved report to %s\n", cfg.Output.Report)
	}

	if opts.stats {
		printStats(stdout, simulation.Analyze(res.Image, res.Thickness), res.Photons)
	}

	return nil
}

func printStats(w io.Writer, m simulation.ImageMetrics, photons float64) {
	header := color.New(color.FgCyan, color.Bold)
	header.Fprintln(w, "\nImage metrics")
	header.Fprintln(w, "=============")
	fmt.Fprintf(w, "Photons/pixel: %.4g\n", photons)
	fmt.Fprintf(w, "Mean:          %.4f\n", m.Mean)
	fmt.Fprintf(w, "Std dev:       %.4f\n", m.StdDev)
	fmt.Fprintf(w, "Range:         [%.4f, %.4f]\n", m.Min, m.Max)
	fmt.Fprintf(w, "SNR:           %.2f\n", m.SNR)
	fmt.Fprintf(w, "CNR:           %.2f\n", m.CNR)
	fmt.Fprintf(w, "Entropy:       %.3f bits\n", m.Entropy)
}
