package main

import (
	"bytes"
	"flag"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xraysim/internal/models"
	"xraysim/pkg/config"
)

func decodeGray(t *testing.T, path string) *image.Gray {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open output: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode output: %v", err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("Expected single-channel image, got %T", img)
	}
	return gray
}

// meanIn averages the pixels of gray inside r
func meanIn(gray *image.Gray, r image.Rectangle) float64 {
	var sum float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			sum += float64(gray.GrayAt(x, y).Y)
		}
	}
	return sum / float64(r.Dx()*r.Dy())
}

func TestRunConeRoundTrip(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cone.png")
	var stdout, stderr bytes.Buffer

	code := run([]string{
		"--kvp", "70", "--mas", "5",
		"--cone-scale", "0.3",
		"--cone-offset", "20", "40",
		"--seed", "42",
		"--out", out,
	}, &stdout, &stderr)

	if code != exitOK {
		t.Fatalf("Expected exit 0, got %d; stderr:\n%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Saved image to") {
		t.Errorf("Expected confirmation on stdout, got %q", stdout.String())
	}

	gray := decodeGray(t, out)
	if b := gray.Bounds(); b.Dx() != 512 || b.Dy() != 512 {
		t.Errorf("Expected 512x512 image, got %v", b)
	}

	lo, hi := gray.Pix[0], gray.Pix[0]
	for _, v := range gray.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		t.Errorf("Expected varying pixels, got constant %d", lo)
	}

	// Cone base sits at the offset; the open field is far from it
	under := meanIn(gray, image.Rect(20, 40, 170, 80))
	open := meanIn(gray, image.Rect(300, 300, 500, 500))
	if under >= open {
		t.Errorf("Expected attenuation under the cone: under %.1f, open %.1f", under, open)
	}
}

func TestRunDeterministicWithSeed(t *testing.T) {
	dir := t.TempDir()
	args := func(out string) []string {
		return []string{"--kvp", "80", "--mas", "1", "--height", "64", "--width", "64", "--seed", "9", "--out", out}
	}

	a, b := filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")
	for _, out := range []string{a, b} {
		var stdout, stderr bytes.Buffer
		if code := run(args(out), &stdout, &stderr); code != exitOK {
			t.Fatalf("Run failed with %d: %s", code, stderr.String())
		}
	}

	if !bytes.Equal(decodeGray(t, a).Pix, decodeGray(t, b).Pix) {
		t.Error("Expected identical images for the same seed")
	}
}

func TestRunUsageErrors(t *testing.T) {
	t.Setenv("XRAYSIM_KVP", "")
	t.Setenv("XRAYSIM_MAS", "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing kvp", []string{"--mas", "5"}, "--kvp is required"},
		{"missing mas", []string{"--kvp", "70"}, "--mas is required"},
		{"short offset", []string{"--kvp", "70", "--mas", "5", "--cone-offset", "20"}, "two values"},
		{"bad offset", []string{"--kvp", "70", "--mas", "5", "--cone-offset", "a", "1"}, "invalid DX"},
		{"unknown flag", []string{"--kvp", "70", "--mas", "5", "--bogus"}, "bogus"},
		{"bad phantom", []string{"--kvp", "70", "--mas", "5", "--phantom", "cube"}, "invalid phantom kind"},
		{"stray argument", []string{"--kvp", "70", "--mas", "5", "extra"}, "unexpected arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)
			if code != exitUsage {
				t.Errorf("Expected exit %d, got %d", exitUsage, code)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Errorf("Expected %q in stderr, got %q", tt.want, stderr.String())
			}
			if stdout.Len() != 0 {
				t.Errorf("Expected no stdout, got %q", stdout.String())
			}
		})
	}
}

func TestRunSaveFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "missing", "dir", "out.png")
	var stdout, stderr bytes.Buffer

	code := run([]string{"--kvp", "70", "--mas", "5", "--height", "32", "--width", "32", "--out", out}, &stdout, &stderr)
	if code != exitError {
		t.Fatalf("Expected exit %d, got %d", exitError, code)
	}
	if !strings.Contains(stderr.String(), "failed to save image") {
		t.Errorf("Expected save error on stderr, got %q", stderr.String())
	}
	if strings.Contains(stdout.String(), "Saved image to") {
		t.Error("Must not confirm a failed save")
	}
}

func TestRunSimulationFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.png")
	var stdout, stderr bytes.Buffer

	code := run([]string{"--kvp", "70", "--mas", "5", "--height", "0", "--out", out}, &stdout, &stderr)
	if code != exitError {
		t.Fatalf("Expected exit %d, got %d", exitError, code)
	}
	if !strings.Contains(stderr.String(), "simulation failed") {
		t.Errorf("Expected simulation error on stderr, got %q", stderr.String())
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("Expected no output file after a failed simulation")
	}
}

func TestRunSphereExportReportStats(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "sphere.png")
	rep := filepath.Join(dir, "report.html")
	var stdout, stderr bytes.Buffer

	code := run([]string{
		"--kvp", "90", "--mas", "2",
		"--phantom", "sphere",
		"--height", "80", "--width", "120",
		"--cone-scale", "0.5",
		"--photons", "1e5",
		"--export-width", "60", "--export-height", "40",
		"--report", rep,
		"--stats",
		"--seed", "3",
		"--out", out,
	}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("Expected exit 0, got %d; stderr:\n%s", code, stderr.String())
	}

	gray := decodeGray(t, out)
	if b := gray.Bounds(); b.Dx() != 60 || b.Dy() != 40 {
		t.Errorf("Expected 60x40 export, got %v", b)
	}

	// Sphere centred on the canvas is darker than a corner
	centre := meanIn(gray, image.Rect(26, 16, 34, 24))
	corner := meanIn(gray, image.Rect(0, 0, 8, 8))
	if centre >= corner {
		t.Errorf("Expected attenuated centre: centre %.1f, corner %.1f", centre, corner)
	}

	html, err := os.ReadFile(rep)
	if err != nil {
		t.Fatalf("Expected report file: %v", err)
	}
	if !strings.Contains(string(html), "echarts") {
		t.Error("Expected an echarts page in the report")
	}

	for _, want := range []string{"Saved image to", "Saved report to", "Photons/pixel: 1e+05", "SNR:"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("Expected %q in stdout, got:\n%s", want, stdout.String())
		}
	}
}

func TestRunFromConfigFile(t *testing.T) {
	t.Setenv("XRAYSIM_KVP", "")
	t.Setenv("XRAYSIM_MAS", "")

	dir := t.TempDir()
	out := filepath.Join(dir, "from-config.png")
	cfgPath := filepath.Join(dir, "xraysim.yaml")

	cfg := config.DefaultConfig()
	cfg.Acquisition.KVp = 60
	cfg.Acquisition.MAs = 3
	cfg.Canvas.Height = 48
	cfg.Canvas.Width = 40
	cfg.Phantom.Kind = models.Sphere
	cfg.Noise.Seed = 11
	cfg.Output.Path = filepath.Join(dir, "ignored.png")
	if err := config.SaveConfig(cfg, cfgPath); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	var stdout, stderr bytes.Buffer
	// No --kvp or --mas: the config file supplies them. --out overrides the file.
	code := run([]string{"--config", cfgPath, "--out", out}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("Expected exit 0, got %d; stderr:\n%s", code, stderr.String())
	}

	if b := decodeGray(t, out).Bounds(); b.Dx() != 40 || b.Dy() != 48 {
		t.Errorf("Expected 40x48 image from config canvas, got %v", b)
	}
	if _, err := os.Stat(cfg.Output.Path); !os.IsNotExist(err) {
		t.Error("Flag --out must take precedence over the config file")
	}
}

func TestRunEnvironmentSuppliesRequired(t *testing.T) {
	t.Setenv("XRAYSIM_KVP", "75")
	t.Setenv("XRAYSIM_MAS", "4")

	out := filepath.Join(t.TempDir(), "env.png")
	var stdout, stderr bytes.Buffer
	code := run([]string{"--height", "32", "--width", "32", "--seed", "5", "--out", out}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("Expected exit 0, got %d; stderr:\n%s", code, stderr.String())
	}
}

func TestJoinOffsetArgs(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("out", "", "")
	fs.Float64("kvp", 0, "")
	fs.Bool("stats", false, "")

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			"joins the pair",
			[]string{"--kvp", "70", "--cone-offset", "-5", "12", "--out", "x.png"},
			[]string{"--kvp", "70", "--cone-offset=-5,12", "--out", "x.png"},
		},
		{
			"after a bool flag",
			[]string{"--stats", "-cone-offset", "1", "2"},
			[]string{"--stats", "--cone-offset=1,2"},
		},
		{
			"value of another flag",
			[]string{"--out", "--cone-offset", "1", "2"},
			[]string{"--out", "--cone-offset", "1", "2"},
		},
		{
			"after terminator",
			[]string{"--kvp", "70", "--", "--cone-offset", "1", "2"},
			[]string{"--kvp", "70", "--", "--cone-offset", "1", "2"},
		},
		{
			"inline value",
			[]string{"--out=a.png", "--cone-offset", "3", "4"},
			[]string{"--out=a.png", "--cone-offset=3,4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := joinOffsetArgs(fs, tt.args)
			if err != nil {
				t.Fatalf("joinOffsetArgs failed: %v", err)
			}
			if strings.Join(got, " ") != strings.Join(tt.want, " ") {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}

	var offset models.Offset
	if err := (offsetValue{&offset}).Set("-5,12"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if offset.DX != -5 || offset.DY != 12 {
		t.Errorf("Unexpected offset %+v", offset)
	}
}

func TestRunConfigMustSupplyAcquisition(t *testing.T) {
	t.Setenv("XRAYSIM_KVP", "")
	t.Setenv("XRAYSIM_MAS", "")

	dir := t.TempDir()
	out := filepath.Join(dir, "out.png")

	partial := filepath.Join(dir, "partial.yaml")
	if err := os.WriteFile(partial, []byte("noise:\n  sigma: 0.01\nacquisition:\n  mas: 5\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	tests := []struct {
		name     string
		args     []string
		wantCode int
		want     string
	}{
		{"missing file", []string{"--config", filepath.Join(dir, "typo.yaml"), "--kvp", "70", "--mas", "5"}, exitError, "error reading config file"},
		{"file without kvp", []string{"--config", partial}, exitUsage, "--kvp is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(append(tt.args, "--height", "16", "--width", "16", "--out", out), &stdout, &stderr)
			if code != tt.wantCode {
				t.Errorf("Expected exit %d, got %d", tt.wantCode, code)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Errorf("Expected %q in stderr, got %q", tt.want, stderr.String())
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Error("Expected no output image")
			}
		})
	}

	// The flag completes what the file leaves out
	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", partial, "--kvp", "70", "--height", "16", "--width", "16", "--out", out}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("Expected exit 0, got %d; stderr:\n%s", code, stderr.String())
	}
}

func TestRunExplicitSeedZero(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")
	for _, out := range []string{a, b} {
		var stdout, stderr bytes.Buffer
		args := []string{"--kvp", "80", "--mas", "1", "--height", "32", "--width", "32", "--seed", "0", "--out", out}
		if code := run(args, &stdout, &stderr); code != exitOK {
			t.Fatalf("Run failed with %d: %s", code, stderr.String())
		}
		if !strings.Contains(stderr.String(), `"seed": 0`) {
			t.Errorf("Expected seed 0 in the log, got:\n%s", stderr.String())
		}
	}

	if !bytes.Equal(decodeGray(t, a).Pix, decodeGray(t, b).Pix) {
		t.Error("Expected identical images for --seed 0")
	}
}

func TestRunEnvFile(t *testing.T) {
	// Register cleanup; godotenv only sets variables that are unset
	for _, key := range []string{"XRAYSIM_KVP", "XRAYSIM_MAS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	dir := t.TempDir()
	envFile := filepath.Join(dir, "sim.env")
	if err := os.WriteFile(envFile, []byte("XRAYSIM_KVP=70\nXRAYSIM_MAS=5\n"), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("XRAYSIM_KVP=70\nXRAYSIM_MAS=5\n"), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	out := filepath.Join(dir, "out.png")
	base := []string{"--height", "16", "--width", "16", "--out", out}

	// A .env in the working directory is not read implicitly
	var stdout, stderr bytes.Buffer
	if code := run(base, &stdout, &stderr); code != exitUsage {
		t.Fatalf("Expected exit %d without --env-file, got %d", exitUsage, code)
	}

	stdout.Reset()
	stderr.Reset()
	if code := run(append([]string{"--env-file", filepath.Join(dir, "missing.env")}, base...), &stdout, &stderr); code != exitError {
		t.Errorf("Expected exit %d for a missing env file, got %d", exitError, code)
	}

	stdout.Reset()
	stderr.Reset()
	if code := run(append([]string{"--env-file", envFile}, base...), &stdout, &stderr); code != exitOK {
		t.Fatalf("Expected exit 0, got %d; stderr:\n%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "loaded environment file") {
		t.Errorf("Expected env file load to be logged, got:\n%s", stderr.String())
	}
}
