// Package config provides configuration loading and management for xraysim.
// It handles loading configuration from YAML files, environment overrides and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"xraysim/internal/models"
	"xraysim/pkg/noise"
	"xraysim/pkg/simulation"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv
const EnvPrefix = "XRAYSIM_"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Acquisition parameters
	Acquisition struct {
		// KVp is the tube voltage in kV
		KVp float64 `yaml:"kvp"`

		// MAs is the tube current-time product in mAs
		MAs float64 `yaml:"mas"`
	} `yaml:"acquisition"`

	// Phantom parameters
	Phantom struct {
		Kind models.PhantomKind `yaml:"kind"`

		// Scale is the phantom size as a fraction of the canvas
		Scale float64 `yaml:"scale"`

		OffsetX int `yaml:"offsetX"`
		OffsetY int `yaml:"offsetY"`
	} `yaml:"phantom"`

	// Canvas dimensions in pixels
	Canvas struct {
		Height int `yaml:"height"`
		Width  int `yaml:"width"`
	} `yaml:"canvas"`

	// Noise parameters
	Noise struct {
		// Photons overrides the fluence model when positive
		Photons float64 `yaml:"photons"`

		// Sigma is the standard deviation of the system noise
		Sigma float64 `yaml:"sigma"`

		// Seed seeds the random source; zero picks a seed from the clock
		Seed uint64 `yaml:"seed"`
	} `yaml:"noise"`

	// Output parameters
	Output struct {
		Path string `yaml:"path"`

		// ExportWidth and ExportHeight resample the saved image when positive
		ExportWidth  int `yaml:"exportWidth"`
		ExportHeight int `yaml:"exportHeight"`

		// Report is the path of an optional HTML report
		Report string `yaml:"report"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Verbose enables debug output
		Verbose bool `yaml:"verbose"`

		// File is an optional rotated log file
		File string `yaml:"file"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Acquisition.KVp = 80
	cfg.Acquisition.MAs = 10

	cfg.Phantom.Kind = models.Cone
	cfg.Phantom.Scale = 1.0

	cfg.Canvas.Height = 512
	cfg.Canvas.Width = 512

	cfg.Noise.Sigma = noise.DefaultSigma

	cfg.Output.Path = "output.png"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	cfg, _, err := ReadConfig(configPath)
	return cfg, err
}

// Provided reports which acquisition settings a config file sets explicitly
type Provided struct {
	KVp bool
	MAs bool
}

// ReadConfig loads configuration from a YAML file that must exist. Keys
// missing from the file keep their defaults; Provided tells which acquisition
// settings the file actually contains.
func ReadConfig(configPath string) (*Config, Provided, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, Provided{}, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, Provided{}, fmt.Errorf("error parsing config file: %w", err)
	}

	var present struct {
		Acquisition struct {
			KVp *float64 `yaml:"kvp"`
			MAs *float64 `yaml:"mas"`
		} `yaml:"acquisition"`
	}
	if err := yaml.Unmarshal(data, &present); err != nil {
		return nil, Provided{}, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, Provided{
		KVp: present.Acquisition.KVp != nil,
		MAs: present.Acquisition.MAs != nil,
	}, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// LoadEnvFile loads variables from a dotenv file into the process environment.
// Variables already set are not overwritten. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with XRAYSIM_* environment variables. Unset variables
// leave the field untouched; malformed values are reported.
func (cfg *Config) ApplyEnv() error {
	var errs []string
	note := func(key string, err error) {
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
		}
	}

	note("KVP", envFloat("KVP", &cfg.Acquisition.KVp))
	note("MAS", envFloat("MAS", &cfg.Acquisition.MAs))
	note("SCALE", envFloat("SCALE", &cfg.Phantom.Scale))
	note("OFFSET_X", envInt("OFFSET_X", &cfg.Phantom.OffsetX))
	note("OFFSET_Y", envInt("OFFSET_Y", &cfg.Phantom.OffsetY))
	note("HEIGHT", envInt("HEIGHT", &cfg.Canvas.Height))
	note("WIDTH", envInt("WIDTH", &cfg.Canvas.Width))
	note("PHOTONS", envFloat("PHOTONS", &cfg.Noise.Photons))
	note("SIGMA", envFloat("SIGMA", &cfg.Noise.Sigma))

	if v, ok := lookup("PHANTOM"); ok {
		kind, err := models.ParsePhantomKind(v)
		note("PHANTOM", err)
		if err == nil {
			cfg.Phantom.Kind = kind
		}
	}
	if v, ok := lookup("SEED"); ok {
		seed, err := strconv.ParseUint(v, 10, 64)
		note("SEED", err)
		if err == nil {
			cfg.Noise.Seed = seed
		}
	}
	if v, ok := lookup("VERBOSE"); ok {
		verbose, err := strconv.ParseBool(v)
		note("VERBOSE", err)
		if err == nil {
			cfg.Logging.Verbose = verbose
		}
	}
	if v, ok := lookup("OUT"); ok {
		cfg.Output.Path = v
	}
	if v, ok := lookup("REPORT"); ok {
		cfg.Output.Report = v
	}
	if v, ok := lookup("LOG_FILE"); ok {
		cfg.Logging.File = v
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Params converts the configuration into simulation parameters
func (cfg *Config) Params() simulation.Params {
	p := simulation.Params{
		KVp:    cfg.Acquisition.KVp,
		MAs:    cfg.Acquisition.MAs,
		Height: cfg.Canvas.Height,
		Width:  cfg.Canvas.Width,
		Scale:  cfg.Phantom.Scale,
		Offset: models.Offset{DX: cfg.Phantom.OffsetX, DY: cfg.Phantom.OffsetY},
		Sigma:  cfg.Noise.Sigma,
		Kind:   cfg.Phantom.Kind,
	}

	if cfg.Noise.Photons > 0 {
		photons := cfg.Noise.Photons
		p.Photons = &photons
	}

	return p
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func envFloat(key string, dst *float64) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func envInt(key string, dst *int) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}
