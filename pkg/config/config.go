// Package config provides configuration loading and management for arrayvis.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"arrayvis/internal/models"
)

// Vec3 is a point or direction in cube voxel co-ordinates
type Vec3 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumThreads sizes the shared thread pool
		NumThreads int `yaml:"numThreads"`
	} `yaml:"processing"`

	// Input parameters
	Input struct {
		// ArrayFile is the arrayfile holding the cube. When empty a
		// synthetic cube is generated.
		ArrayFile string `yaml:"arrayFile"`

		// Structure names the structure holding the cube, empty for any
		Structure string `yaml:"structure"`

		// Mmap maps the file rather than reading it
		Mmap bool `yaml:"mmap"`

		// Cache shares repeated reads of the same file
		Cache bool `yaml:"cache"`

		// SyntheticSize is the edge length of the generated cube
		SyntheticSize int `yaml:"syntheticSize"`
	} `yaml:"input"`

	// View parameters. A zero focus means the cube centre and a zero eye
	// means a point in front of it.
	View struct {
		Eye   Vec3 `yaml:"eye"`
		Focus Vec3 `yaml:"focus"`
		Up    Vec3 `yaml:"up"`
	} `yaml:"view"`

	// Render parameters
	Render struct {
		Width         int            `yaml:"width"`
		Height        int            `yaml:"height"`
		Projection    string         `yaml:"projection"`
		EyeSeparation float64        `yaml:"eyeSeparation"`
		SmoothCache   bool           `yaml:"smoothCache"`
		Shader        string         `yaml:"shader"`
		SubCube       models.SubCube `yaml:"subCube"`

		// Stereo renders left and right eye images
		Stereo bool `yaml:"stereo"`

		// Incremental builds caches through the background scheduler
		Incremental bool `yaml:"incremental"`

		// Frames is the number of images rendered while spinning the eye
		// SpinDegrees about the up vector
		Frames      int     `yaml:"frames"`
		SpinDegrees float64 `yaml:"spinDegrees"`
	} `yaml:"render"`

	// Histogram parameters
	Histogram struct {
		Bins int `yaml:"bins"`
	} `yaml:"histogram"`

	// Output parameters
	Output struct {
		// Dir receives rendered frames and slices
		Dir string `yaml:"dir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// Format is the image format, png or jpeg
		Format string `yaml:"format"`

		// SaveSlices writes every z slice of the cube
		SaveSlices bool `yaml:"saveSlices"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumThreads = runtime.NumCPU()

	cfg.Input.Cache = true
	cfg.Input.SyntheticSize = 64

	cfg.View.Up = Vec3{Y: 1}

	cfg.Render.Width = 256
	cfg.Render.Height = 256
	cfg.Render.Projection = models.Parallel.String()
	cfg.Render.EyeSeparation = 4
	cfg.Render.Shader = "mip"
	cfg.Render.Frames = 1
	cfg.Render.SpinDegrees = 360

	cfg.Histogram.Bins = 16

	cfg.Output.Dir = "output"
	cfg.Output.Verbose = true
	cfg.Output.Format = "png"

	return cfg
}

// Validate checks values that would otherwise fail deep in a render
func (c *Config) Validate() error {
	if c.Render.Width < 1 || c.Render.Height < 1 {
		return fmt.Errorf("render size %dx%d must be positive", c.Render.Width, c.Render.Height)
	}
	if _, err := models.ParseProjection(c.Render.Projection); err != nil {
		return err
	}
	if c.Render.Frames < 1 {
		return fmt.Errorf("render frames must be at least 1, got %d", c.Render.Frames)
	}
	if c.Histogram.Bins < 1 {
		return fmt.Errorf("histogram bins must be at least 1, got %d", c.Histogram.Bins)
	}
	switch c.Output.Format {
	case "png", "jpeg", "jpg":
	default:
		return fmt.Errorf("unknown output format: %q (must be png or jpeg)", c.Output.Format)
	}
	if c.Input.ArrayFile == "" && c.Input.SyntheticSize < 2 {
		return fmt.Errorf("synthetic cube size must be at least 2, got %d", c.Input.SyntheticSize)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
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
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
