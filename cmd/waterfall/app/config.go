package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/spectrum-waterfall/internal/colormap"
)

const DefaultEndpoint = "ws://localhost:8766"

// Config represents the main application configuration
type Config struct {
	URL              string  `yaml:"url"`
	Width            int     `yaml:"width"`
	Height           int     `yaml:"height"`
	PixelRatio       float64 `yaml:"pixelRatio"`
	Palette          string  `yaml:"palette"`
	CenterHz         float64 `yaml:"centerHz"`
	BandwidthHz      float64 `yaml:"bandwidthHz"`
	FontPath         string  `yaml:"fontPath"`
	OutputFile       string  `yaml:"outputFile"`
	SnapshotInterval string  `yaml:"snapshotInterval"`
	Verbose          bool    `yaml:"verbose"`

	snapshotEvery time.Duration
}

// SnapshotEvery returns the parsed snapshot cadence, zero when only a final
// snapshot on shutdown was requested.
func (c *Config) SnapshotEvery() time.Duration {
	return c.snapshotEvery
}

var validPalettes = map[string]struct{}{
	string(colormap.InfernoPalette): {},
	string(colormap.ClassicPalette): {},
}

func NewConfig() *Config {
	return &Config{
		URL:        DefaultEndpoint,
		Width:      1024,
		Height:     512,
		PixelRatio: 1,
		Palette:    string(colormap.DefaultPalette),
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var configFile string
	o := NewConfig()
	flag.StringVar(&configFile, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&o.URL, "url", c.URL, "Spectrum producer websocket endpoint")
	flag.IntVar(&o.Width, "w", c.Width, "Displayed waterfall width in pixels")
	flag.IntVar(&o.Height, "h", c.Height, "Displayed waterfall height in pixels")
	flag.Float64Var(&o.PixelRatio, "pixel-ratio", c.PixelRatio, "Device pixel ratio of the target display")
	flag.StringVar(&o.Palette, "palette", c.Palette, "Color palette. [inferno, classic]")
	flag.Float64Var(&o.CenterHz, "center", 0, "Tune the producer to this center frequency in Hz")
	flag.Float64Var(&o.BandwidthHz, "bandwidth", 0, "Tune the producer to this bandwidth in Hz")
	flag.StringVar(&o.FontPath, "font", "", "Path to a TTF font for snapshot annotations")
	flag.StringVar(&o.OutputFile, "o", "", "Path to the snapshot PNG file")
	flag.StringVar(&o.SnapshotInterval, "snapshot-interval", "", "Rewrite the snapshot at this interval, e.g. 5s. Default is once on shutdown")
	flag.BoolVar(&o.Verbose, "verbose", false, "Enable more verbose output")
	flag.Parse()

	if configFile != "" {
		if err := loadConfigFile(configFile, c); err != nil {
			return nil, err
		}
	}

	// Flags given on the command line win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			c.URL = o.URL
		case "w":
			c.Width = o.Width
		case "h":
			c.Height = o.Height
		case "pixel-ratio":
			c.PixelRatio = o.PixelRatio
		case "palette":
			c.Palette = o.Palette
		case "center":
			c.CenterHz = o.CenterHz
		case "bandwidth":
			c.BandwidthHz = o.BandwidthHz
		case "font":
			c.FontPath = o.FontPath
		case "o":
			c.OutputFile = o.OutputFile
		case "snapshot-interval":
			c.SnapshotInterval = o.SnapshotInterval
		case "verbose":
			c.Verbose = o.Verbose
		}
	})

	if err := c.validate(); err != nil {
		flag.Usage()
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("endpoint url is required")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return errors.New("width and height must be positive")
	}
	if c.OutputFile == "" {
		return errors.New("output file is required")
	}
	if _, ok := validPalettes[c.Palette]; !ok {
		return fmt.Errorf("invalid palette: %s", c.Palette)
	}

	if c.SnapshotInterval != "" {
		every, err := time.ParseDuration(c.SnapshotInterval)
		if err != nil {
			return fmt.Errorf("invalid snapshot interval: %w", err)
		}
		if every <= 0 {
			return errors.New("snapshot interval must be positive")
		}
		c.snapshotEvery = every
	}
	return nil
}

func loadConfigFile(path string, c *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}
