// Package config holds the settings of the capture and encode programs.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/muxable/appframes/pkg/encoder"
	"github.com/muxable/appframes/pkg/frame"
	"gopkg.in/yaml.v2"
)

// Video is the raw format exchanged with the pipeline.
type Video struct {
	Format string `yaml:"format"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
}

// Capture configures the appsink program.
type Capture struct {
	// Pattern is a videotestsrc pattern name.
	Pattern string `yaml:"pattern"`
	Output  string `yaml:"output"`
	// Limit is the number of frames written. Zero means no limit.
	Limit int `yaml:"limit"`
}

// Encode configures the appsrc program.
type Encode struct {
	// Pattern is the synthetic frame content, gray or bars.
	Pattern string `yaml:"pattern"`
	// Codec is a MIME type or codec name, e.g. video/H264 or vp8.
	Codec string `yaml:"codec"`
	// Bitrate in bits per second. Zero keeps the encoder default.
	Bitrate  uint32 `yaml:"bitrate"`
	Output   string `yaml:"output"`
	Limit    int    `yaml:"limit"`
	Realtime bool   `yaml:"realtime"`
}

type Config struct {
	Video   Video   `yaml:"video"`
	Capture Capture `yaml:"capture"`
	Encode  Encode  `yaml:"encode"`
	// Metrics is the listen address of the prometheus endpoint. Empty disables it.
	Metrics string `yaml:"metrics"`
	Debug   bool   `yaml:"debug"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Video: Video{
			Format: string(frame.DefaultFormat.PixelFormat),
			Width:  frame.DefaultFormat.Width,
			Height: frame.DefaultFormat.Height,
			FPS:    frame.DefaultFormat.FPS,
		},
		Capture: Capture{
			Pattern: "smpte100",
			Output:  "test.yuv",
			// five frames written, one fewer than the appsink demo's frame_num++ > 5.
			Limit: 5,
		},
		Encode: Encode{
			Pattern: "gray",
			Codec:   "video/H264",
			Output:  "test.mp4",
			Limit:   300,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Resolve loads path, or returns the defaults when path is empty.
func Resolve(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Format returns the raw video format.
func (c *Config) Format() frame.Format {
	return frame.Format{
		PixelFormat: frame.PixelFormat(c.Video.Format),
		Width:       c.Video.Width,
		Height:      c.Video.Height,
		FPS:         c.Video.FPS,
	}
}

func (c *Config) Validate() error {
	if err := c.Format().Validate(); err != nil {
		return err
	}
	if c.Capture.Limit < 0 || c.Encode.Limit < 0 {
		return errors.New("frame limits must not be negative")
	}
	if c.Capture.Output == "" || c.Encode.Output == "" {
		return errors.New("output paths must not be empty")
	}
	if _, err := encoder.MimeTypeFromName(c.Encode.Codec); err != nil {
		return err
	}
	switch frame.Pattern(c.Encode.Pattern) {
	case "", frame.PatternGray, frame.PatternBars:
	default:
		return fmt.Errorf("unknown frame pattern %q", c.Encode.Pattern)
	}
	return nil
}
