// Package config loads segstitch batch files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agleyzer/segstitch/internal/compile"
	"github.com/agleyzer/segstitch/internal/fetch"
	"github.com/agleyzer/segstitch/internal/series"
)

// Config is a batch of series to fetch and directories to compile.
type Config struct {
	// Root is the directory holding the fragment directories
	Root string `yaml:"root"`

	// OutputDir receives the compiled files; relative paths are under Root
	OutputDir string `yaml:"output_dir"`

	// ChunkSize is the number of bytes read from a response body at a time
	ChunkSize int `yaml:"chunk_size"`

	// Timeout bounds each segment request; 0 disables it
	Timeout time.Duration `yaml:"timeout"`

	UserAgent string `yaml:"user_agent"`

	// FFmpeg is the binary name or path used for compiling
	FFmpeg string `yaml:"ffmpeg"`

	Proxy Proxy `yaml:"proxy"`

	Series []Series `yaml:"series"`

	// Compile lists the fragment directories to join
	Compile []string `yaml:"compile"`
}

// Proxy selects an optional proxy for segment requests.
type Proxy struct {
	HTTP  string `yaml:"http"`
	SOCKS string `yaml:"socks"`
}

// Series is one entry of the series list.
type Series struct {
	Label     string `yaml:"label"`
	Prefix    string `yaml:"prefix"`
	Suffix    string `yaml:"suffix"`
	StopIndex int    `yaml:"stop_index"`
	Playlist  string `yaml:"playlist"`
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a config document. Unknown keys are rejected;
// an empty document yields the defaults.
func Parse(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}

	if c.Proxy.HTTP != "" && c.Proxy.SOCKS != "" {
		return fmt.Errorf("only one of proxy.http and proxy.socks may be set")
	}

	seen := make(map[string]bool, len(c.Series))
	for i, s := range c.Series {
		if err := series.ValidateLabel(s.Label); err != nil {
			return fmt.Errorf("series %d: %w", i, err)
		}
		if seen[s.Label] {
			return fmt.Errorf("series %d: duplicate label %q", i, s.Label)
		}
		seen[s.Label] = true

		if s.Prefix == "" {
			return fmt.Errorf("series %s: prefix is required", s.Label)
		}
		if s.StopIndex < 0 {
			return fmt.Errorf("series %s: stop_index must not be negative, got %d", s.Label, s.StopIndex)
		}
	}

	for i, label := range c.Compile {
		if err := series.ValidateLabel(label); err != nil {
			return fmt.Errorf("compile %d: %w", i, err)
		}
	}

	// Set defaults
	if c.Root == "" {
		c.Root = "."
	}
	if c.OutputDir == "" {
		c.OutputDir = compile.DefaultOutputDir
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = fetch.DefaultChunkSize
	}
	if c.FFmpeg == "" {
		c.FFmpeg = "ffmpeg"
	}

	return nil
}

// SeriesList converts the series entries to fetchable series.
func (c *Config) SeriesList() []series.Series {
	out := make([]series.Series, len(c.Series))
	for i, s := range c.Series {
		out[i] = series.Series{
			Label:     s.Label,
			Prefix:    s.Prefix,
			Suffix:    s.Suffix,
			StopIndex: s.StopIndex,
			Playlist:  s.Playlist,
		}
	}
	return out
}

// ProxyConfig returns the proxy selection for the fetch transport.
func (c *Config) ProxyConfig() fetch.ProxyConfig {
	return fetch.ProxyConfig{HTTP: c.Proxy.HTTP, SOCKS: c.Proxy.SOCKS}
}
