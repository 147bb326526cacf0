// Package config loads the kiosk configuration from defaults, an optional
// YAML file and FOTOBOX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/fotobox/internal/camera"
	"gopkg.in/yaml.v3"
)

const (
	DefaultOrigin       = "http://localhost:5000"
	DefaultBasePath     = "/kifotobox"
	DefaultPollInterval = 2000 * time.Millisecond
	DefaultListenAddr   = ":8888"
)

// Prompt is one processing option offered to the user.
type Prompt struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

// Config holds everything the capture client and its kiosk views need.
type Config struct {
	// ServiceURL overrides Origin+BasePath when set.
	ServiceURL     string        `yaml:"service_url"`
	Origin         string        `yaml:"origin"`
	BasePath       string        `yaml:"base_path"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	JPEGQuality    int           `yaml:"jpeg_quality"`
	MaxWidth       int           `yaml:"max_width"`
	ListenAddr     string        `yaml:"listen_addr"`
	Prompts        []Prompt      `yaml:"prompts"`
	DefaultPrompt  string        `yaml:"default_prompt"`
	// Camera.Kind stays empty unless configured; each command picks its own default.
	Camera         camera.Config `yaml:"camera"`
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	return &Config{
		Origin:         DefaultOrigin,
		BasePath:       DefaultBasePath,
		PollInterval:   DefaultPollInterval,
		RequestTimeout: 30 * time.Second,
		JPEGQuality:    camera.DefaultQuality,
		ListenAddr:     DefaultListenAddr,
		Prompts: []Prompt{
			{ID: "1", Label: "Comic"},
			{ID: "2", Label: "Oil painting"},
			{ID: "3", Label: "Pixel art"},
		},
	}
}

// Load reads path (if non-empty) over the defaults and then applies the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("FOTOBOX_SERVICE_URL"); v != "" {
		c.ServiceURL = v
	}
	if v := os.Getenv("FOTOBOX_ORIGIN"); v != "" {
		c.Origin = v
	}
	if v := os.Getenv("FOTOBOX_BASE_PATH"); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv("FOTOBOX_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FOTOBOX_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = d
	}
	if v := os.Getenv("FOTOBOX_JPEG_QUALITY"); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FOTOBOX_JPEG_QUALITY: %w", err)
		}
		c.JPEGQuality = q
	}
	if v := os.Getenv("FOTOBOX_PROMPT"); v != "" {
		c.DefaultPrompt = v
	}
	if v := os.Getenv("FOTOBOX_CAMERA"); v != "" {
		c.Camera.Kind = v
	}
	if v := os.Getenv("FOTOBOX_CAMERA_PATH"); v != "" {
		c.Camera.Path = v
	}
	if v := os.Getenv("FOTOBOX_CAMERA_DEVICE"); v != "" {
		c.Camera.Device = v
	}
	if v := os.Getenv("FOTOBOX_CAMERA_COMMAND"); v != "" {
		c.Camera.Command = strings.Fields(v)
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside the workflow.
func (c *Config) Validate() error {
	if c.ServiceURL == "" && c.Origin == "" {
		return errors.New("either service_url or origin must be set")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", c.JPEGQuality)
	}
	if c.DefaultPrompt != "" {
		if _, ok := c.PromptByID(c.DefaultPrompt); !ok {
			return fmt.Errorf("default_prompt %q is not one of the configured prompts", c.DefaultPrompt)
		}
	}
	return nil
}

// ServiceBase is the base URL of the processing service: the page origin
// plus the fixed sub-path, unless a full URL was configured.
func (c *Config) ServiceBase() string {
	if c.ServiceURL != "" {
		return strings.TrimRight(c.ServiceURL, "/")
	}
	base := "/" + strings.Trim(c.BasePath, "/")
	if base == "/" {
		base = ""
	}
	return strings.TrimRight(c.Origin, "/") + base
}

// PromptByID looks up a configured processing option.
func (c *Config) PromptByID(id string) (Prompt, bool) {
	for _, p := range c.Prompts {
		if p.ID == id {
			return p, true
		}
	}
	return Prompt{}, false
}
