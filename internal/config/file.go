// Package config loads pagepatch configuration from YAML files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pagepatch configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Pages   []PageConfig  `yaml:"pages"`
	Sinks   []SinkConfig  `yaml:"sinks"`
	API     APIConfig     `yaml:"api"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Headful          bool     `yaml:"headful"`
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// PageConfig defines a page and the patches applied to it.
type PageConfig struct {
	ID      string        `yaml:"id"`
	URL     string        `yaml:"url"`
	Patches []PatchConfig `yaml:"patches"`
}

// PatchConfig is one patch invocation: a catalog name plus its pre-split
// argument list.
type PatchConfig struct {
	Name string   `yaml:"name"`
	Args []string `yaml:"args"`
}

// SinkConfig defines a hit output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | store
	URL  string `yaml:"url"`  // for webhook
	Path string `yaml:"path"` // for store
}

// APIConfig controls the control-plane HTTP server. Empty listen disables
// it.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page-%d", i+1)
		}
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "stdout"}}
	}
}

func (c *Config) validate() error {
	for _, p := range c.Pages {
		if p.URL == "" {
			return fmt.Errorf("config: page %q has no url", p.ID)
		}
		for _, patch := range p.Patches {
			if patch.Name == "" {
				return fmt.Errorf("config: page %q has a patch without a name", p.ID)
			}
		}
	}
	for _, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: webhook sink has no url")
			}
		case "store":
			if s.Path == "" {
				return fmt.Errorf("config: store sink has no path")
			}
		default:
			return fmt.Errorf("config: unknown sink type %q", s.Type)
		}
	}
	return nil
}
