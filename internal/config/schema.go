// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for guildbot.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "bot.telegram").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// ModuleMap decodes every module node into a generic map, for display.
func (c *Config) ModuleMap() (map[string]any, error) {
	out := make(map[string]any, len(c.Modules))
	for id, node := range c.Modules {
		var v map[string]any
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, nil
}
