package sqlite

import (
	"fmt"
	"strings"
)

// Config contains SQLite-specific connection options.
type Config struct {
	// Path is a file path or a modernc DSN such as "file::memory:?cache=shared".
	Path string
}

// DefaultPath returns the default database file.
func DefaultPath() string {
	return "dealdesk.db"
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{Path: DefaultPath()}

	if raw, ok := config["path"]; ok {
		path, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("path must be a string")
		}
		if path != "" {
			cfg.Path = path
		}
	}

	return cfg, nil
}

// IsMemory reports whether the database lives only in memory.
func (c *Config) IsMemory() bool {
	return c.Path == ":memory:" || strings.HasPrefix(c.Path, "file::memory:") ||
		strings.Contains(c.Path, "mode=memory")
}
