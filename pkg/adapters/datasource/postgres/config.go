package postgres

import (
	"fmt"
	"strings"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
	Schema   string // schema whose tables are exposed; defaults to "public"
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode matches the datastore.postgres.ssl_mode default, which
// targets a local or compose-network database.
func DefaultSSLMode() string {
	return "disable"
}

// DefaultSchema returns the schema exposed to question answering.
func DefaultSchema() string {
	return "public"
}

var validSSLModes = map[string]bool{
	"disable": true, "allow": true, "prefer": true,
	"require": true, "verify-ca": true, "verify-full": true,
}

// FromMap creates a Config from the generic options map produced by
// config.DatastoreOptions. Every missing required key is reported at once.
func FromMap(options map[string]any) (*Config, error) {
	cfg := &Config{
		Port:    DefaultPort(),
		SSLMode: DefaultSSLMode(),
		Schema:  DefaultSchema(),
	}

	var missing []string
	for _, field := range []struct {
		key string
		dst *string
	}{
		{"host", &cfg.Host},
		{"user", &cfg.User},
		{"database", &cfg.Database},
	} {
		if v, _ := options[field.key].(string); v != "" {
			*field.dst = v
		} else {
			missing = append(missing, field.key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("postgres datastore: missing %s", strings.Join(missing, ", "))
	}

	cfg.Password, _ = options["password"].(string)
	if v, _ := options["ssl_mode"].(string); v != "" {
		cfg.SSLMode = v
	}
	if v, _ := options["schema"].(string); v != "" {
		cfg.Schema = v
	}

	switch port := options["port"].(type) {
	case int:
		cfg.Port = port
	case int64:
		cfg.Port = int(port)
	case float64: // decoded JSON
		cfg.Port = int(port)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("postgres datastore: port %d out of range", cfg.Port)
	}
	if !validSSLModes[cfg.SSLMode] {
		return nil, fmt.Errorf("postgres datastore: unknown ssl_mode %q", cfg.SSLMode)
	}

	return cfg, nil
}
