// Package config loads connection defaults from a TOML file. Credentials
// never live here beyond the username; passwords come from the
// environment or an interactive prompt.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds the file-backed settings. Every field is optional; the
// command line and environment override whatever is set here.
type Config struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	TLS           *bool  `toml:"tls"`
	User          string `toml:"user"`
	TrashFolder   string `toml:"trash_folder"`
	DefaultFolder string `toml:"default_folder"`
}

// DefaultPath returns the per-user config location,
// e.g. ~/.config/slashmail/config.toml on Linux.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "slashmail", "config.toml"), nil
}

// Load reads the file at path. A missing file is an error only when the
// path was given explicitly; callers pass explicit=false for the default
// location, where absence simply yields a zero config.
func Load(path string, explicit bool) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("config %q: unknown key %q", path, undecoded[0].String())
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("config %q: port %d out of range", path, cfg.Port)
	}
	return cfg, nil
}
