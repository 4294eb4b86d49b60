// Package envtree loads .env files found in a directory and all of its
// parents. Files closer to the start directory take precedence, and
// variables already present in the environment are never overwritten.
package envtree

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config holds the configuration for the environment loader
type Config struct {
	// EnvFileName is the name of the env file to search for (default: ".env")
	EnvFileName string

	// Dir is where the search starts (default: the working directory)
	Dir string

	// Logger receives a summary of what was loaded (default: slog.Default)
	Logger *slog.Logger

	// Silent suppresses all log output
	Silent bool
}

// DefaultConfig returns a Config with the defaults applied
func DefaultConfig() *Config {
	return &Config{EnvFileName: ".env"}
}

// Loader handles environment file loading
type Loader struct {
	config *Config
}

// New creates a new Loader with the given configuration
func New(config *Config) *Loader {
	if config == nil {
		config = DefaultConfig()
	}
	if config.EnvFileName == "" {
		config.EnvFileName = ".env"
	}
	return &Loader{config: config}
}

func (l *Loader) logger() *slog.Logger {
	if l.config.Logger != nil {
		return l.config.Logger
	}
	return slog.Default()
}

// Load searches for environment files and loads them. Finding none is not
// an error.
func (l *Loader) Load() error {
	paths, err := l.Paths()
	if err != nil {
		return err
	}

	if len(paths) == 0 {
		if !l.config.Silent {
			l.logger().Debug("no env files found", "name", l.config.EnvFileName)
		}
		return nil
	}

	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	if !l.config.Silent {
		l.logger().Info("loaded env files", "count", len(paths), "paths", paths)
	}
	return nil
}

// Paths returns every matching file from the start directory up to the
// filesystem root, nearest first
func (l *Loader) Paths() ([]string, error) {
	dir := l.config.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	var paths []string
	for {
		path := filepath.Join(dir, l.config.EnvFileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			paths = append(paths, path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return paths, nil
}

// LoadDefault loads .env files upward from the working directory
func LoadDefault() error {
	return New(nil).Load()
}
