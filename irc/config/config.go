package config

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrNoPassword is returned by Validate when neither a password nor a
// password hash is configured.
var ErrNoPassword = errors.New("config: a connection password is required")

// Duration is a time.Duration that decodes from strings like "5s" in every
// supported format.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config represents the server configuration
type Config struct {
	// Server settings
	Server struct {
		Name         string `yaml:"name" toml:"name" json:"name" env:"IRCD_SERVER_NAME" validate:"required,printascii"`
		Network      string `yaml:"network" toml:"network" json:"network" env:"IRCD_NETWORK" validate:"required"`
		Host         string `yaml:"host" toml:"host" json:"host" env:"IRCD_HOST"`
		Port         int    `yaml:"port" toml:"port" json:"port" env:"IRCD_PORT" validate:"min=1,max=65535"`
		Password     string `yaml:"password" toml:"password" json:"password" env:"IRCD_PASSWORD"`
		PasswordHash string `yaml:"password_hash" toml:"password_hash" json:"password_hash" env:"IRCD_PASSWORD_HASH"`
	} `yaml:"server" toml:"server" json:"server"`

	// Resource limits
	Limits struct {
		MaxClients        int      `yaml:"max_clients" toml:"max_clients" json:"max_clients" env:"IRCD_MAX_CLIENTS" validate:"min=0"`
		ChannelsPerClient int      `yaml:"channels_per_client" toml:"channels_per_client" json:"channels_per_client" env:"IRCD_CHANNELS_PER_CLIENT" validate:"min=1"`
		WriteTimeout      Duration `yaml:"write_timeout" toml:"write_timeout" json:"write_timeout" env:"IRCD_WRITE_TIMEOUT"`
		FloodRate         float64  `yaml:"flood_rate" toml:"flood_rate" json:"flood_rate" env:"IRCD_FLOOD_RATE" validate:"min=0"`
		FloodBurst        int      `yaml:"flood_burst" toml:"flood_burst" json:"flood_burst" env:"IRCD_FLOOD_BURST" validate:"min=0"`
	} `yaml:"limits" toml:"limits" json:"limits"`

	// Admin HTTP settings
	Admin struct {
		Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled" env:"IRCD_ADMIN_ENABLED"`
		Host    string `yaml:"host" toml:"host" json:"host" env:"IRCD_ADMIN_HOST"`
		Port    int    `yaml:"port" toml:"port" json:"port" env:"IRCD_ADMIN_PORT" validate:"min=0,max=65535"`
	} `yaml:"admin" toml:"admin" json:"admin"`

	// Logging settings
	Log struct {
		Level   string `yaml:"level" toml:"level" json:"level" env:"IRCD_LOG_LEVEL" validate:"oneof=debug info warn error"`
		Format  string `yaml:"format" toml:"format" json:"format" env:"IRCD_LOG_FORMAT" validate:"oneof=text json"`
		NoColor bool   `yaml:"no_color" toml:"no_color" json:"no_color" env:"IRCD_LOG_NO_COLOR"`
	} `yaml:"log" toml:"log" json:"log"`

	// Configuration source, empty when running on defaults
	Source string `yaml:"-" toml:"-" json:"-"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Name = "ft_irc.com"
	cfg.Server.Network = "ft_irc"
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 6667
	cfg.Limits.ChannelsPerClient = 3
	cfg.Limits.WriteTimeout = Duration{5 * time.Second}
	cfg.Limits.FloodBurst = 10
	cfg.Admin.Host = "127.0.0.1"
	cfg.Admin.Port = 8080
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load loads configuration from a file or URL on top of the defaults, then
// applies environment overrides. An empty source loads defaults only.
// The result is not validated; call Validate once command line overrides
// have been applied.
func Load(source string) (*Config, error) {
	cfg := Default()

	if source != "" {
		if err := cfg.loadFromSource(source); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadFromSource loads configuration from a file or URL
func (c *Config) loadFromSource(source string) error {
	var data []byte
	var err error

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source)
		if err != nil {
			return fmt.Errorf("failed to load config from URL: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("failed to load config from URL, status: %s", resp.Status)
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read config from URL: %w", err)
		}
	} else {
		data, err = os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Format follows the extension, YAML otherwise
	switch {
	case strings.HasSuffix(source, ".toml"):
		err = toml.Unmarshal(data, c)
	case strings.HasSuffix(source, ".json"):
		err = json.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config %s: %w", source, err)
	}

	c.Source = source
	return nil
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if strings.ContainsAny(c.Server.Name, " \t") {
		return fmt.Errorf("config: server.name %q contains whitespace", c.Server.Name)
	}
	if c.Server.Password == "" && c.Server.PasswordHash == "" {
		return ErrNoPassword
	}
	if c.Admin.Enabled && c.Admin.Port == 0 {
		return errors.New("config: admin.port is required when admin is enabled")
	}
	return nil
}

// LogLevel maps log.level to a slog level
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	applyEnvOverridesRecursive(reflect.ValueOf(cfg).Elem())
}

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

func applyEnvOverridesRecursive(v reflect.Value) {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)

		if field.PkgPath != "" {
			continue
		}

		if envTag := field.Tag.Get("env"); envTag != "" {
			if envValue, exists := os.LookupEnv(envTag); exists {
				setFieldFromEnv(fieldValue, envValue)
			}
		} else if field.Type.Kind() == reflect.Struct {
			applyEnvOverridesRecursive(fieldValue)
		}
	}
}

// setFieldFromEnv sets a field's value from an environment variable;
// unparsable values leave the field untouched
func setFieldFromEnv(field reflect.Value, envValue string) {
	if field.CanAddr() && field.Addr().Type().Implements(textUnmarshalerType) {
		_ = field.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(envValue))
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v, err := strconv.ParseInt(strings.TrimSpace(envValue), 10, 64); err == nil {
			field.SetInt(v)
		}
	case reflect.Float32, reflect.Float64:
		if v, err := strconv.ParseFloat(strings.TrimSpace(envValue), 64); err == nil {
			field.SetFloat(v)
		}
	case reflect.Bool:
		field.SetBool(parseBool(envValue))
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on":
		return true
	}
	return false
}

// GetListenAddress returns the IRC listen address
func (c *Config) GetListenAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// GetAdminListenAddress returns the admin HTTP listen address
func (c *Config) GetAdminListenAddress() string {
	return net.JoinHostPort(c.Admin.Host, strconv.Itoa(c.Admin.Port))
}
