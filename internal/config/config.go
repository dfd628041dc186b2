// Package config loads tool settings from an optional home-relative YAML
// file layered over compiled-in defaults. Components receive their settings
// explicitly; nothing reads this at global scope.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"

	"github.com/alfdav/tempfox/internal/identity"
)

// Config holds every tunable the CLI exposes through its config file.
type Config struct {
	Region               string   `koanf:"region"`
	OutputFormat         string   `koanf:"output_format"`
	Retention            int      `koanf:"retention"`
	VerifyTimeoutSeconds int      `koanf:"verify_timeout_seconds"`
	ScanTimeoutSeconds   int      `koanf:"scan_timeout_seconds"`
	ScanBinary           string   `koanf:"scan_binary"`
	ScanArgs             []string `koanf:"scan_args"`
	ExpiredMarkers       []string `koanf:"expired_markers"`
	AuthMarkers          []string `koanf:"auth_markers"`
	Regions              []string `koanf:"regions"`
}

func (c Config) VerifyTimeout() time.Duration {
	return time.Duration(c.VerifyTimeoutSeconds) * time.Second
}

func (c Config) ScanTimeout() time.Duration {
	return time.Duration(c.ScanTimeoutSeconds) * time.Second
}

// commonRegions is the selection menu offered during profile creation.
var commonRegions = []string{
	"us-east-1",
	"us-east-2",
	"us-west-1",
	"us-west-2",
	"eu-west-1",
	"eu-west-2",
	"eu-central-1",
	"ap-southeast-1",
	"ap-southeast-2",
	"ap-northeast-1",
	"ca-central-1",
	"sa-east-1",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"region":                 "",
		"output_format":          "json",
		"retention":              5,
		"verify_timeout_seconds": 30,
		"scan_timeout_seconds":   600,
		"scan_binary":            "cloudfox",
		"scan_args":              []string{"aws", "all-checks"},
		"expired_markers":        identity.DefaultExpiredMarkers,
		"auth_markers":           identity.DefaultAuthMarkers,
		"regions":                commonRegions,
	}
}

// DefaultPath returns the standard location of the config file.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "tempfox", "config.yaml")
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "tempfox", "config.yaml")
}

// Load builds the configuration from defaults plus the YAML file at path, if
// one exists. An empty path uses DefaultPath.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load default config: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return c, nil
}
