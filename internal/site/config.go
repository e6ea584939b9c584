package site

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when CONFIG is unset.
const DefaultConfigPath = "config.json"

//go:embed config.schema.json
var configSchema string

// Duration decodes from a Go duration string such as "30s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// TransportConfig tunes the HTTP layer.
type TransportConfig struct {
	Timeout              Duration `json:"timeout,omitempty"`
	MaxRetries           *int     `json:"maxRetries,omitempty"`
	UserAgent            string   `json:"userAgent,omitempty"`
	RateLimit            float64  `json:"rateLimit,omitempty"` // requests per second per host, 0 = unlimited
	BlockPrivateNetworks bool     `json:"blockPrivateNetworks,omitempty"`
}

// FallbackConfig overrides the markers that send a failed REST write to the legacy API.
type FallbackConfig struct {
	Markers              []string `json:"markers,omitempty"`
	ForbiddenTokenMarker string   `json:"forbiddenTokenMarker,omitempty"`
	Disabled             bool     `json:"disabled,omitempty"`
}

// DiscoveryConfig replaces the script paths tried when an unknown wiki URL is resolved.
type DiscoveryConfig struct {
	ScriptPaths []string `json:"scriptPaths,omitempty"`
}

// Config is the startup configuration. It is read once and never written back.
type Config struct {
	DefaultWiki string                `json:"defaultWiki"`
	Language    string                `json:"language,omitempty"`
	Wikis       map[string]Descriptor `json:"wikis"`
	Transport   TransportConfig       `json:"transport"`
	Fallback    FallbackConfig        `json:"fallback"`
	Discovery   DiscoveryConfig       `json:"discovery"`

	// Source is the file the config came from, empty for the built-in default.
	Source string `json:"-"`
}

// DefaultConfig is used when no configuration file exists at the default path.
func DefaultConfig() *Config {
	return &Config{
		DefaultWiki: "en.wikipedia.org",
		Language:    "en",
		Wikis: map[string]Descriptor{
			"en.wikipedia.org": {
				Sitename:    "Wikipedia",
				Server:      "https://en.wikipedia.org",
				ArticlePath: "/wiki",
				ScriptPath:  "/w",
			},
			"localhost:8080": {
				Sitename:    "Local MediaWiki Docker",
				Server:      "http://localhost:8080",
				ArticlePath: "/wiki",
				ScriptPath:  "/w",
			},
		},
	}
}

// LoadConfig reads the file named by CONFIG (default config.json) and applies
// MEDIAWIKI_* environment overrides. A missing file at the default path yields
// the built-in config; a missing file at an explicit CONFIG path is an error.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	cfg, err := LoadConfigFile(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		cfg = DefaultConfig()
	default:
		return nil, err
	}

	if err := applyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return cfg, nil
}

// LoadConfigFile parses and validates a JSON or YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		var y any
		if err := yaml.Unmarshal(data, &y); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if data, err = json.Marshal(y); err != nil {
			return nil, fmt.Errorf("failed to convert config %s: %w", path, err)
		}
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := validateConfig(doc); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if _, ok := cfg.Wikis[cfg.DefaultWiki]; !ok {
		return nil, fmt.Errorf("default wiki %q not found in %s", cfg.DefaultWiki, path)
	}
	cfg.Source = path
	return &cfg, nil
}

func validateConfig(doc any) error {
	schema, err := jsonschema.CompileString("config.schema.json", configSchema)
	if err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := firstLeaf(ve)
			loc := leaf.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			return fmt.Errorf("at %s: %s", loc, leaf.Message)
		}
		return err
	}
	return nil
}

func firstLeaf(err *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(err.Causes) > 0 {
		err = err.Causes[0]
	}
	return err
}

// applyEnv overlays MEDIAWIKI_* variables onto cfg.
func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("MEDIAWIKI_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MEDIAWIKI_TIMEOUT: %w", err)
		}
		cfg.Transport.Timeout = Duration(d)
	}
	if v := getenv("MEDIAWIKI_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("MEDIAWIKI_MAX_RETRIES: must be a non-negative integer, got %q", v)
		}
		cfg.Transport.MaxRetries = &n
	}
	if v := getenv("MEDIAWIKI_USER_AGENT"); v != "" {
		cfg.Transport.UserAgent = v
	}
	if v := getenv("MEDIAWIKI_LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := getenv("MEDIAWIKI_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("MEDIAWIKI_RATE_LIMIT: must be a non-negative number, got %q", v)
		}
		cfg.Transport.RateLimit = f
	}
	if v := getenv("MEDIAWIKI_BLOCK_PRIVATE_NETWORKS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MEDIAWIKI_BLOCK_PRIVATE_NETWORKS: %w", err)
		}
		cfg.Transport.BlockPrivateNetworks = b
	}
	return nil
}

// NewRegistryFromConfig builds the registry described by cfg.
func NewRegistryFromConfig(cfg *Config) (*Registry, error) {
	return NewRegistry(cfg.DefaultWiki, cfg.Wikis)
}
