// Package config parses cache configuration objects.
//
// A configuration is a small JSON object; comments and trailing commas are
// accepted (JSONC). Keys that are absent keep their default value. Values are
// not validated here: range checks and fallbacks happen when the cache is
// constructed, so the same rules apply to configs built in code.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"
)

var (
	errConfigInvalid  = errors.New("invalid config")
	errConfigRead     = errors.New("cannot read config file")
	errDurationSyntax = errors.New("invalid duration")
)

// Verbosity levels. Every level includes the lower ones.
const (
	VerboseNone      = 0
	VerboseException = 1
	VerboseError     = 2
	VerboseWarning   = 3
	VerboseDebug1    = 4
	VerboseDebug2    = 5
	VerboseDebug3    = 6
)

// Defaults used by Default.
const (
	DefaultShards = 1024
	DefaultExpire = 60 * time.Second
	DefaultVacuum = 10 * time.Minute
)

// Config holds the recognized settings.
type Config struct {
	VerboseLevel int   `json:"verbose_lvl"` //nolint:tagliatelle // snake_case for config file
	Shards       int   `json:"shards_cnt"`  //nolint:tagliatelle // snake_case for config file
	ForceSet     bool  `json:"force_set"`   //nolint:tagliatelle // snake_case for config file
	MaxSize      int64 `json:"max_size"`    //nolint:tagliatelle // snake_case for config file
	ExpireNs     int64 `json:"expire_ns"`   //nolint:tagliatelle // snake_case for config file
	VacuumNs     int64 `json:"vacuum_ns"`   //nolint:tagliatelle // snake_case for config file

	// Human-friendly alternatives to ExpireNs/VacuumNs, e.g. "90s".
	// When set they win over the nanosecond fields.
	Expire string `json:"expire,omitempty"`
	Vacuum string `json:"vacuum,omitempty"`
}

// Default returns the configuration used when a key is absent.
// MaxSize is 0, which makes the cache derive its size from available memory.
func Default() Config {
	return Config{
		VerboseLevel: VerboseError,
		Shards:       DefaultShards,
		ExpireNs:     int64(DefaultExpire),
		VacuumNs:     int64(DefaultVacuum),
	}
}

// Parse decodes a JSONC configuration object on top of Default().
// Empty input yields Default().
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: invalid JSONC: %w", errConfigInvalid, err)
	}
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", errConfigInvalid, err)
	}

	if cfg.Expire != "" {
		d, err := parseDuration("expire", cfg.Expire)
		if err != nil {
			return Config{}, err
		}
		cfg.ExpireNs = int64(d)
	}
	if cfg.Vacuum != "" {
		d, err := parseDuration("vacuum", cfg.Vacuum)
		if err != nil {
			return Config{}, err
		}
		cfg.VacuumNs = int64(d)
	}
	return cfg, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigRead, path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Marshal serializes the config as plain JSON, e.g. for the handle boundary.
func (c Config) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// ExpireDuration returns ExpireNs as a time.Duration.
func (c Config) ExpireDuration() time.Duration { return time.Duration(c.ExpireNs) }

// VacuumDuration returns VacuumNs as a time.Duration.
func (c Config) VacuumDuration() time.Duration { return time.Duration(c.VacuumNs) }

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w %s=%q", errConfigInvalid, errDurationSyntax, field, s)
	}
	return d, nil
}
