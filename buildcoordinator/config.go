package buildcoordinator

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Config is the coordinator's yaml-file configuration: a versioned root
// struct, a map-keyed storage driver section decoded by name, a log
// section, and an optional redis section.
//
// yaml field names avoid underscores, to keep environment variable
// overrides (FIELD_SUBFIELD style) unambiguous.
type Config struct {
	Version Version `yaml:"version"`
	Log     Log     `yaml:"log"`

	// Storage configures the content store's backing driver, keyed by
	// driver name ("filesystem", "s3", "azure", "aliyun", "swift").
	Storage StorageParameters `yaml:"storage"`

	// Cache configures the binary-archive cache: "memory" (bounded LRU)
	// or "redis".
	Cache CacheConfig `yaml:"cache,omitempty"`

	Redis Redis `yaml:"redis,omitempty"`

	// Backend is the argv of the external build backend command.
	Backend []string `yaml:"backend"`

	// OnFailure selects the sandbox failure policy: "discard" (default)
	// or "preserve".
	OnFailure string `yaml:"onfailure,omitempty"`

	// MaxConcurrentOffload bounds how many blocking operations (sandbox
	// backend commands) may run at once.
	MaxConcurrentOffload int64 `yaml:"maxconcurrentoffload,omitempty"`
}

// Version is a major/minor configuration format version, an X.Y string.
type Version string

// CurrentVersion is the only Version this package currently parses.
var CurrentVersion = Version("0.1")

// UnmarshalYAML validates the version string has the form Major.Minor.
func (v *Version) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid version %q: must be of the form Major.Minor", s)
	}
	*v = Version(s)
	return nil
}

// Loglevel is the level at which the coordinator logs, one of error,
// warn, info, or debug.
type Loglevel string

// UnmarshalYAML lowercases and validates the loglevel string.
func (l *Loglevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	s = strings.ToLower(s)
	switch s {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("invalid loglevel %q: must be one of [error, warn, info, debug]", s)
	}
	*l = Loglevel(s)
	return nil
}

// Log configures the coordinator's logging subsystem.
type Log struct {
	Level     Loglevel               `yaml:"level,omitempty"`
	Formatter string                 `yaml:"formatter,omitempty"` // "text", "json", or "logstash"
	Fields    map[string]interface{} `yaml:"fields,omitempty"`

	// Bugsnag, if non-nil, enables crash reporting of recovered
	// provisioning panics via Shopify/logrus-bugsnag.
	Bugsnag *BugsnagConfig `yaml:"bugsnag,omitempty"`
}

// BugsnagConfig configures the optional bugsnag crash-reporting hook.
type BugsnagConfig struct {
	APIKey      string `yaml:"apikey"`
	ReleaseStage string `yaml:"releasestage,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
}

// StorageParameters is a single-entry, driver-name-keyed parameters map:
// the map key is the backend name, and the value is that backend's
// free-form parameters, decoded by mitchellh/mapstructure into the
// concrete driver's options struct.
type StorageParameters map[string]map[string]interface{}

// Type returns the configured driver name. Panics if more than one is
// present: a config naming two drivers at once is a configuration error,
// not a runtime choice.
func (s StorageParameters) Type() string {
	var names []string
	for k := range s {
		names = append(names, k)
	}
	if len(names) > 1 {
		panic("buildcoordinator: multiple storage drivers specified in configuration: " + strings.Join(names, ", "))
	}
	if len(names) == 1 {
		return names[0]
	}
	return ""
}

// Parameters returns the configured driver's parameter map.
func (s StorageParameters) Parameters() map[string]interface{} {
	return s[s.Type()]
}

// CacheConfig selects and configures the binary-archive cache backend.
type CacheConfig struct {
	Type      string `yaml:"type,omitempty"` // "memory" or "redis"
	Capacity  int    `yaml:"capacity,omitempty"`
	KeyPrefix string `yaml:"keyprefix,omitempty"`
}

// Redis configures the shared redis.UniversalClient used by the redis
// cache backend.
type Redis struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password,omitempty"`
	DB       int      `yaml:"db,omitempty"`
}

// ParseConfig parses and validates a yaml configuration document: decode
// into the current version's struct, check the declared version, and
// leave driver-specific parameter decoding to the caller via
// mapstructure.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("buildcoordinator: parsing configuration: %w", err)
	}
	if c.Version == "" {
		c.Version = CurrentVersion
	}
	if c.Version != CurrentVersion {
		return nil, fmt.Errorf("buildcoordinator: unsupported configuration version %q", c.Version)
	}
	if len(c.Backend) == 0 {
		return nil, fmt.Errorf("buildcoordinator: configuration must set backend")
	}
	return &c, nil
}

// ParseConfigFile reads and parses path.
func ParseConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("buildcoordinator: reading configuration file: %w", err)
	}
	return ParseConfig(data)
}

// ResolveOnFailure maps the configured OnFailure string onto the
// package's OnFailure enum, defaulting to Discard.
func (c *Config) ResolveOnFailure() OnFailure {
	if strings.EqualFold(c.OnFailure, "preserve") {
		return Preserve
	}
	return Discard
}
