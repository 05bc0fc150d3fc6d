package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/stacklock/pkg/cache"
	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/integrations/pypi"
	"github.com/matzehuels/stacklock/pkg/marker"
)

// Cache backends selectable with the "cache" config key.
const (
	cacheFile   = "file"
	cacheRedis  = "redis"
	cacheMemory = "memory"
	cacheNone   = "none"
)

// Built-in defaults, overridden by the config file and then by flags.
const (
	defaultMaxRounds = 1000
	defaultPrefetch  = 8
	defaultCacheTTL  = 24 * time.Hour
	memoryCacheSize  = 4096
)

// Config is the optional config file, $XDG_CONFIG_HOME/stacklock/config.toml.
type Config struct {
	IndexURL    string             `toml:"index_url"`
	MaxRounds   int                `toml:"max_rounds"`
	Prefetch    int                `toml:"prefetch"`
	Cache       string             `toml:"cache"`
	RedisURL    string             `toml:"redis_url"`
	CacheTTL    duration           `toml:"cache_ttl"`
	CacheScope  string             `toml:"cache_scope"`
	Environment marker.Environment `toml:"environment"`
}

// duration decodes TOML strings like "24h".
type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// defaultConfig returns the built-in settings.
func defaultConfig() Config {
	return Config{
		IndexURL:  pypi.DefaultBaseURL,
		MaxRounds: defaultMaxRounds,
		Prefetch:  defaultPrefetch,
		Cache:     cacheFile,
		CacheTTL:  duration{defaultCacheTTL},
	}
}

// configPath returns the default config file location.
func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName, "config.toml"), nil
}

// loadConfig reads path on top of the defaults. A missing file is not an
// error unless the path was given explicitly.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return defaultConfig(), nil
		}
		return Config{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.New(errors.ErrCodeInvalidInput, "config %s: unknown key %s", path, undecoded[0])
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Cache {
	case cacheFile, cacheRedis, cacheMemory, cacheNone:
	default:
		return errors.New(errors.ErrCodeInvalidInput, "cache must be one of %s, %s, %s, %s, got %q",
			cacheFile, cacheRedis, cacheMemory, cacheNone, c.Cache)
	}
	if c.Cache == cacheRedis && c.RedisURL == "" {
		return errors.New(errors.ErrCodeInvalidInput, "cache = %q needs redis_url", cacheRedis)
	}
	if c.MaxRounds < 0 || c.Prefetch < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "max_rounds and prefetch must not be negative")
	}
	if c.IndexURL != "" {
		if err := errors.ValidateURL(c.IndexURL); err != nil {
			return err
		}
	}
	return nil
}

// environment returns the configured target environment, falling back to
// the host defaults for unset fields.
func (c Config) environment() marker.Environment {
	env := marker.Default()
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	e := c.Environment
	set(&env.OSName, e.OSName)
	set(&env.SysPlatform, e.SysPlatform)
	set(&env.PlatformMachine, e.PlatformMachine)
	set(&env.PlatformRelease, e.PlatformRelease)
	set(&env.PlatformSystem, e.PlatformSystem)
	set(&env.PlatformVersion, e.PlatformVersion)
	// Derived fields are recomputed unless configured.
	if e.PythonVersion != "" || e.PythonFullVersion != "" {
		env.PythonVersion, env.PythonFullVersion = e.PythonVersion, e.PythonFullVersion
		env.ImplementationVersion = ""
	}
	if e.ImplementationName != "" {
		env.ImplementationName = e.ImplementationName
		env.PlatformPythonImplementation = ""
	}
	set(&env.ImplementationVersion, e.ImplementationVersion)
	set(&env.PlatformPythonImplementation, e.PlatformPythonImplementation)
	return env.WithDefaults()
}

// openCache builds the configured cache backend.
func (c Config) openCache() (cache.Cache, error) {
	switch c.Cache {
	case cacheNone:
		return cache.NewNullCache(), nil
	case cacheMemory:
		return cache.NewMemoryCache(memoryCacheSize), nil
	case cacheRedis:
		rc, err := cache.NewRedisCache(c.RedisURL, "")
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return rc, nil
	}
	dir, err := cache.DefaultDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// keyer returns the cache key layout, prefixed with cache_scope when set
// so that several indexes or users can share one Redis.
func (c Config) keyer() cache.Keyer {
	if c.CacheScope == "" {
		return cache.NewDefaultKeyer()
	}
	return cache.NewScopedKeyer(nil, c.CacheScope+":")
}
