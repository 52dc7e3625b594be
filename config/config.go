// Package config loads and generates the evoarc-dns TOML configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/semihalev/zlog/v2"
)

const configver = "1.0.0"

// Config type
type Config struct {
	Version         string
	Bind            string
	API             string
	Provider        string
	FallbackServers []string
	UseHTTP3        bool `toml:"use_http3"`
	AccessList      []string
	RateLimit       int
	CacheSize       int
	CacheTTL        Duration `toml:"cache_ttl"`
	AnswerTTL       uint32   `toml:"answer_ttl"`
	QueryTimeout    Duration `toml:"query_timeout"`
	ResolveTimeout  Duration `toml:"resolve_timeout"`
	LogLevel        string

	sVersion string
}

// ServerVersion returns the running build version.
func (c *Config) ServerVersion() string {
	return c.sVersion
}

// Duration type
type Duration struct {
	time.Duration
}

// UnmarshalText for duration type
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

var defaultConfig = `
# Config version, config and build versions can be different.
version = "%s"

# Address to bind to for the local DNS proxy. Port 5353 avoids the
# privileged port 53.
bind = "127.0.0.1:5353"

# Address to bind to for the http control API, left blank for disabled.
api = "127.0.0.1:8053"

# Active DNS-over-HTTPS provider [cloudflare, google, quad9]
provider = "cloudflare"

# Plain DNS fallback resolver addresses with port, tried after the DoH
# strategies and before the system resolver. Left empty for disabled.
# fallbackservers = [
#	"8.8.8.8:53",
#	"8.8.4.4:53"
# ]
fallbackservers = [
]

# Use HTTP/3 for wire-format DoH queries.
use_http3 = false

# Which clients allowed to query the local proxy. The proxy is meant
# for the local host only, widen with care.
accesslist = [
"127.0.0.0/8",
"::1/128"
]

# Query based ratelimit per second, 0 for disabled.
ratelimit = 0

# Resolution cache size (total hostnames in cache).
cachesize = 4096

# How long a resolved address is trusted before re-resolution.
cache_ttl = "300s"

# TTL in seconds stamped on synthesized answer records.
answer_ttl = 300

# Network timeout for each upstream http query.
query_timeout = "5s"

# Overall deadline for one resolution across all strategies.
resolve_timeout = "8s"

# What kind of information should be logged, Log verbosity level [error,warn,info,debug]
loglevel = "info"
`

// Load loads the given config file, generating a default one if it
// does not exist.
func Load(cfgfile, version string) (*Config, error) {
	config := new(Config)

	if _, err := os.Stat(cfgfile); os.IsNotExist(err) {
		if err := generateConfig(cfgfile); err != nil {
			return nil, err
		}
	}

	zlog.Info("Loading config file", "path", cfgfile)

	if _, err := toml.DecodeFile(cfgfile, config); err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	if config.Version != configver {
		zlog.Warn("Config file is out of version, you can generate new one and check the changes.")
	}

	config.sVersion = version
	config.defaults()

	return config, nil
}

func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:5353"
	}
	if c.Provider == "" {
		c.Provider = "cloudflare"
	}
	if len(c.AccessList) == 0 {
		c.AccessList = []string{"127.0.0.0/8", "::1/128"}
	}
	if c.CacheSize == 0 {
		c.CacheSize = 4096
	}
	if c.CacheTTL.Duration == 0 {
		c.CacheTTL.Duration = 300 * time.Second
	}
	if c.AnswerTTL == 0 {
		c.AnswerTTL = 300
	}
	if c.QueryTimeout.Duration == 0 {
		c.QueryTimeout.Duration = 5 * time.Second
	}
	if c.ResolveTimeout.Duration == 0 {
		c.ResolveTimeout.Duration = 8 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func generateConfig(path string) error {
	output, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not generate config: %w", err)
	}

	defer func() {
		if err := output.Close(); err != nil {
			zlog.Warn("Config generation failed while file closing", "error", err.Error())
		}
	}()

	r := strings.NewReader(fmt.Sprintf(defaultConfig, configver))
	if _, err := io.Copy(output, r); err != nil {
		return fmt.Errorf("could not copy default config: %w", err)
	}

	if abs, err := filepath.Abs(path); err == nil {
		zlog.Info("Default config file generated", "config", abs)
	}

	return nil
}
