// Package config loads the daemon's key=value configuration file. No
// library in the retrieval pack parses this bespoke format (koanf,
// viper and gookit/ini all assume a structured source format), so this
// loader is a justified stdlib exception; see DESIGN.md. It replaces
// the original's dynamic-attribute materialization with a declared
// struct plus an auxiliary map for unrecognized keys, per spec.md §9.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultPath is the historical default configuration location carried
// forward from the original packaging metadata (spec.md's supplemental
// feature #6); packaging itself remains out of scope.
const DefaultPath = "/etc/opt/cantatadyn.conf"

// Config is the recognized subset of key=value options, per spec.md §6.
type Config struct {
	MPDHost     string
	MPDPort     int
	MPDPassword string
	FilesDir    string
	ActiveFile  string
	LogDir      string
	HTTPPort    int

	// Extra holds any key not recognized above, for forward
	// compatibility, per spec.md §9.
	Extra map[string]string
}

// Load reads path and applies MPD_HOST/MPD_PORT environment overrides
// on top, per spec.md's supplemental feature #2.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	c := &Config{
		MPDPort:  6600,
		HTTPPort: 8080,
		Extra:    map[string]string{},
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		applyKey(c, key, val)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	applyEnvOverrides(c)
	return c, nil
}

func applyKey(c *Config, key, val string) {
	switch key {
	case "mpdHost":
		c.MPDHost = val
	case "mpdPort":
		if n, err := strconv.Atoi(val); err == nil {
			c.MPDPort = n
		}
	case "mpdPassword":
		c.MPDPassword = val
	case "filesDir":
		c.FilesDir = val
	case "activeFile":
		c.ActiveFile = val
	case "logDir":
		c.LogDir = val
	case "httpPort":
		if n, err := strconv.Atoi(val); err == nil {
			c.HTTPPort = n
		}
	default:
		c.Extra[key] = val
	}
}

// applyEnvOverrides mirrors _read_connection_info from cantatadyn.py:
// MPD_HOST may carry an embedded "password@host" and only takes effect
// if longer than 2 characters; MPD_PORT likewise.
func applyEnvOverrides(c *Config) {
	if host := os.Getenv("MPD_HOST"); len(host) > 2 {
		if pw, h, ok := strings.Cut(host, "@"); ok {
			c.MPDPassword = pw
			c.MPDHost = h
		} else {
			c.MPDHost = host
		}
	}
	if port := os.Getenv("MPD_PORT"); len(port) > 2 {
		if n, err := strconv.Atoi(port); err == nil {
			c.MPDPort = n
		}
	}
}
