package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// key binds a dotted config key to its field
type key struct {
	get func(*Config) any
	set func(*Config, string) error
}

var keys = map[string]key{
	"log_level": {
		get: func(c *Config) any { return c.LogLevel },
		set: func(c *Config, v string) error {
			v = strings.ToLower(v)
			if !validLevels[v] {
				return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", v)
			}
			c.LogLevel = v
			return nil
		},
	},
	"log_pretty": {
		get: func(c *Config) any { return c.LogPretty },
		set: boolSetter(func(c *Config) *bool { return &c.LogPretty }),
	},
	"log_file": {
		get: func(c *Config) any { return c.LogFile },
		set: func(c *Config, v string) error { c.LogFile = v; return nil },
	},
	"capture.paint_cursors": {
		get: func(c *Config) any { return c.Capture.PaintCursors },
		set: boolSetter(func(c *Config) *bool { return &c.Capture.PaintCursors }),
	},
	"capture.prefer_dmabuf": {
		get: func(c *Config) any { return c.Capture.PreferDmabuf },
		set: boolSetter(func(c *Config) *bool { return &c.Capture.PreferDmabuf }),
	},
	"capture.max_free_buffers": {
		get: func(c *Config) any { return c.Capture.MaxFreeBuffers },
		set: intSetter(func(c *Config) *int { return &c.Capture.MaxFreeBuffers }),
	},
	"thumbnail.width": {
		get: func(c *Config) any { return c.Thumbnail.Width },
		set: intSetter(func(c *Config) *int { return &c.Thumbnail.Width }),
	},
	"thumbnail.height": {
		get: func(c *Config) any { return c.Thumbnail.Height },
		set: intSetter(func(c *Config) *int { return &c.Thumbnail.Height }),
	},
	"update_buffer": {
		get: func(c *Config) any { return c.UpdateBuffer },
		set: intSetter(func(c *Config) *int { return &c.UpdateBuffer }),
	},
	"settle_timeout": {
		get: func(c *Config) any { return c.SettleTimeout },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", v)
			}
			c.SettleTimeout = d
			return nil
		},
	},
}

func boolSetter(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s (use: true or false)", v)
		}
		*field(c) = b
		return nil
	}
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid number: %s", v)
		}
		*field(c) = n
		return nil
	}
}

// Keys lists the settable configuration keys
func Keys() []string {
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Value returns the value stored under a dotted key
func (m *Manager) Value(name string) (any, error) {
	k, ok := keys[name]
	if !ok {
		return nil, fmt.Errorf("configuration key not found: %s", name)
	}
	return k.get(m.Get()), nil
}

// Set parses value for a dotted key, validates the result and saves it
func (m *Manager) Set(name, value string) error {
	k, ok := keys[name]
	if !ok {
		return fmt.Errorf("configuration key not found: %s", name)
	}
	cfg := m.Get()
	if err := k.set(cfg, value); err != nil {
		return err
	}
	return m.Update(cfg)
}
