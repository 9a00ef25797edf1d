// Package config holds the CLI configuration types and their loading rules.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Role represents the user's chosen role (host or peer).
type Role string

const (
	RoleHost Role = "host"
	RolePeer Role = "peer"
)

// Default configuration values.
const (
	DefaultPort          = 7200
	DefaultHost          = "127.0.0.1"
	DefaultFPS           = 15
	DefaultWidth         = 640
	DefaultHeight        = 360
	DefaultStatsInterval = 5 * time.Second
)

// Environment variables consulted by Load.
const (
	EnvPort    = "QUICKSCREEN_PORT"
	EnvHost    = "QUICKSCREEN_HOST"
	EnvControl = "QUICKSCREEN_CONTROL"
	EnvFPS     = "QUICKSCREEN_FPS"
	EnvDebug   = "QUICKSCREEN_DEBUG"
)

// Config stores all parameters of one run.
type Config struct {
	Role      Role
	Port      int    // Host: UDP port to bind. Peer: the host's UDP port
	Host      string // Peer: host address to join
	LocalPort int    // Peer: local UDP port, 0 picks one
	ClientID  uint16 // Peer: 0 picks a random id

	FPS    int // Host: test pattern frame rate
	Width  int // Host: test pattern width
	Height int // Host: test pattern height

	ControlAddr string // Host: control server listen address, empty disables it
	Debug       bool
}

// Options carries CLI flag values. Zero values mean "not set".
type Options struct {
	Port        int
	Host        string
	LocalPort   int
	ClientID    uint16
	FPS         int
	Width       int
	Height      int
	ControlAddr string
	Debug       bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(role Role, opts Options) (*Config, error) {
	// Port: CLI flag > env > default
	port := opts.Port
	if port == 0 {
		v, err := envInt(EnvPort)
		if err != nil {
			return nil, err
		}
		port = v
	}
	if port == 0 {
		port = DefaultPort
	}

	// Host: CLI flag > env > default
	host := opts.Host
	if host == "" {
		host = os.Getenv(EnvHost)
	}
	if host == "" {
		host = DefaultHost
	}

	// Frame rate: CLI flag > env > default
	fps := opts.FPS
	if fps == 0 {
		v, err := envInt(EnvFPS)
		if err != nil {
			return nil, err
		}
		fps = v
	}
	if fps == 0 {
		fps = DefaultFPS
	}

	// Control server: CLI flag > env, disabled by default
	control := opts.ControlAddr
	if control == "" {
		control = os.Getenv(EnvControl)
	}

	// Debug: either source enables it
	debug := opts.Debug
	if !debug {
		if v := os.Getenv(EnvDebug); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", EnvDebug, err)
			}
			debug = b
		}
	}

	width, height := opts.Width, opts.Height
	if width == 0 {
		width = DefaultWidth
	}
	if height == 0 {
		height = DefaultHeight
	}

	return &Config{
		Role:        role,
		Port:        port,
		Host:        host,
		LocalPort:   opts.LocalPort,
		ClientID:    opts.ClientID,
		FPS:         fps,
		Width:       width,
		Height:      height,
		ControlAddr: control,
		Debug:       debug,
	}, nil
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// Validate checks the values used by the configured role.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}

	switch c.Role {
	case RoleHost:
		if c.FPS < 1 || c.FPS > 120 {
			return fmt.Errorf("fps out of range: %d", c.FPS)
		}
		if c.Width < 1 || c.Height < 1 {
			return fmt.Errorf("invalid frame size: %dx%d", c.Width, c.Height)
		}
	case RolePeer:
		if c.Host == "" {
			return errors.New("host address is required")
		}
		if c.LocalPort < 0 || c.LocalPort > 65535 {
			return fmt.Errorf("local port out of range: %d", c.LocalPort)
		}
	default:
		return fmt.Errorf("unknown role: %q", c.Role)
	}
	return nil
}

// HostAddr returns the host:port a peer joins.
func (c *Config) HostAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
