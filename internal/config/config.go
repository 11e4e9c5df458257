// Package config loads node configuration from the environment, following
// the same Config-struct-plus-DefaultConfig shape used throughout this
// codebase's server packages.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds everything a node needs at boot: its own identity, the HTTP
// and UDP port it shares, the full peer list (including itself, in order),
// and how to reach the Coordination Store.
type Config struct {
	NodeName   string   // NOME_SERVIDOR
	Port       int      // PORTA_SERVIDOR, shared by HTTP and UDP
	Peers      []string // SERVIDORES_JOGO, comma-separated, order significant
	RedisHost  string   // REDIS_HOST
	RedisPort  int      // REDIS_PORT

	EnableGraphQL bool
	MaxRequestSize int64
}

// DefaultConfig returns sensible local-dev defaults.
func DefaultConfig() *Config {
	return &Config{
		NodeName:       "node-local",
		Port:           8000,
		Peers:          []string{"http://localhost:8000"},
		RedisHost:      "localhost",
		RedisPort:      6379,
		EnableGraphQL:  false,
		MaxRequestSize: 1 << 20,
	}
}

// Load reads configuration from the environment, falling back to
// DefaultConfig for anything unset. Environment variables use the wire
// names from spec.md §6 verbatim since they are the contract the Docker
// Compose deployment and peers rely on.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("NOME_SERVIDOR"); v != "" {
		cfg.NodeName = v
	}

	if v := os.Getenv("PORTA_SERVIDOR"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORTA_SERVIDOR %q: %w", v, err)
		}
		cfg.Port = port
	}

	if v := os.Getenv("SERVIDORES_JOGO"); v != "" {
		peers := strings.Split(v, ",")
		for i := range peers {
			peers[i] = strings.TrimSpace(peers[i])
		}
		cfg.Peers = peers
	}

	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.RedisHost = v
	}

	if v := os.Getenv("REDIS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT %q: %w", v, err)
		}
		cfg.RedisPort = port
	}

	return cfg, nil
}

// RedisAddr returns host:port for the configured Coordination Store.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// SelfURL returns this node's own base URL as it would appear in Peers,
// used to recognize "self" during deterministic peer iteration.
func (c *Config) SelfURL() string {
	return fmt.Sprintf("http://%s:%d", c.NodeName, c.Port)
}
