package rpcmesh

import "time"

// Config holds the RPC Mesh's HTTP server settings. Unlike the node-wide
// internal/config.Config (which also carries Redis and peer-list settings
// consumed by internal/store and internal/txn), Config here is purely about
// how this node's HTTP listener behaves.
type Config struct {
	Host string
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64

	EnableCORS     bool
	AllowedOrigins []string

	EnableLogging bool
	EnableGraphQL bool
}

// DefaultConfig returns sensible defaults for local development; production
// wiring in cmd/server overrides Host/Port/EnableGraphQL from
// internal/config.Config.
func DefaultConfig() *Config {
	return &Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxRequestSize: 1 * 1024 * 1024,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		EnableLogging:  true,
		EnableGraphQL:  false,
	}
}
