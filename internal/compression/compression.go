// Package compression wraps klauspost/compress/snappy behind the same
// Algorithm/Config/Compressor shape this codebase's compression layer uses
// elsewhere, narrowed to the one algorithm that fits small, hot JSON blobs
// written to the Coordination Store: no dictionary setup, fast enough to
// run on every inventory/transaction write.
package compression

import (
	"fmt"

	"github.com/klauspost/compress/snappy"
)

// Algorithm represents a compression algorithm.
type Algorithm int

const (
	// AlgorithmNone indicates no compression.
	AlgorithmNone Algorithm = iota
	// AlgorithmSnappy is fast compression with moderate ratio.
	AlgorithmSnappy
)

// String returns the string representation of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmSnappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// Config holds compression configuration.
type Config struct {
	Algorithm Algorithm
}

// DefaultConfig returns the default compression configuration (Snappy).
func DefaultConfig() *Config {
	return &Config{Algorithm: AlgorithmSnappy}
}

// SnappyConfig returns configuration for Snappy.
func SnappyConfig() *Config {
	return &Config{Algorithm: AlgorithmSnappy}
}

// NoneConfig returns configuration for no compression.
func NoneConfig() *Config {
	return &Config{Algorithm: AlgorithmNone}
}

// Compressor handles data compression.
type Compressor struct {
	config *Config
}

// NewCompressor creates a new compressor with the given configuration.
func NewCompressor(config *Config) (*Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	return &Compressor{config: config}, nil
}

// NewSnappyCompressor is a convenience constructor for the Snappy-only
// compressor used to shrink Coordination Store blobs.
func NewSnappyCompressor() *Compressor {
	c, _ := NewCompressor(SnappyConfig())
	return c
}

// Compress compresses the input data.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	switch c.config.Algorithm {
	case AlgorithmNone:
		return data, nil
	case AlgorithmSnappy:
		return snappy.Encode(nil, data), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %v", c.config.Algorithm)
	}
}

// Decompress decompresses the input data.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	switch c.config.Algorithm {
	case AlgorithmNone:
		return data, nil
	case AlgorithmSnappy:
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode snappy: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %v", c.config.Algorithm)
	}
}

// Close releases resources held by the compressor. Kept for parity with the
// zstd-backed compressor this one was narrowed from; snappy holds nothing
// that needs releasing.
func (c *Compressor) Close() error {
	return nil
}

// CompressionRatio calculates the compression ratio.
func CompressionRatio(originalSize, compressedSize int) float64 {
	if originalSize == 0 {
		return 0
	}
	return float64(compressedSize) / float64(originalSize)
}

// SpaceSavings calculates the space savings percentage.
func SpaceSavings(originalSize, compressedSize int) float64 {
	if originalSize == 0 {
		return 0
	}
	return (1.0 - CompressionRatio(originalSize, compressedSize)) * 100
}
