package compression

import (
	"bytes"
	"strings"
	"testing"
)

func TestCompressorNone(t *testing.T) {
	compressor, err := NewCompressor(NoneConfig())
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer compressor.Close()

	data := []byte("hello world")
	compressed, err := compressor.Compress(data)
	if err != nil {
		t.Fatalf("Failed to compress: %v", err)
	}

	if !bytes.Equal(compressed, data) {
		t.Errorf("Expected no compression, got different data")
	}

	decompressed, err := compressor.Decompress(compressed)
	if err != nil {
		t.Fatalf("Failed to decompress: %v", err)
	}

	if !bytes.Equal(decompressed, data) {
		t.Errorf("Decompressed data doesn't match original")
	}
}

func TestCompressorSnappy(t *testing.T) {
	compressor, err := NewCompressor(SnappyConfig())
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer compressor.Close()

	data := []byte(strings.Repeat("hello world ", 100))

	compressed, err := compressor.Compress(data)
	if err != nil {
		t.Fatalf("Failed to compress: %v", err)
	}

	if len(compressed) >= len(data) {
		t.Logf("Warning: Compressed size (%d) >= original size (%d)", len(compressed), len(data))
	}

	decompressed, err := compressor.Decompress(compressed)
	if err != nil {
		t.Fatalf("Failed to decompress: %v", err)
	}

	if !bytes.Equal(decompressed, data) {
		t.Errorf("Decompressed data doesn't match original")
	}
}

func TestNewSnappyCompressorRoundTrip(t *testing.T) {
	c := NewSnappyCompressor()
	data := []byte(strings.Repeat(`{"tx_id":"abc","status":"PREPARING"}`, 20))

	compressed, err := c.Compress(data)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	decompressed, err := c.Decompress(compressed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(decompressed, data) {
		t.Errorf("round trip mismatch")
	}
}

func TestEmptyData(t *testing.T) {
	compressor, err := NewCompressor(DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer compressor.Close()

	data := []byte{}
	compressed, err := compressor.Compress(data)
	if err != nil {
		t.Fatalf("Failed to compress empty data: %v", err)
	}

	if len(compressed) != 0 {
		t.Errorf("Expected empty compressed data, got %d bytes", len(compressed))
	}

	decompressed, err := compressor.Decompress(compressed)
	if err != nil {
		t.Fatalf("Failed to decompress empty data: %v", err)
	}

	if len(decompressed) != 0 {
		t.Errorf("Expected empty decompressed data, got %d bytes", len(decompressed))
	}
}

func TestCompressionRatioCalculation(t *testing.T) {
	tests := []struct {
		original   int
		compressed int
		wantRatio  float64
		wantSaving float64
	}{
		{1000, 500, 0.5, 50.0},
		{1000, 250, 0.25, 75.0},
		{1000, 1000, 1.0, 0.0},
		{0, 0, 0.0, 0.0},
	}

	for _, tt := range tests {
		ratio := CompressionRatio(tt.original, tt.compressed)
		savings := SpaceSavings(tt.original, tt.compressed)

		if ratio != tt.wantRatio {
			t.Errorf("CompressionRatio(%d, %d) = %f, want %f",
				tt.original, tt.compressed, ratio, tt.wantRatio)
		}

		if savings != tt.wantSaving {
			t.Errorf("SpaceSavings(%d, %d) = %f, want %f",
				tt.original, tt.compressed, savings, tt.wantSaving)
		}
	}
}

func TestAlgorithmString(t *testing.T) {
	tests := []struct {
		algo Algorithm
		want string
	}{
		{AlgorithmNone, "none"},
		{AlgorithmSnappy, "snappy"},
		{Algorithm(999), "unknown"},
	}

	for _, tt := range tests {
		got := tt.algo.String()
		if got != tt.want {
			t.Errorf("Algorithm(%d).String() = %s, want %s", tt.algo, got, tt.want)
		}
	}
}
