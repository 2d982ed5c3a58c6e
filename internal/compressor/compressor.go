// Package compressor shrinks LAN chunk bodies on the wire with lz4.
// Compression happens strictly at the transport layer: the bytes a client
// writes to disk after decompression are the exact chunk bytes, so chunk
// hashes and offsets are unaffected.
package compressor

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/dropwire/dropwire/internal/errdefs"
)

// Already-packed formats gain nothing from another compression pass.
var skipExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".zip": true, ".rar": true, ".7z": true, ".gz": true,
	".mp3": true, ".flac": true, ".aac": true,
	".apk": true, ".iso": true,
}

// ShouldSkip reports whether a file's chunks should travel uncompressed.
func ShouldSkip(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return skipExtensions[ext]
}

// Compress lz4-frames a chunk for the wire.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, errdefs.IOFailure(err, "lz4 compression failed")
	}
	if err := writer.Close(); err != nil {
		return nil, errdefs.IOFailure(err, "lz4 compression failed")
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, errdefs.IOFailure(err, "lz4 decompression failed")
	}
	return out, nil
}
