// Package chunker slices files into fixed-size chunks, hashes them, and
// performs the positioned reads and writes every transport relies on.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dropwire/dropwire/config"
	"github.com/dropwire/dropwire/internal/errdefs"
	"github.com/dropwire/dropwire/internal/manifest"
)

// Chunker performs all chunk-level IO for one transfer mode. The chunk size
// is fixed for its lifetime, matching the manifests it produces.
type Chunker struct {
	chunkSize int64
}

// New creates a Chunker with an explicit chunk size.
func New(chunkSize int64) *Chunker {
	return &Chunker{chunkSize: chunkSize}
}

// NewForMode picks the configured chunk size for a transfer mode
// ("lan", "p2p" or "relay"); unknown modes fall back to the relay size.
func NewForMode(mode string) *Chunker {
	return New(config.ChunkSizeFor(mode))
}

// ChunkSize returns the fixed chunk size.
func (c *Chunker) ChunkSize() int64 { return c.chunkSize }

// CreateFileManifest builds the manifest for a single file in one streaming
// pass, computing each chunk digest and the whole-file digest together.
func (c *Chunker) CreateFileManifest(path string) (*manifest.FileManifest, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdefs.NotFound("", "file not found: %s", path)
		}
		return nil, errdefs.IOFailure(err, "failed to open %s", path)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, errdefs.IOFailure(err, "failed to stat %s", path)
	}
	size := info.Size()
	totalChunks := int((size + c.chunkSize - 1) / c.chunkSize)

	fileHash := sha256.New()
	chunks := make([]manifest.Chunk, 0, totalChunks)

	buf := make([]byte, c.chunkSize)
	id := 0
	for {
		n, err := io.ReadFull(file, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, errdefs.IOFailure(err, "failed to read chunk %d of %s", id, path)
		}
		if n == 0 {
			break
		}

		chunkHash := sha256.Sum256(buf[:n])
		fileHash.Write(buf[:n])
		chunks = append(chunks, manifest.Chunk{
			ID:   id,
			Hash: hex.EncodeToString(chunkHash[:]),
			Size: int64(n),
		})
		id++

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
	}

	return &manifest.FileManifest{
		FileName:    info.Name(),
		FilePath:    path,
		Size:        size,
		ChunkSize:   c.chunkSize,
		TotalChunks: totalChunks,
		Hash:        hex.EncodeToString(fileHash.Sum(nil)),
		Chunks:      chunks,
	}, nil
}

// CreateFolderManifest walks the directory tree rooted at path, building a
// file manifest for every regular file in deterministic walk order.
func (c *Chunker) CreateFolderManifest(path string) (*manifest.FolderManifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdefs.InvalidInput("folder not found: %s", path)
		}
		return nil, errdefs.IOFailure(err, "failed to stat %s", path)
	}
	if !info.IsDir() {
		return nil, errdefs.InvalidInput("not a directory: %s", path)
	}

	folder := &manifest.FolderManifest{
		FolderName: filepath.Base(path),
		FolderPath: path,
		ChunkSize:  c.chunkSize,
	}

	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return errdefs.IOFailure(err, "failed to walk %s", p)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fm, err := c.CreateFileManifest(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return errdefs.IOFailure(err, "failed to relativize %s", p)
		}
		fm.RelativePath = filepath.ToSlash(rel)

		folder.Files = append(folder.Files, *fm)
		folder.TotalSize += fm.Size
		folder.TotalFiles++
		return nil
	})
	if err != nil {
		return nil, err
	}

	return folder, nil
}

// ReadChunk reads chunk id from path: exactly chunkSize bytes, or the
// remainder for the final chunk. Fails when the file does not reach the
// chunk's offset.
func (c *Chunker) ReadChunk(path string, id int) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errdefs.IOFailure(err, "failed to open %s", path)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, errdefs.IOFailure(err, "failed to stat %s", path)
	}

	offset := int64(id) * c.chunkSize
	if offset >= info.Size() {
		return nil, errdefs.IOFailure(nil, "chunk %d starts at %d, beyond file size %d", id, offset, info.Size())
	}

	n := c.chunkSize
	if offset+n > info.Size() {
		n = info.Size() - offset
	}

	buf := make([]byte, n)
	if _, err := file.ReadAt(buf, offset); err != nil {
		return nil, errdefs.IOFailure(err, "failed to read chunk %d of %s", id, path)
	}
	return buf, nil
}

// WriteChunk writes data at chunk id's byte offset, creating the file and
// its parent directories if needed. Bytes outside the written range are
// never touched, so concurrent writers on distinct ids do not interfere.
func (c *Chunker) WriteChunk(path string, id int, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errdefs.IOFailure(err, "failed to create parent directories for %s", path)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return errdefs.IOFailure(err, "failed to open %s for writing", path)
	}
	defer file.Close()

	if _, err := file.WriteAt(data, int64(id)*c.chunkSize); err != nil {
		return errdefs.IOFailure(err, "failed to write chunk %d to %s", id, path)
	}
	return nil
}

// VerifyChunk recomputes chunk id's digest and compares it to the expected
// value. A mismatch is a false result, never an error.
func (c *Chunker) VerifyChunk(path string, id int, expectedHash string) bool {
	data, err := c.ReadChunk(path, id)
	if err != nil {
		return false
	}
	return HashBytes(data) == expectedHash
}

// VerifyFile recomputes the whole-file digest and compares it to the
// expected value.
func (c *Chunker) VerifyFile(path string, expectedHash string) bool {
	actual, err := HashFile(path)
	if err != nil {
		return false
	}
	return actual == expectedHash
}

// MissingChunks computes which chunk ids still need downloading, derived
// purely from the destination's current size: an absent file is missing
// everything, otherwise floor(size/chunkSize) chunks count as downloaded
// and the contiguous tail is missing.
//
// Known limitation: this assumes chunks complete in strictly increasing,
// gap-free order. It is a size-based approximation, not a per-id record;
// out-of-order partial writes can make it over-report progress.
func (c *Chunker) MissingChunks(path string, totalChunks int) []int {
	info, err := os.Stat(path)
	if err != nil {
		missing := make([]int, totalChunks)
		for i := range missing {
			missing[i] = i
		}
		return missing
	}

	downloaded := int(info.Size() / c.chunkSize)
	if downloaded > totalChunks {
		downloaded = totalChunks
	}
	missing := make([]int, 0, totalChunks-downloaded)
	for i := downloaded; i < totalChunks; i++ {
		missing = append(missing, i)
	}
	return missing
}

// HashFile computes the sha256 digest of a whole file.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errdefs.IOFailure(err, "failed to open %s", path)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", errdefs.IOFailure(err, "failed to hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes computes the sha256 digest of a chunk's bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
