// Package relay implements the relay side of a transfer: durable chunk
// storage on the filesystem, the HTTP API in front of it, and the client
// the transfer engine drives against that API.
package relay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dropwire/dropwire/internal/chunker"
	"github.com/dropwire/dropwire/internal/errdefs"
	"github.com/dropwire/dropwire/internal/manifest"
)

const (
	manifestFile = "manifest.json"
	chunkDirName = "chunks"
	chunkPrefix  = "chunk_"
)

// Store persists chunks per transfer under root/{transferID}/chunks and the
// session record under root/{transferID}/manifest.json. There is no shared
// in-memory index: chunk presence is always recomputed from disk, which
// keeps the store correct across process restarts and concurrent writers
// on disjoint chunk ids.
type Store struct {
	root      string
	retention time.Duration

	// now is swappable for sweep tests.
	now func() time.Time
}

// session is the persisted per-transfer record.
type session struct {
	CreatedAt time.Time          `json:"created_at"`
	Manifest  *manifest.Manifest `json:"manifest"`
}

// Status reports which chunks a transfer holds. Complete is a count
// comparison against the manifest total, not an identity check of ids.
type Status struct {
	TransferID      string  `json:"transfer_id"`
	TotalChunks     int     `json:"total_chunks"`
	UploadedChunks  int     `json:"uploaded_chunks"`
	Progress        float64 `json:"progress"`
	AvailableChunks []int   `json:"available_chunks"`
	Complete        bool    `json:"complete"`
}

// NewStore creates a filesystem-backed store rooted at root. Transfers
// older than retention are eligible for Sweep.
func NewStore(root string, retention time.Duration) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errdefs.IOFailure(err, "failed to create storage root %s", root)
	}
	return &Store{root: root, retention: retention, now: time.Now}, nil
}

func (s *Store) transferDir(transferID string) string {
	return filepath.Join(s.root, transferID)
}

func (s *Store) chunkDir(transferID string) string {
	return filepath.Join(s.transferDir(transferID), chunkDirName)
}

func (s *Store) chunkPath(transferID string, chunkID int) string {
	name := chunkPrefix + padChunkID(chunkID)
	return filepath.Join(s.chunkDir(transferID), name)
}

// padChunkID formats ids so chunk files sort in numeric order.
func padChunkID(id int) string {
	n := strconv.Itoa(id)
	for len(n) < 6 {
		n = "0" + n
	}
	return n
}

// Create allocates storage for a transfer and persists its manifest with a
// creation timestamp. Re-creating an existing transfer overwrites the
// manifest and keeps any chunks already uploaded.
func (s *Store) Create(transferID string, m *manifest.Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.chunkDir(transferID), 0755); err != nil {
		return errdefs.IOFailure(err, "failed to create transfer directory for %s", transferID)
	}

	rec := session{CreatedAt: s.now(), Manifest: m}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errdefs.IOFailure(err, "failed to encode session record for %s", transferID)
	}
	if err := os.WriteFile(filepath.Join(s.transferDir(transferID), manifestFile), data, 0644); err != nil {
		return errdefs.IOFailure(err, "failed to persist manifest for %s", transferID)
	}
	return nil
}

// PutChunk writes one chunk, overwrite-safe and idempotent, and returns the
// content hash and length for the client's cross-check.
func (s *Store) PutChunk(transferID string, chunkID int, data []byte) (hash string, size int64, err error) {
	if _, statErr := os.Stat(s.chunkDir(transferID)); statErr != nil {
		return "", 0, errdefs.NotFound(errdefs.ReasonTransferUnknown, "transfer %s not found", transferID)
	}

	if err := os.WriteFile(s.chunkPath(transferID, chunkID), data, 0644); err != nil {
		return "", 0, errdefs.IOFailure(err, "failed to write chunk %d of %s", chunkID, transferID)
	}
	return chunker.HashBytes(data), int64(len(data)), nil
}

// GetChunk returns a chunk's bytes. The NotFound reason distinguishes an
// unknown transfer from a chunk the sender has not uploaded yet, so a
// resuming client can tell "give up" from "wait and retry".
func (s *Store) GetChunk(transferID string, chunkID int) ([]byte, error) {
	data, err := os.ReadFile(s.chunkPath(transferID, chunkID))
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, errdefs.IOFailure(err, "failed to read chunk %d of %s", chunkID, transferID)
	}

	if _, statErr := os.Stat(s.transferDir(transferID)); statErr != nil {
		return nil, errdefs.NotFound(errdefs.ReasonTransferUnknown, "transfer %s not found", transferID)
	}
	return nil, errdefs.NotFound(errdefs.ReasonChunkPending, "chunk %d of %s not yet uploaded", chunkID, transferID)
}

// GetManifest loads a transfer's manifest.
func (s *Store) GetManifest(transferID string) (*manifest.Manifest, error) {
	rec, err := s.readSession(transferID)
	if err != nil {
		return nil, err
	}
	return rec.Manifest, nil
}

func (s *Store) readSession(transferID string) (*session, error) {
	data, err := os.ReadFile(filepath.Join(s.transferDir(transferID), manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdefs.NotFound(errdefs.ReasonTransferUnknown, "transfer %s not found", transferID)
		}
		return nil, errdefs.IOFailure(err, "failed to read session record for %s", transferID)
	}

	var rec session
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errdefs.ManifestCorrupt(err, "unreadable session record for %s", transferID)
	}
	if rec.Manifest == nil {
		return nil, errdefs.ManifestCorrupt(nil, "session record for %s has no manifest", transferID)
	}
	return &rec, nil
}

// Status scans the stored chunk files and reports sorted ids, counts and a
// percentage. A zero-chunk manifest reports 0 progress.
func (s *Store) Status(transferID string) (*Status, error) {
	rec, err := s.readSession(transferID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.chunkDir(transferID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdefs.NotFound(errdefs.ReasonTransferUnknown, "transfer %s not found", transferID)
		}
		return nil, errdefs.IOFailure(err, "failed to scan chunks of %s", transferID)
	}

	var available []int
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, chunkPrefix) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(name, chunkPrefix))
		if err != nil {
			continue
		}
		available = append(available, id)
	}
	sort.Ints(available)

	total := rec.Manifest.TotalChunks()
	progress := 0.0
	if total > 0 {
		progress = float64(len(available)) / float64(total) * 100
	}

	return &Status{
		TransferID:      transferID,
		TotalChunks:     total,
		UploadedChunks:  len(available),
		Progress:        progress,
		AvailableChunks: available,
		Complete:        len(available) == total,
	}, nil
}

// Delete removes all state for a transfer.
func (s *Store) Delete(transferID string) error {
	if _, err := os.Stat(s.transferDir(transferID)); err != nil {
		return errdefs.NotFound(errdefs.ReasonTransferUnknown, "transfer %s not found", transferID)
	}
	if err := os.RemoveAll(s.transferDir(transferID)); err != nil {
		return errdefs.IOFailure(err, "failed to delete transfer %s", transferID)
	}
	return nil
}

// Sweep removes every transfer whose session record is older than the
// retention window and returns the removed ids. Transfers with unreadable
// records are skipped, not deleted.
func (s *Store) Sweep() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errdefs.IOFailure(err, "failed to scan storage root")
	}

	cutoff := s.now().Add(-s.retention)
	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := s.readSession(entry.Name())
		if err != nil {
			continue
		}
		if rec.CreatedAt.Before(cutoff) {
			if err := os.RemoveAll(s.transferDir(entry.Name())); err != nil {
				return removed, errdefs.IOFailure(err, "failed to remove expired transfer %s", entry.Name())
			}
			removed = append(removed, entry.Name())
		}
	}
	return removed, nil
}
