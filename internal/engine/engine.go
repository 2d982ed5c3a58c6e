// Package engine orchestrates bulk chunk movement for one transfer against
// any transport that speaks the chunk contract: bounded concurrency,
// per-chunk retry with linear backoff, and size-based resume.
package engine

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dropwire/dropwire/config"
	"github.com/dropwire/dropwire/internal/chunker"
	"github.com/dropwire/dropwire/internal/errdefs"
	"github.com/dropwire/dropwire/internal/manifest"
	"github.com/dropwire/dropwire/pkg/logging"
)

// Sink is the upload side of a transport.
type Sink interface {
	Create(ctx context.Context, m *manifest.Manifest) error
	PutChunk(ctx context.Context, chunkID int, data []byte) error
}

// Source is the download side of a transport. Chunk ids are global ids in
// the manifest's flattened space.
type Source interface {
	Manifest(ctx context.Context) (*manifest.Manifest, error)
	GetChunk(ctx context.Context, chunkID int) ([]byte, error)
}

// ProgressFunc receives (completedChunks, totalChunks) once per finished
// chunk. Completion order across chunks is unspecified. A panicking
// callback never aborts the transfer.
type ProgressFunc func(completed, total int)

// Engine drives uploads and downloads with a bounded worker pool.
type Engine struct {
	chunker     *chunker.Chunker
	workers     int
	maxAttempts int
	baseDelay   time.Duration
}

// New creates an engine around a chunker with explicit tuning.
func New(c *chunker.Chunker, workers, maxAttempts int, baseDelay time.Duration) *Engine {
	if workers < 1 {
		workers = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Engine{chunker: c, workers: workers, maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// NewFromConfig creates an engine tuned by the loaded configuration.
func NewFromConfig(c *chunker.Chunker) *Engine {
	cfg := config.Get()
	workers := cfg.MaxParallelChunks
	if workers < cfg.MinParallelChunks {
		workers = cfg.MinParallelChunks
	}
	return New(c, workers, cfg.MaxRetryAttempts, cfg.RetryDelay)
}

// chunkTask is one unit of pool work: a global chunk id bound to the
// file-local position it reads from or writes to.
type chunkTask struct {
	globalID int
	localID  int
	path     string
}

// Upload registers the transfer on the sink and pushes every chunk. Folder
// manifests are flattened into one global id space in file order; the same
// computation maps them back on download. Chunks the sink already accepted
// stay in place on failure; per-chunk writes are idempotent, so a retried
// upload simply overwrites.
func (e *Engine) Upload(ctx context.Context, sink Sink, m *manifest.Manifest, onProgress ProgressFunc) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := sink.Create(ctx, m); err != nil {
		return err
	}

	var tasks []chunkTask
	for _, r := range m.Ranges() {
		fm, err := m.FileAt(r.FileIndex)
		if err != nil {
			return err
		}
		for local := 0; local < r.Count; local++ {
			tasks = append(tasks, chunkTask{globalID: r.Start + local, localID: local, path: fm.FilePath})
		}
	}

	total := m.TotalChunks()
	var completed atomic.Int64

	err := e.runPool(ctx, tasks, func(ctx context.Context, task chunkTask) error {
		data, err := e.chunker.ReadChunk(task.path, task.localID)
		if err != nil {
			return err
		}
		if err := e.withRetry(ctx, task.globalID, func() error {
			return sink.PutChunk(ctx, task.globalID, data)
		}); err != nil {
			return err
		}
		e.notify(onProgress, int(completed.Add(1)), total)
		return nil
	})
	if err != nil {
		return err
	}

	logging.L().WithField("chunks", total).Debug("upload complete")
	return nil
}

// Download fetches the manifest, computes the missing-chunk set per
// destination file from local state alone, and pulls only those chunks.
// Each chunk lands at its own byte offset, so concurrent writers never
// overlap. After all chunks land, every file's digest is checked against
// the manifest; a mismatch is reported as HashMismatch, never auto-retried.
func (e *Engine) Download(ctx context.Context, src Source, outputPath string, onProgress ProgressFunc) error {
	m, err := src.Manifest(ctx)
	if err != nil {
		return err
	}

	type verifyTarget struct {
		path string
		hash string
	}

	var tasks []chunkTask
	var targets []verifyTarget
	total := m.TotalChunks()

	for _, r := range m.Ranges() {
		fm, err := m.FileAt(r.FileIndex)
		if err != nil {
			return err
		}
		dest := outputPath
		if m.Type == manifest.TypeFolder {
			dest = filepath.Join(outputPath, filepath.FromSlash(fm.RelativePath))
		}
		for _, local := range e.chunker.MissingChunks(dest, fm.TotalChunks) {
			tasks = append(tasks, chunkTask{globalID: r.Start + local, localID: local, path: dest})
		}
		targets = append(targets, verifyTarget{path: dest, hash: fm.Hash})
	}

	var completed atomic.Int64
	completed.Store(int64(total - len(tasks)))

	err = e.runPool(ctx, tasks, func(ctx context.Context, task chunkTask) error {
		var data []byte
		if err := e.withRetry(ctx, task.globalID, func() error {
			var getErr error
			data, getErr = src.GetChunk(ctx, task.globalID)
			return getErr
		}); err != nil {
			return err
		}
		if err := e.chunker.WriteChunk(task.path, task.localID, data); err != nil {
			return err
		}
		e.notify(onProgress, int(completed.Add(1)), total)
		return nil
	})
	if err != nil {
		return err
	}

	var mismatched []string
	for _, t := range targets {
		if !e.chunker.VerifyFile(t.path, t.hash) {
			mismatched = append(mismatched, t.path)
		}
	}
	if len(mismatched) > 0 {
		return errdefs.HashMismatch("downloaded content does not match manifest digest: %s", strings.Join(mismatched, ", "))
	}

	logging.L().WithField("chunks", total).Debug("download complete and verified")
	return nil
}

// runPool feeds tasks to a bounded set of workers. The first failure wins
// and cancels the rest; completion order is unspecified.
func (e *Engine) runPool(ctx context.Context, tasks []chunkTask, fn func(context.Context, chunkTask) error) error {
	if len(tasks) == 0 {
		return nil
	}

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	taskChan := make(chan chunkTask)
	var wg sync.WaitGroup
	var errOnce sync.Once
	var poolErr error

	fail := func(err error) {
		errOnce.Do(func() {
			poolErr = err
			cancel()
		})
	}

	workers := e.workers
	if workers > len(tasks) {
		workers = len(tasks)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskChan {
				if poolCtx.Err() != nil {
					return
				}
				if err := fn(poolCtx, task); err != nil {
					fail(err)
					return
				}
			}
		}()
	}

feed:
	for _, task := range tasks {
		select {
		case taskChan <- task:
		case <-poolCtx.Done():
			break feed
		}
	}
	close(taskChan)
	wg.Wait()

	if poolErr != nil {
		return poolErr
	}
	return ctx.Err()
}

// withRetry runs op up to the attempt cap, sleeping baseDelay × attempt
// between tries. Only transient failures are retried; exhausting the
// budget returns Exhausted wrapping the last chunk-level error.
func (e *Engine) withRetry(ctx context.Context, chunkID int, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !errdefs.IsRetryable(err) {
			return err
		}
		lastErr = err
		logging.L().WithField("chunk_id", chunkID).WithField("attempt", attempt).
			WithError(err).Debug("transient chunk failure, backing off")

		if attempt < e.maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.baseDelay * time.Duration(attempt)):
			}
		}
	}
	return errdefs.Exhausted(lastErr, "chunk %d failed after %d attempts", chunkID, e.maxAttempts)
}

// notify invokes the progress callback, swallowing panics so a broken
// callback cannot abort the transfer.
func (e *Engine) notify(onProgress ProgressFunc, completed, total int) {
	if onProgress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.L().WithField("panic", r).Warn("progress callback panicked")
		}
	}()
	onProgress(completed, total)
}
