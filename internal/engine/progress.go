package engine

import (
	"fmt"
	"sync"
	"time"
)

// Tracker turns raw (completed, total) progress ticks into speed and ETA
// figures for display. It is safe for concurrent Update calls from pool
// workers.
type Tracker struct {
	mu         sync.Mutex
	chunkSize  int64
	totalBytes int64
	startTime  time.Time
	completed  int
	total      int
}

// Snapshot is one point-in-time view of a transfer.
type Snapshot struct {
	Completed int
	Total     int
	Percent   float64
	Speed     float64 // bytes per second
	ETA       time.Duration
}

// NewTracker creates a tracker for a transfer of total chunks of chunkSize
// bytes (totalBytes bounds the last chunk's remainder).
func NewTracker(total int, chunkSize, totalBytes int64) *Tracker {
	return &Tracker{
		chunkSize:  chunkSize,
		totalBytes: totalBytes,
		startTime:  time.Now(),
		total:      total,
	}
}

// Update records a progress tick and returns the current snapshot.
func (t *Tracker) Update(completed, total int) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completed = completed
	t.total = total

	bytesDone := int64(completed) * t.chunkSize
	if bytesDone > t.totalBytes {
		bytesDone = t.totalBytes
	}

	snap := Snapshot{Completed: completed, Total: total}
	if total > 0 {
		snap.Percent = float64(completed) / float64(total) * 100
	}

	elapsed := time.Since(t.startTime).Seconds()
	if elapsed > 0 {
		snap.Speed = float64(bytesDone) / elapsed
	}
	if snap.Speed > 0 && t.totalBytes > bytesDone {
		snap.ETA = time.Duration(float64(t.totalBytes-bytesDone)/snap.Speed) * time.Second
	}
	return snap
}

// FormatBytes renders a byte count in human-readable units.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration renders a duration in coarse human units.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	return fmt.Sprintf("%.0fh", d.Hours())
}
