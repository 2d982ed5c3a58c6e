package engine

import (
	"testing"
	"time"
)

func TestTrackerSnapshot(t *testing.T) {
	tr := NewTracker(4, 1024, 4096)

	snap := tr.Update(2, 4)
	if snap.Completed != 2 || snap.Total != 4 {
		t.Fatalf("snapshot counts = %d/%d, want 2/4", snap.Completed, snap.Total)
	}
	if snap.Percent != 50 {
		t.Errorf("Percent = %v, want 50", snap.Percent)
	}

	snap = tr.Update(4, 4)
	if snap.Percent != 100 {
		t.Errorf("Percent = %v, want 100", snap.Percent)
	}
	if snap.ETA != 0 {
		t.Errorf("ETA = %v at completion, want 0", snap.ETA)
	}
}

func TestTrackerZeroTotal(t *testing.T) {
	tr := NewTracker(0, 1024, 0)
	snap := tr.Update(0, 0)
	if snap.Percent != 0 {
		t.Errorf("Percent = %v for empty transfer, want 0", snap.Percent)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{int64(1.5 * 1024 * 1024 * 1024), "1.5 GB"},
	}
	for _, c := range cases {
		if got := FormatBytes(c.in); got != c.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
	}
	for _, c := range cases {
		if got := FormatDuration(c.in); got != c.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
