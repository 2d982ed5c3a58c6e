package compressor

import (
	"bytes"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("dropwire chunk payload "), 200)

	packed, err := Compress(data)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(packed) >= len(data) {
		t.Errorf("repetitive payload did not shrink: %d -> %d", len(data), len(packed))
	}

	got, err := Decompress(packed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round trip altered the payload")
	}
}

func TestDecompressRejectsGarbage(t *testing.T) {
	if _, err := Decompress([]byte("not an lz4 frame")); err == nil {
		t.Fatal("garbage input should not decompress")
	}
}

func TestShouldSkip(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"movie.MP4", true},
		{"photo.jpg", true},
		{"archive.zip", true},
		{"notes.txt", false},
		{"data.csv", false},
		{"noext", false},
	}
	for _, c := range cases {
		if got := ShouldSkip(c.path); got != c.want {
			t.Errorf("ShouldSkip(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}
