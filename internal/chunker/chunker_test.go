package chunker

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/dropwire/dropwire/internal/errdefs"
)

func writeTempFile(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("failed to generate test data: %v", err)
	}
	path := filepath.Join(t.TempDir(), "payload.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path, data
}

func TestCreateFileManifestChunkCountAndSizes(t *testing.T) {
	c := New(1024)
	path, data := writeTempFile(t, 2560) // 2.5 chunks

	fm, err := c.CreateFileManifest(path)
	if err != nil {
		t.Fatalf("CreateFileManifest: %v", err)
	}

	if fm.TotalChunks != 3 {
		t.Fatalf("TotalChunks = %d, want 3", fm.TotalChunks)
	}
	if len(fm.Chunks) != 3 {
		t.Fatalf("len(Chunks) = %d, want 3", len(fm.Chunks))
	}
	if fm.Chunks[0].Size != 1024 || fm.Chunks[1].Size != 1024 || fm.Chunks[2].Size != 512 {
		t.Errorf("chunk sizes = %d/%d/%d, want 1024/1024/512",
			fm.Chunks[0].Size, fm.Chunks[1].Size, fm.Chunks[2].Size)
	}
	if fm.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", fm.Size, len(data))
	}
	if fm.Hash != HashBytes(data) {
		t.Error("whole-file hash does not match independently computed digest")
	}
}

func TestCreateFileManifestHashesMatchReadChunk(t *testing.T) {
	c := New(512)
	path, _ := writeTempFile(t, 1300)

	fm, err := c.CreateFileManifest(path)
	if err != nil {
		t.Fatalf("CreateFileManifest: %v", err)
	}

	for _, chunk := range fm.Chunks {
		data, err := c.ReadChunk(path, chunk.ID)
		if err != nil {
			t.Fatalf("ReadChunk(%d): %v", chunk.ID, err)
		}
		if HashBytes(data) != chunk.Hash {
			t.Errorf("chunk %d: ReadChunk digest does not match manifest hash", chunk.ID)
		}
		if int64(len(data)) != chunk.Size {
			t.Errorf("chunk %d: ReadChunk returned %d bytes, manifest says %d", chunk.ID, len(data), chunk.Size)
		}
	}
}

func TestCreateFileManifestMissingFile(t *testing.T) {
	c := New(1024)
	_, err := c.CreateFileManifest(filepath.Join(t.TempDir(), "nope.bin"))
	if !errdefs.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestWriteChunkOutOfOrderRoundTrip(t *testing.T) {
	c := New(256)
	src, data := writeTempFile(t, 1000)

	fm, err := c.CreateFileManifest(src)
	if err != nil {
		t.Fatalf("CreateFileManifest: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "out", "payload.bin")
	// Reassemble the file writing the chunks in reverse order.
	for id := fm.TotalChunks - 1; id >= 0; id-- {
		chunk, err := c.ReadChunk(src, id)
		if err != nil {
			t.Fatalf("ReadChunk(%d): %v", id, err)
		}
		if err := c.WriteChunk(dst, id, chunk); err != nil {
			t.Fatalf("WriteChunk(%d): %v", id, err)
		}
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("failed to read reassembled file: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("reassembled bytes differ from the source")
	}
	if !c.VerifyFile(dst, fm.Hash) {
		t.Error("VerifyFile rejected a correct reassembly")
	}
}

func TestReadChunkBeyondEOF(t *testing.T) {
	c := New(512)
	path, _ := writeTempFile(t, 600)

	if _, err := c.ReadChunk(path, 5); err == nil {
		t.Fatal("expected an error reading past the end of the file")
	} else if errdefs.CategoryOf(err) != errdefs.CategoryIOFailure {
		t.Errorf("expected io_failure, got %v", err)
	}
}

func TestVerifyChunkDetectsCorruption(t *testing.T) {
	c := New(256)
	path, _ := writeTempFile(t, 700)

	fm, err := c.CreateFileManifest(path)
	if err != nil {
		t.Fatalf("CreateFileManifest: %v", err)
	}
	if !c.VerifyChunk(path, 1, fm.Chunks[1].Hash) {
		t.Fatal("VerifyChunk rejected an intact chunk")
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("failed to reopen test file: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xff, 0x00, 0xff}, 300); err != nil {
		t.Fatalf("failed to corrupt test file: %v", err)
	}
	f.Close()

	if c.VerifyChunk(path, 1, fm.Chunks[1].Hash) {
		t.Error("VerifyChunk accepted a corrupted chunk")
	}
	if c.VerifyFile(path, fm.Hash) {
		t.Error("VerifyFile accepted a corrupted file")
	}
}

func TestMissingChunks(t *testing.T) {
	c := New(256)
	dir := t.TempDir()

	absent := filepath.Join(dir, "absent.bin")
	missing := c.MissingChunks(absent, 4)
	if len(missing) != 4 || missing[0] != 0 || missing[3] != 3 {
		t.Fatalf("absent file: missing = %v, want [0 1 2 3]", missing)
	}

	partial := filepath.Join(dir, "partial.bin")
	if err := os.WriteFile(partial, make([]byte, 512), 0644); err != nil {
		t.Fatalf("failed to write partial file: %v", err)
	}
	missing = c.MissingChunks(partial, 4)
	if len(missing) != 2 || missing[0] != 2 || missing[1] != 3 {
		t.Fatalf("partial file: missing = %v, want [2 3]", missing)
	}

	// A trailing short chunk counts as downloaded only once the full size
	// is on disk.
	complete := filepath.Join(dir, "complete.bin")
	if err := os.WriteFile(complete, make([]byte, 900), 0644); err != nil {
		t.Fatalf("failed to write complete file: %v", err)
	}
	if missing = c.MissingChunks(complete, 3); len(missing) != 0 {
		t.Fatalf("complete file: missing = %v, want none", missing)
	}
}

func TestCreateFolderManifest(t *testing.T) {
	c := New(256)
	root := t.TempDir()

	if err := os.MkdirAll(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatalf("failed to create subdirectory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.txt"), make([]byte, 300), 0644); err != nil {
		t.Fatalf("failed to write a.txt: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "b.txt"), make([]byte, 700), 0644); err != nil {
		t.Fatalf("failed to write b.txt: %v", err)
	}

	folder, err := c.CreateFolderManifest(root)
	if err != nil {
		t.Fatalf("CreateFolderManifest: %v", err)
	}

	if folder.TotalFiles != 2 || len(folder.Files) != 2 {
		t.Fatalf("TotalFiles = %d, want 2", folder.TotalFiles)
	}
	if folder.TotalSize != 1000 {
		t.Errorf("TotalSize = %d, want 1000", folder.TotalSize)
	}

	var rels []string
	for _, f := range folder.Files {
		rels = append(rels, f.RelativePath)
	}
	if rels[0] != "a.txt" || rels[1] != "sub/b.txt" {
		t.Errorf("relative paths = %v, want [a.txt sub/b.txt]", rels)
	}
}

func TestCreateFolderManifestRejectsFile(t *testing.T) {
	c := New(256)
	path, _ := writeTempFile(t, 10)
	if _, err := c.CreateFolderManifest(path); errdefs.CategoryOf(err) != errdefs.CategoryInvalidInput {
		t.Fatalf("expected invalid_input for a regular file, got %v", err)
	}
}
