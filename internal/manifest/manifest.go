// Package manifest defines the immutable description of a transfer: what is
// being sent, how it is chunked, and the digests used to verify it. A
// manifest is serialized once by the sender and read thereafter by the
// relay, the signaling hub and the receiver.
package manifest

import (
	"github.com/dropwire/dropwire/internal/errdefs"
)

// Type discriminates the two manifest variants explicitly. Consumers must
// switch on Type rather than probe for optional fields.
type Type string

const (
	TypeFile   Type = "file"
	TypeFolder Type = "folder"
)

// Chunk describes one addressable slice of a file. Every chunk except
// possibly the last has length exactly chunkSize.
type Chunk struct {
	ID   int    `json:"id"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// FileManifest describes a single file. RelativePath is set only when the
// file is a member of a folder manifest.
type FileManifest struct {
	FileName     string  `json:"fileName"`
	FilePath     string  `json:"filePath"`
	RelativePath string  `json:"relativePath,omitempty"`
	Size         int64   `json:"size"`
	ChunkSize    int64   `json:"chunkSize"`
	TotalChunks  int     `json:"totalChunks"`
	Hash         string  `json:"hash"`
	Chunks       []Chunk `json:"chunks"`
}

// FolderManifest describes a directory tree. Files are ordered; the folder's
// global chunk-id space is the concatenation of each file's chunk ids in
// file order.
type FolderManifest struct {
	FolderName  string         `json:"folderName"`
	FolderPath  string         `json:"folderPath"`
	TotalSize   int64          `json:"totalSize"`
	TotalFiles  int            `json:"totalFiles"`
	ChunkSize   int64          `json:"chunkSize"`
	Files       []FileManifest `json:"files"`
}

// Manifest is the tagged union over the two variants. Exactly one of File
// and Folder is non-nil, matching Type.
type Manifest struct {
	Type   Type            `json:"type"`
	File   *FileManifest   `json:"file,omitempty"`
	Folder *FolderManifest `json:"folder,omitempty"`
}

// NewFile wraps a single-file manifest.
func NewFile(f *FileManifest) *Manifest {
	return &Manifest{Type: TypeFile, File: f}
}

// NewFolder wraps a folder manifest.
func NewFolder(f *FolderManifest) *Manifest {
	return &Manifest{Type: TypeFolder, Folder: f}
}

// Validate checks that the union is well-formed: the variant matches the
// tag and the chunk list is contiguous from zero.
func (m *Manifest) Validate() error {
	switch m.Type {
	case TypeFile:
		if m.File == nil || m.Folder != nil {
			return errdefs.InvalidInput("manifest tagged %q must carry exactly the file variant", m.Type)
		}
		return m.File.validate()
	case TypeFolder:
		if m.Folder == nil || m.File != nil {
			return errdefs.InvalidInput("manifest tagged %q must carry exactly the folder variant", m.Type)
		}
		if m.Folder.ChunkSize <= 0 {
			return errdefs.InvalidInput("folder manifest has non-positive chunk size %d", m.Folder.ChunkSize)
		}
		for i := range m.Folder.Files {
			if err := m.Folder.Files[i].validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		return errdefs.InvalidInput("unknown manifest type %q", m.Type)
	}
}

func (f *FileManifest) validate() error {
	if f.ChunkSize <= 0 {
		return errdefs.InvalidInput("file %q has non-positive chunk size %d", f.FileName, f.ChunkSize)
	}
	if len(f.Chunks) != f.TotalChunks {
		return errdefs.InvalidInput("file %q declares %d chunks but lists %d", f.FileName, f.TotalChunks, len(f.Chunks))
	}
	for i, c := range f.Chunks {
		if c.ID != i {
			return errdefs.InvalidInput("file %q chunk list is not contiguous at index %d", f.FileName, i)
		}
	}
	return nil
}

// TotalChunks is the size of the manifest's global chunk-id space.
func (m *Manifest) TotalChunks() int {
	switch m.Type {
	case TypeFile:
		return m.File.TotalChunks
	case TypeFolder:
		total := 0
		for i := range m.Folder.Files {
			total += m.Folder.Files[i].TotalChunks
		}
		return total
	}
	return 0
}

// ChunkSize returns the fixed chunk size of the manifest.
func (m *Manifest) ChunkSize() int64 {
	switch m.Type {
	case TypeFile:
		return m.File.ChunkSize
	case TypeFolder:
		return m.Folder.ChunkSize
	}
	return 0
}

// TotalBytes is the full payload size in bytes.
func (m *Manifest) TotalBytes() int64 {
	switch m.Type {
	case TypeFile:
		return m.File.Size
	case TypeFolder:
		return m.Folder.TotalSize
	}
	return 0
}

// DisplayName is the user-facing name of the transfer.
func (m *Manifest) DisplayName() string {
	switch m.Type {
	case TypeFile:
		return m.File.FileName
	case TypeFolder:
		return m.Folder.FolderName
	}
	return ""
}

// Range maps one file of the manifest into the global chunk-id space:
// global ids [Start, Start+Count) correspond to the file's local chunk ids
// [0, Count).
type Range struct {
	FileIndex int
	Start     int
	Count     int
}

// Ranges computes the order-preserving flattening of per-file chunk ids
// into the single global id space. Upload, download and the LAN client all
// share this one computation; any divergence between the two directions
// would silently corrupt destination files.
func (m *Manifest) Ranges() []Range {
	switch m.Type {
	case TypeFile:
		return []Range{{FileIndex: 0, Start: 0, Count: m.File.TotalChunks}}
	case TypeFolder:
		ranges := make([]Range, 0, len(m.Folder.Files))
		offset := 0
		for i := range m.Folder.Files {
			n := m.Folder.Files[i].TotalChunks
			ranges = append(ranges, Range{FileIndex: i, Start: offset, Count: n})
			offset += n
		}
		return ranges
	}
	return nil
}

// Locate resolves a global chunk id to its owning file index and the
// file-local chunk id. ok is false when the id falls outside the manifest.
func (m *Manifest) Locate(globalID int) (fileIndex, localID int, ok bool) {
	if globalID < 0 {
		return 0, 0, false
	}
	for _, r := range m.Ranges() {
		if globalID < r.Start+r.Count {
			return r.FileIndex, globalID - r.Start, true
		}
	}
	return 0, 0, false
}

// FileAt returns the file manifest for the given file index.
func (m *Manifest) FileAt(index int) (*FileManifest, error) {
	switch m.Type {
	case TypeFile:
		if index != 0 {
			return nil, errdefs.InvalidInput("file index %d out of range for single-file manifest", index)
		}
		return m.File, nil
	case TypeFolder:
		if index < 0 || index >= len(m.Folder.Files) {
			return nil, errdefs.InvalidInput("file index %d out of range (%d files)", index, len(m.Folder.Files))
		}
		return &m.Folder.Files[index], nil
	}
	return nil, errdefs.InvalidInput("unknown manifest type %q", m.Type)
}
