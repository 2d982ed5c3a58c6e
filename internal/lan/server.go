// Package lan is the direct local-network transport: the sender serves its
// manifest and chunks over plain HTTP, and the receiver's client presents
// the same chunk contract the relay does, so the generic download engine
// runs against it unmodified.
package lan

import (
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/dropwire/dropwire/internal/chunker"
	"github.com/dropwire/dropwire/internal/compressor"
	"github.com/dropwire/dropwire/internal/errdefs"
	"github.com/dropwire/dropwire/internal/httpapi"
	"github.com/dropwire/dropwire/internal/manifest"
	"github.com/dropwire/dropwire/pkg/logging"
)

// encodingHeader marks a chunk body as lz4-framed on the wire.
const encodingHeader = "X-Content-Encoding"

// Server serves one manifest's chunks to the local network.
type Server struct {
	manifest *manifest.Manifest
	chunker  *chunker.Chunker
}

// NewServer creates a LAN server for a manifest. The chunker must use the
// same chunk size the manifest was built with.
func NewServer(m *manifest.Manifest, c *chunker.Chunker) *Server {
	return &Server{manifest: m, chunker: c}
}

// Router builds the three read-only LAN routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/manifest", s.handleManifest).Methods(http.MethodGet)
	r.HandleFunc("/chunk/{chunk_id:[0-9]+}", s.handleChunk).Methods(http.MethodGet)
	r.HandleFunc("/file/{file_index:[0-9]+}/chunk/{chunk_id:[0-9]+}", s.handleFileChunk).Methods(http.MethodGet)
	return r
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, s.manifest)
}

// handleChunk serves chunk ids for single-file transfers.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	if s.manifest.Type != manifest.TypeFile {
		httpapi.WriteError(w, errdefs.InvalidInput("chunk-by-id requires a single-file transfer"))
		return
	}
	chunkID, _ := strconv.Atoi(mux.Vars(r)["chunk_id"])
	s.serveChunk(w, s.manifest.File, chunkID)
}

// handleFileChunk serves (file index, chunk id) pairs for folder transfers.
func (s *Server) handleFileChunk(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fileIndex, _ := strconv.Atoi(vars["file_index"])
	chunkID, _ := strconv.Atoi(vars["chunk_id"])

	fm, err := s.manifest.FileAt(fileIndex)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	s.serveChunk(w, fm, chunkID)
}

func (s *Server) serveChunk(w http.ResponseWriter, fm *manifest.FileManifest, chunkID int) {
	data, err := s.chunker.ReadChunk(fm.FilePath, chunkID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	body := data
	if !compressor.ShouldSkip(fm.FilePath) {
		compressed, err := compressor.Compress(data)
		if err == nil && len(compressed) < len(data) {
			body = compressed
			w.Header().Set(encodingHeader, "lz4")
		}
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logging.L().WithError(err).Warn("lan chunk write interrupted")
	}
}

// LocalIP discovers the address this host is reachable at on its local
// network by opening a throwaway outbound UDP socket and reading the local
// endpoint back. No packet is ever sent.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
