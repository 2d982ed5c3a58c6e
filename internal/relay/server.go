package relay

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/dropwire/dropwire/internal/httpapi"
	"github.com/dropwire/dropwire/internal/manifest"
	"github.com/dropwire/dropwire/pkg/logging"
)

// Server exposes the Store over HTTP.
type Server struct {
	store *Store
}

// CreateTransferRequest is the create-transfer body.
type CreateTransferRequest struct {
	TransferID string             `json:"transfer_id"`
	Manifest   *manifest.Manifest `json:"manifest"`
}

// CreateTransferResponse acknowledges session creation.
type CreateTransferResponse struct {
	Status      string `json:"status"`
	TransferID  string `json:"transfer_id"`
	TotalChunks int    `json:"total_chunks"`
}

// ChunkUploadResponse returns the stored chunk's hash and size so the
// client can cross-check what the relay accepted.
type ChunkUploadResponse struct {
	Status  string `json:"status"`
	ChunkID int    `json:"chunk_id"`
	Hash    string `json:"hash"`
	Size    int64  `json:"size"`
}

// NewServer wraps a store.
func NewServer(store *Store) *Server {
	return &Server{store: store}
}

// Router builds the relay API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/transfer/create", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/transfer/{transfer_id}/chunk/{chunk_id:[0-9]+}", s.handleUploadChunk).Methods(http.MethodPost)
	r.HandleFunc("/transfer/{transfer_id}/chunk/{chunk_id:[0-9]+}", s.handleDownloadChunk).Methods(http.MethodGet)
	r.HandleFunc("/transfer/{transfer_id}/manifest", s.handleManifest).Methods(http.MethodGet)
	r.HandleFunc("/transfer/{transfer_id}/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/transfer/{transfer_id}", s.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/cleanup", s.handleCleanup).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	return r
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteErrorMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.TransferID == "" || req.Manifest == nil {
		httpapi.WriteErrorMessage(w, http.StatusBadRequest, "transfer_id and manifest are required")
		return
	}

	if err := s.store.Create(req.TransferID, req.Manifest); err != nil {
		httpapi.WriteError(w, err)
		return
	}

	logging.L().WithFields(map[string]interface{}{
		"transfer_id":  req.TransferID,
		"total_chunks": req.Manifest.TotalChunks(),
	}).Info("transfer created")

	httpapi.WriteJSON(w, http.StatusOK, CreateTransferResponse{
		Status:      "created",
		TransferID:  req.TransferID,
		TotalChunks: req.Manifest.TotalChunks(),
	})
}

func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	transferID := vars["transfer_id"]
	chunkID, err := strconv.Atoi(vars["chunk_id"])
	if err != nil {
		httpapi.WriteErrorMessage(w, http.StatusBadRequest, "invalid chunk id")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		httpapi.WriteErrorMessage(w, http.StatusBadRequest, "failed to read chunk body")
		return
	}

	hash, size, err := s.store.PutChunk(transferID, chunkID, data)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, ChunkUploadResponse{
		Status:  "uploaded",
		ChunkID: chunkID,
		Hash:    hash,
		Size:    size,
	})
}

func (s *Server) handleDownloadChunk(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	transferID := vars["transfer_id"]
	chunkID, err := strconv.Atoi(vars["chunk_id"])
	if err != nil {
		httpapi.WriteErrorMessage(w, http.StatusBadRequest, "invalid chunk id")
		return
	}

	data, err := s.store.GetChunk(transferID, chunkID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.L().WithError(err).Warn("chunk write to client interrupted")
	}
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetManifest(mux.Vars(r)["transfer_id"])
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, m)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.store.Status(mux.Vars(r)["transfer_id"])
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, status)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	transferID := mux.Vars(r)["transfer_id"]
	if err := s.store.Delete(transferID); err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{
		"status":      "deleted",
		"transfer_id": transferID,
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := s.store.Sweep()
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if removed == nil {
		removed = []string{}
	}

	logging.L().WithField("deleted_count", len(removed)).Info("cleanup sweep finished")

	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "cleaned",
		"deleted_count":     len(removed),
		"deleted_transfers": removed,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{
		"service": "dropwire relay",
		"status":  "running",
		"version": "1.0.0",
	})
}
