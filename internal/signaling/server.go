package signaling

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dropwire/dropwire/internal/httpapi"
	"github.com/dropwire/dropwire/internal/manifest"
	"github.com/dropwire/dropwire/pkg/logging"
)

// Server exposes the hub over HTTP and websockets.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// CreatePairRequest is the create-pair-code body.
type CreatePairRequest struct {
	TransferID string             `json:"transfer_id"`
	Manifest   *manifest.Manifest `json:"manifest"`
}

// CreatePairResponse returns the minted code and its TTL in seconds.
type CreatePairResponse struct {
	PairCode   string `json:"pair_code"`
	TransferID string `json:"transfer_id"`
	ExpiresIn  int64  `json:"expires_in"`
}

// NewServer wraps a hub.
func NewServer(hub *Hub) *Server {
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			// Pairing codes are the access control; the origin is not.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the signaling API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/pair/create", s.handleCreatePair).Methods(http.MethodPost)
	r.HandleFunc("/pair/{code}/info", s.handlePairInfo).Methods(http.MethodGet)
	r.HandleFunc("/ws/{code}/{role}", s.handleWebsocket).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	return r
}

func (s *Server) handleCreatePair(w http.ResponseWriter, r *http.Request) {
	var req CreatePairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteErrorMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	code, ttl, err := s.hub.IssuePairCode(req.TransferID, req.Manifest)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	logging.L().WithFields(map[string]interface{}{
		"pair_code":   code,
		"transfer_id": req.TransferID,
	}).Info("pair code issued")

	httpapi.WriteJSON(w, http.StatusOK, CreatePairResponse{
		PairCode:   code,
		TransferID: req.TransferID,
		ExpiresIn:  int64(ttl.Seconds()),
	})
}

func (s *Server) handlePairInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.hub.Info(mux.Vars(r)["code"])
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, info)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	code, role := vars["code"], vars["role"]

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.L().WithError(err).Warn("websocket upgrade failed")
		return
	}
	conn := newWSConn(ws)

	if err := s.hub.Connect(code, role, conn); err != nil {
		// Connect already delivered the error frame and closed the socket.
		return
	}
	defer func() {
		s.hub.Disconnect(code, role)
		conn.Close()
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if !json.Valid(raw) {
			conn.WriteJSON(Frame{Type: FrameError, Message: "Malformed message"})
			continue
		}
		s.hub.Relay(code, role, json.RawMessage(raw))
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, s.hub.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{
		"service": "dropwire signaling",
		"status":  "running",
		"version": "1.0.0",
	})
}

// wsConn serializes writes to one websocket; gorilla connections allow only
// a single concurrent writer.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
