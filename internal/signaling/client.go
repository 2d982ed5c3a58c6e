package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/dropwire/dropwire/config"
	"github.com/dropwire/dropwire/internal/errdefs"
	"github.com/dropwire/dropwire/internal/manifest"
)

// CreatePairCode asks the signaling server to mint a pairing code for a
// transfer.
func CreatePairCode(ctx context.Context, baseURL, transferID string, m *manifest.Manifest) (*CreatePairResponse, error) {
	body, err := json.Marshal(CreatePairRequest{TransferID: transferID, Manifest: m})
	if err != nil {
		return nil, errdefs.InvalidInput("failed to encode pair request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/pair/create", bytes.NewReader(body))
	if err != nil {
		return nil, errdefs.InvalidInput("failed to build pair request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: config.Get().ConnectionTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errdefs.NetworkFailure(err, "create pair code")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errdefs.NetworkFailure(nil, "signaling returned %s: %s", resp.Status, string(detail))
	}

	var out CreatePairResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errdefs.NetworkFailure(err, "malformed pair response")
	}
	return &out, nil
}

// GetPairInfo resolves a code to its transfer id and manifest.
func GetPairInfo(ctx context.Context, baseURL, code string) (*PairInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/pair/%s/info", baseURL, code), nil)
	if err != nil {
		return nil, errdefs.InvalidInput("failed to build info request: %v", err)
	}

	client := &http.Client{Timeout: config.Get().ConnectionTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errdefs.NetworkFailure(err, "fetch pair info")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errdefs.NotFound(errdefs.ReasonPairCodeUnknown, "pair code %s not found or expired", code)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errdefs.NetworkFailure(nil, "signaling returned %s: %s", resp.Status, string(detail))
	}

	var info PairInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errdefs.NetworkFailure(err, "malformed pair info")
	}
	return &info, nil
}

// Channel is a live pairing-channel connection for one role.
type Channel struct {
	ws *websocket.Conn
}

// Dial opens the pairing channel for code under role. baseURL may be either
// the http or ws form of the signaling address.
func Dial(ctx context.Context, baseURL, code, role string) (*Channel, error) {
	wsURL, err := websocketURL(baseURL, code, role)
	if err != nil {
		return nil, err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errdefs.NetworkFailure(err, "dial pairing channel %s", wsURL)
	}
	return &Channel{ws: ws}, nil
}

// Send writes one JSON message to the channel.
func (c *Channel) Send(v interface{}) error {
	if err := c.ws.WriteJSON(v); err != nil {
		return errdefs.NetworkFailure(err, "send on pairing channel")
	}
	return nil
}

// ReadFrame reads the next message and decodes the hub-control fields. The
// raw bytes are returned too, for application frames the hub relays
// verbatim.
func (c *Channel) ReadFrame() (*Frame, json.RawMessage, error) {
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return nil, nil, errdefs.NetworkFailure(err, "read pairing channel")
	}

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, raw, errdefs.InvalidInput("malformed frame: %v", err)
	}
	return &frame, raw, nil
}

// Close shuts the channel down.
func (c *Channel) Close() error {
	return c.ws.Close()
}

func websocketURL(baseURL, code, role string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", errdefs.InvalidInput("invalid signaling url %q: %v", baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errdefs.InvalidInput("unsupported signaling scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + fmt.Sprintf("/ws/%s/%s", code, role)
	return u.String(), nil
}
