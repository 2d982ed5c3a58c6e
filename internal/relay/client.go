package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dropwire/dropwire/config"
	"github.com/dropwire/dropwire/internal/errdefs"
	"github.com/dropwire/dropwire/internal/httpapi"
	"github.com/dropwire/dropwire/internal/manifest"
)

// Client drives the relay HTTP API for one transfer. It satisfies both the
// engine's upload sink and download source.
type Client struct {
	baseURL    string
	transferID string
	httpClient *http.Client
}

// NewClient creates a relay client for a transfer id.
func NewClient(baseURL, transferID string) *Client {
	return &Client{
		baseURL:    baseURL,
		transferID: transferID,
		httpClient: &http.Client{Timeout: config.Get().ChunkTimeout},
	}
}

// TransferID returns the id this client is scoped to.
func (c *Client) TransferID() string { return c.transferID }

// Create registers the transfer session on the relay.
func (c *Client) Create(ctx context.Context, m *manifest.Manifest) error {
	body, err := json.Marshal(CreateTransferRequest{TransferID: c.transferID, Manifest: m})
	if err != nil {
		return errdefs.InvalidInput("failed to encode manifest: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfer/create", bytes.NewReader(body))
	if err != nil {
		return errdefs.InvalidInput("failed to build create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errdefs.NetworkFailure(err, "create transfer %s", c.transferID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return nil
}

// PutChunk uploads one chunk under its global id and cross-checks the hash
// and size the relay reports back.
func (c *Client) PutChunk(ctx context.Context, chunkID int, data []byte) error {
	url := fmt.Sprintf("%s/transfer/%s/chunk/%d", c.baseURL, c.transferID, chunkID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return errdefs.InvalidInput("failed to build chunk request: %v", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errdefs.NetworkFailure(err, "upload chunk %d", chunkID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}

	var ack ChunkUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return errdefs.NetworkFailure(err, "malformed chunk ack for %d", chunkID)
	}
	if ack.Size != int64(len(data)) {
		return errdefs.NetworkFailure(nil, "relay stored %d bytes of chunk %d, sent %d", ack.Size, chunkID, len(data))
	}
	return nil
}

// GetChunk downloads one chunk by global id.
func (c *Client) GetChunk(ctx context.Context, chunkID int) ([]byte, error) {
	url := fmt.Sprintf("%s/transfer/%s/chunk/%d", c.baseURL, c.transferID, chunkID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errdefs.InvalidInput("failed to build chunk request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errdefs.NetworkFailure(err, "download chunk %d", chunkID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errdefs.NetworkFailure(err, "read chunk %d body", chunkID)
	}
	return data, nil
}

// Manifest fetches the transfer's manifest from the relay.
func (c *Client) Manifest(ctx context.Context) (*manifest.Manifest, error) {
	url := fmt.Sprintf("%s/transfer/%s/manifest", c.baseURL, c.transferID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errdefs.InvalidInput("failed to build manifest request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errdefs.NetworkFailure(err, "fetch manifest for %s", c.transferID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var m manifest.Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, errdefs.ManifestCorrupt(err, "malformed manifest for %s", c.transferID)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Status fetches the relay-side chunk presence report.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	url := fmt.Sprintf("%s/transfer/%s/status", c.baseURL, c.transferID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errdefs.InvalidInput("failed to build status request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errdefs.NetworkFailure(err, "fetch status for %s", c.transferID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, errdefs.NetworkFailure(err, "malformed status for %s", c.transferID)
	}
	return &status, nil
}

// Delete removes all relay state for the transfer.
func (c *Client) Delete(ctx context.Context) error {
	url := fmt.Sprintf("%s/transfer/%s", c.baseURL, c.transferID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return errdefs.InvalidInput("failed to build delete request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errdefs.NetworkFailure(err, "delete transfer %s", c.transferID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return nil
}

// responseError converts a non-200 relay response back into the taxonomy,
// preserving the NotFound reason the server distinguished.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope httpapi.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		switch errdefs.Category(envelope.Error) {
		case errdefs.CategoryNotFound:
			return errdefs.NotFound(errdefs.Reason(envelope.Reason), "%s", envelope.Message)
		case errdefs.CategoryInvalidInput:
			return errdefs.InvalidInput("%s", envelope.Message)
		case errdefs.CategoryManifestCorrupt:
			return errdefs.ManifestCorrupt(nil, "%s", envelope.Message)
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errdefs.NotFound("", "relay returned 404: %s", string(body))
	case resp.StatusCode == http.StatusBadRequest:
		return errdefs.InvalidInput("relay rejected request: %s", string(body))
	default:
		return errdefs.NetworkFailure(nil, "relay returned %s: %s", resp.Status, string(body))
	}
}
