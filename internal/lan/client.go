package lan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dropwire/dropwire/config"
	"github.com/dropwire/dropwire/internal/compressor"
	"github.com/dropwire/dropwire/internal/errdefs"
	"github.com/dropwire/dropwire/internal/manifest"
)

// Client downloads from a LAN server. It satisfies the engine's Source:
// global chunk ids are mapped back to (file index, local id) with the same
// flattening the upload side uses.
type Client struct {
	baseURL    string
	httpClient *http.Client

	manifest *manifest.Manifest
}

// NewClient creates a LAN client for a server address like "http://10.0.0.5:9000".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: config.Get().ChunkTimeout},
	}
}

// Manifest fetches and caches the served manifest; the cache backs the
// global-id mapping in GetChunk.
func (c *Client) Manifest(ctx context.Context) (*manifest.Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/manifest", nil)
	if err != nil {
		return nil, errdefs.InvalidInput("failed to build manifest request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errdefs.NetworkFailure(err, "fetch lan manifest")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errdefs.NetworkFailure(nil, "lan server returned %s", resp.Status)
	}

	var m manifest.Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, errdefs.ManifestCorrupt(err, "malformed lan manifest")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	c.manifest = &m
	return &m, nil
}

// GetChunk downloads a chunk by global id, resolving it to the owning file
// for folder transfers.
func (c *Client) GetChunk(ctx context.Context, chunkID int) ([]byte, error) {
	if c.manifest == nil {
		if _, err := c.Manifest(ctx); err != nil {
			return nil, err
		}
	}

	var url string
	switch c.manifest.Type {
	case manifest.TypeFile:
		url = fmt.Sprintf("%s/chunk/%d", c.baseURL, chunkID)
	case manifest.TypeFolder:
		fileIndex, localID, ok := c.manifest.Locate(chunkID)
		if !ok {
			return nil, errdefs.InvalidInput("chunk id %d out of range", chunkID)
		}
		url = fmt.Sprintf("%s/file/%d/chunk/%d", c.baseURL, fileIndex, localID)
	default:
		return nil, errdefs.InvalidInput("unknown manifest type %q", c.manifest.Type)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errdefs.InvalidInput("failed to build chunk request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errdefs.NetworkFailure(err, "download lan chunk %d", chunkID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errdefs.NetworkFailure(nil, "lan server returned %s for chunk %d", resp.Status, chunkID)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errdefs.NetworkFailure(err, "read lan chunk %d", chunkID)
	}

	if resp.Header.Get(encodingHeader) == "lz4" {
		return compressor.Decompress(body)
	}
	return body, nil
}
