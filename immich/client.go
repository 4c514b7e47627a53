// Package immich downloads photo assets and their metadata from an Immich
// server.
package immich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Asset sizes accepted by the thumbnail endpoint, plus "original".
const (
	SizePreview   = "preview"
	SizeThumbnail = "thumbnail"
	SizeOriginal  = "original"
)

const (
	defaultMaxBytes          = 25 << 20 // 25MB, enough for most originals
	defaultTimeout           = 30 * time.Second
	defaultUserAgent         = "go-dupefy/1.0"
	defaultThumbnailTemplate = "/image-proxy.php?id=%s&type=thumbnail"
)

var (
	// ErrAssetNotFound is returned when the server answers 404 for an asset.
	ErrAssetNotFound = errors.New("immich: asset not found")
	// ErrNotImage is returned when the response is not an image/* payload.
	ErrNotImage = errors.New("immich: response is not an image")
)

// StatusError is returned for any other non-200 response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("immich: %s: unexpected status %d", e.URL, e.Code)
}

// Config holds connection settings. Zero values mean "use defaults".
type Config struct {
	BaseURL           string        // e.g. "http://immich:2283" (required)
	APIKey            string        // sent as x-api-key
	Size              string        // preview (default), thumbnail or original
	ThumbnailTemplate string        // display URL template, one %s for the asset id
	StealthClient     *http.Client  // optional: tried first for downloads
	HTTPClient        *http.Client  // optional: default http client (nil = http.DefaultClient)
	MaxBytes          int64         // max response body size (default: 25MB)
	Timeout           time.Duration // per-request timeout (default: 30s)
	UserAgent         string        // default: "go-dupefy/1.0"
}

func (c *Config) defaults() {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Size == "" {
		c.Size = SizePreview
	}
	if c.ThumbnailTemplate == "" {
		c.ThumbnailTemplate = defaultThumbnailTemplate
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = defaultMaxBytes
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
}

// Client talks to one Immich server. It is safe for concurrent use.
type Client struct {
	cfg Config
}

// NewClient applies defaults to cfg and returns a client.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{cfg: cfg}
}

// Asset holds downloaded image bytes.
type Asset struct {
	ID       string
	Data     []byte
	MIMEType string
}

// AssetInfo is the subset of asset metadata that fills gaps in gallery rows.
type AssetInfo struct {
	ID               string    `json:"id"`
	OriginalFileName string    `json:"originalFileName"`
	FileCreatedAt    time.Time `json:"fileCreatedAt"`
	LocalDateTime    time.Time `json:"localDateTime"`
}

// assetPath returns the download path for id at the configured size.
func (c *Client) assetPath(id string) string {
	esc := url.PathEscape(id)
	if c.cfg.Size == SizeOriginal {
		return c.cfg.BaseURL + "/api/assets/" + esc + "/original"
	}
	return c.cfg.BaseURL + "/api/assets/" + esc + "/thumbnail?size=" + url.QueryEscape(c.cfg.Size)
}

// Fetch downloads the image bytes of one asset. Tries cfg.StealthClient
// first (if set), falls back to cfg.HTTPClient.
func (c *Client) Fetch(ctx context.Context, id string) (*Asset, error) {
	if id == "" {
		return nil, ErrAssetNotFound
	}
	u := c.assetPath(id)

	if c.cfg.StealthClient != nil {
		a, err := c.fetchImage(ctx, c.cfg.StealthClient, u)
		if err == nil {
			a.ID = id
			return a, nil
		}
		slog.Debug("dupefy: stealth download failed, falling back", "asset", id, "error", err.Error())
	}

	a, err := c.fetchImage(ctx, c.cfg.HTTPClient, u)
	if err != nil {
		return nil, err
	}
	a.ID = id
	return a, nil
}

func (c *Client) fetchImage(ctx context.Context, client *http.Client, assetURL string) (*Asset, error) {
	resp, cancel, err := c.get(ctx, client, assetURL)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	// Strip MIME parameters: "image/jpeg; charset=utf-8" → "image/jpeg"
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%w: %q", ErrNotImage, ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("immich: read body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("immich: %s: empty body", assetURL)
	}
	return &Asset{Data: data, MIMEType: ct}, nil
}

// AssetInfo reads the metadata of one asset.
func (c *Client) AssetInfo(ctx context.Context, id string) (*AssetInfo, error) {
	resp, cancel, err := c.get(ctx, c.cfg.HTTPClient, c.cfg.BaseURL+"/api/assets/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	var info AssetInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return nil, fmt.Errorf("immich: decode asset %s: %w", id, err)
	}
	if info.ID == "" {
		info.ID = id
	}
	return &info, nil
}

// ThumbnailURL returns the URL a browser should use to display id.
func (c *Client) ThumbnailURL(id string) string {
	return fmt.Sprintf(c.cfg.ThumbnailTemplate, url.QueryEscape(id))
}

// get issues an authenticated GET and returns the response only for 200.
// The returned cancel func must be called once the body has been consumed.
func (c *Client) get(ctx context.Context, client *http.Client, u string) (*http.Response, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("immich: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")
	if c.cfg.APIKey != "" {
		req.Header.Set("x-api-key", c.cfg.APIKey)
	}

	resp, err := client.Do(req) //nolint:gosec // G107: base URL comes from operator config
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("immich: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp, cancel, nil
	case http.StatusNotFound:
		resp.Body.Close()
		cancel()
		return nil, nil, ErrAssetNotFound
	default:
		resp.Body.Close()
		cancel()
		return nil, nil, &StatusError{Code: resp.StatusCode, URL: u}
	}
}
