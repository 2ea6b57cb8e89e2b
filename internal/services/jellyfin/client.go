package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"metamender/internal/config"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBody       = 512
)

// DefaultFields are the item fields requested when listing the catalog.
var DefaultFields = []string{
	"Overview",
	"Artists",
	"AlbumArtist",
	"Genres",
	"ParentId",
	"OriginalTitle",
	"ProductionYear",
	"SortName",
	"PremiereDate",
}

// HTTPDoer describes the HTTP client used by the Jellyfin client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config captures the connection settings.
type Config struct {
	URL            string
	APIKey         string
	UserID         string
	TimeoutSeconds int
}

// Client talks to a single Jellyfin server on behalf of one user.
type Client struct {
	baseURL string
	apiKey  string
	userID  string
	client  HTTPDoer
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// NewClient constructs a Jellyfin client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		userID:  strings.TrimSpace(cfg.UserID),
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client from the [jellyfin] configuration section.
func NewFromConfig(cfg *config.Config, opts ...Option) *Client {
	if cfg == nil {
		return NewClient(Config{}, opts...)
	}
	return NewClient(Config{
		URL:            cfg.Jellyfin.URL,
		APIKey:         cfg.Jellyfin.APIKey,
		UserID:         cfg.Jellyfin.UserID,
		TimeoutSeconds: cfg.Jellyfin.TimeoutSeconds,
	}, opts...)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("jellyfin %s %s: http %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("jellyfin %s %s: http %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not a
// *StatusError.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// ItemQuery scopes a catalog listing.
type ItemQuery struct {
	IncludeItemTypes []string
	ParentID         string
	Fields           []string
}

// ItemDTO is the subset of BaseItemDto read from listings.
type ItemDTO struct {
	ID             string   `json:"Id"`
	Name           string   `json:"Name"`
	Type           string   `json:"Type"`
	Overview       string   `json:"Overview"`
	ParentID       string   `json:"ParentId"`
	OriginalTitle  string   `json:"OriginalTitle"`
	Artists        []string `json:"Artists"`
	AlbumArtist    string   `json:"AlbumArtist"`
	Genres         []string `json:"Genres"`
	ProductionYear int      `json:"ProductionYear"`
}

type itemsResponse struct {
	Items            []ItemDTO `json:"Items"`
	TotalRecordCount int       `json:"TotalRecordCount"`
}

// ServerInfo is the subset of /System/Info used by the check command.
type ServerInfo struct {
	ServerName string `json:"ServerName"`
	Version    string `json:"Version"`
	ID         string `json:"Id"`
}

// ListItems returns every item visible to the user that matches query.
func (c *Client) ListItems(ctx context.Context, query ItemQuery) ([]ItemDTO, error) {
	if c.userID == "" {
		return nil, errors.New("jellyfin list items: user id required")
	}
	params := url.Values{}
	params.Set("Recursive", "true")
	if len(query.IncludeItemTypes) > 0 {
		params.Set("IncludeItemTypes", strings.Join(query.IncludeItemTypes, ","))
	}
	fields := query.Fields
	if len(fields) == 0 {
		fields = DefaultFields
	}
	params.Set("Fields", strings.Join(fields, ","))
	if parent := strings.TrimSpace(query.ParentID); parent != "" {
		params.Set("ParentId", parent)
	}

	var payload itemsResponse
	if err := c.getJSON(ctx, "/Users/"+url.PathEscape(c.userID)+"/Items", params, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// GetItem fetches the full item DTO. Fields are kept as raw JSON so that an
// UpdateItem round trip does not drop anything the client does not model.
func (c *Client) GetItem(ctx context.Context, itemID string) (map[string]json.RawMessage, error) {
	if c.userID == "" {
		return nil, errors.New("jellyfin get item: user id required")
	}
	if strings.TrimSpace(itemID) == "" {
		return nil, errors.New("jellyfin get item: item id required")
	}
	var dto map[string]json.RawMessage
	path := "/Users/" + url.PathEscape(c.userID) + "/Items/" + url.PathEscape(itemID)
	if err := c.getJSON(ctx, path, nil, &dto); err != nil {
		return nil, err
	}
	if dto == nil {
		return nil, fmt.Errorf("jellyfin get item %s: empty body", itemID)
	}
	return dto, nil
}

// UpdateItem posts a modified item DTO back to the server.
func (c *Client) UpdateItem(ctx context.Context, itemID string, dto map[string]json.RawMessage) error {
	if strings.TrimSpace(itemID) == "" {
		return errors.New("jellyfin update item: item id required")
	}
	encoded, err := json.Marshal(dto)
	if err != nil {
		return fmt.Errorf("jellyfin update item: encode body: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/Items/"+url.PathEscape(itemID), nil, encoded)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Ping verifies the server is reachable and the API key is accepted.
func (c *Client) Ping(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	err := c.getJSON(ctx, "/System/Info", nil, &info)
	return info, err
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dest any) error {
	resp, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("jellyfin GET %s: decode response: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte) (*http.Response, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jellyfin client not configured")
	}
	if c.baseURL == "" || c.apiKey == "" {
		return nil, errors.New("jellyfin url and api key required")
	}
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("jellyfin %s %s: build request: %w", method, path, err)
	}
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jellyfin %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
		}
	}
	return resp, nil
}
