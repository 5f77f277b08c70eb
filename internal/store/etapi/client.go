// Package etapi implements store.Store against a Trilium ETAPI server.
package etapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/noteport/noteport/internal/store"
)

// DefaultTimeout bounds a single HTTP round trip.
const DefaultTimeout = 30 * time.Second

// APIError is the error envelope returned by the server.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("etapi %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps HTTP status codes onto the store sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusUnauthorized:
		return store.ErrUnauthorized
	}
	return nil
}

// Client talks to /etapi on a Trilium server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *log.Logger
}

var _ store.Store = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the request logger. Nil keeps the default.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the server at baseURL authenticating with token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("server url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/etapi",
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  log.New(os.Stderr, "[etapi] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	switch v := out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case *[]byte:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		*v = data
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return nil
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, method, path, nil, body, "application/json", out)
}

// AppInfo returns the server version block; used as a connectivity check.
func (c *Client) AppInfo(ctx context.Context) (map[string]any, error) {
	var info map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/app-info", nil, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// CreateNote posts the note, then its attributes one request at a time.
// When an attribute fails the note already exists, so its id comes back
// with the error.
func (c *Client) CreateNote(ctx context.Context, p store.CreateNoteParams) (string, error) {
	req := createNoteRequest{
		ParentNoteID: p.ParentID,
		Title:        p.Title,
		Type:         p.Type,
		Mime:         p.Mime,
		Content:      p.Content,
	}
	if req.Type == "" {
		req.Type = store.TypeText
	}
	var resp createNoteResponse
	if err := c.doJSON(ctx, http.MethodPost, "/create-note", req, &resp); err != nil {
		return "", err
	}
	id := resp.Note.NoteID
	if id == "" {
		return "", fmt.Errorf("create-note returned no note id")
	}

	// ETAPI has no attribute list on create-note; add them one by one.
	var errs []error
	for _, a := range p.Attributes {
		a.NoteID = id
		if _, err := c.CreateAttribute(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("attribute %s: %w", a.Name, err))
		}
	}
	if len(errs) > 0 {
		return id, errors.Join(errs...)
	}
	return id, nil
}

func (c *Client) GetNote(ctx context.Context, id string) (*store.Note, error) {
	var n wireNote
	if err := c.doJSON(ctx, http.MethodGet, "/notes/"+url.PathEscape(id), nil, &n); err != nil {
		return nil, err
	}
	note := n.normalize()
	return &note, nil
}

func (c *Client) GetNoteContent(ctx context.Context, id string) (string, error) {
	var data []byte
	if err := c.do(ctx, http.MethodGet, "/notes/"+url.PathEscape(id)+"/content", nil, nil, "", &data); err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Client) UpdateNote(ctx context.Context, id string, u store.NoteUpdate) error {
	patch := map[string]string{}
	if u.Title != nil {
		patch["title"] = *u.Title
	}
	if u.Type != nil {
		patch["type"] = *u.Type
	}
	if u.Mime != nil {
		patch["mime"] = *u.Mime
	}
	if len(patch) == 0 {
		return nil
	}
	return c.doJSON(ctx, http.MethodPatch, "/notes/"+url.PathEscape(id), patch, nil)
}

func (c *Client) UpdateNoteContent(ctx context.Context, id, content string) error {
	return c.do(ctx, http.MethodPut, "/notes/"+url.PathEscape(id)+"/content", nil,
		strings.NewReader(content), "text/plain", nil)
}

func (c *Client) DeleteNote(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/notes/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateAttachment(ctx context.Context, p store.CreateAttachmentParams) (string, error) {
	role := p.Role
	if role == "" {
		role = "file"
	}
	req := map[string]string{
		"ownerId": p.OwnerID,
		"role":    role,
		"mime":    p.Mime,
		"title":   p.Title,
		"content": p.Base64,
	}
	var a wireAttachment
	if err := c.doJSON(ctx, http.MethodPost, "/attachments", req, &a); err != nil {
		return "", err
	}
	return a.AttachmentID, nil
}

func (c *Client) ListAttachments(ctx context.Context, noteID string) ([]store.Attachment, error) {
	var list []wireAttachment
	if err := c.doJSON(ctx, http.MethodGet, "/notes/"+url.PathEscape(noteID)+"/attachments", nil, &list); err != nil {
		return nil, err
	}
	out := make([]store.Attachment, 0, len(list))
	for _, a := range list {
		out = append(out, a.normalize())
	}
	return out, nil
}

func (c *Client) GetAttachmentContent(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	if err := c.do(ctx, http.MethodGet, "/attachments/"+url.PathEscape(id)+"/content", nil, nil, "", &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) UpdateAttachmentContent(ctx context.Context, id, b64 string) error {
	return c.do(ctx, http.MethodPut, "/attachments/"+url.PathEscape(id)+"/content", nil,
		strings.NewReader(b64), "text/plain", nil)
}

func (c *Client) SearchNotes(ctx context.Context, q store.Query) ([]store.Note, error) {
	params := url.Values{}
	params.Set("search", q.String())
	if q.AncestorID != "" {
		params.Set("ancestorNoteId", q.AncestorID)
	}
	var resp searchResponse
	if err := c.do(ctx, http.MethodGet, "/notes", params, nil, "", &resp); err != nil {
		return nil, err
	}
	out := make([]store.Note, 0, len(resp.Results))
	for _, n := range resp.Results {
		note := n.normalize()
		// The server search is fuzzy on values; keep exact matches only.
		if q.Matches(&note) {
			out = append(out, note)
		}
	}
	return out, nil
}

func (c *Client) CreateAttribute(ctx context.Context, a store.Attribute) (string, error) {
	if a.Type == "" {
		a.Type = store.AttributeLabel
	}
	req := map[string]any{
		"noteId": a.NoteID,
		"type":   a.Type,
		"name":   a.Name,
		"value":  a.Value,
	}
	var resp wireAttribute
	if err := c.doJSON(ctx, http.MethodPost, "/attributes", req, &resp); err != nil {
		return "", err
	}
	return resp.AttributeID, nil
}

func (c *Client) GetNoteAttributes(ctx context.Context, noteID string) ([]store.Attribute, error) {
	n, err := c.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	return n.Attributes, nil
}

func (c *Client) UpdateAttribute(ctx context.Context, a store.Attribute) error {
	return c.doJSON(ctx, http.MethodPatch, "/attributes/"+url.PathEscape(a.ID), map[string]string{"value": a.Value}, nil)
}

func (c *Client) DeleteAttribute(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/attributes/"+url.PathEscape(id), nil, nil)
}
