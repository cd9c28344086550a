package wsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okultahta/tahta-server/internal/auth"
	"github.com/okultahta/tahta-server/internal/stroke"
	"github.com/okultahta/tahta-server/internal/whiteboard"
)

const (
	unsubscribeTimeout = 3 * time.Second
	requestTimeout     = 10 * time.Second
)

// DrawingResponse is the JSON body of the /api/drawing endpoints.
type DrawingResponse struct {
	ID      string          `json:"id"`
	UserID  string          `json:"user_id"`
	Data    []stroke.Stroke `json:"data"`
	Updated time.Time       `json:"updated_at"`
}

// Store implements whiteboard.SessionStore against the REST API. Sessions are
// always the token owner's; the userID argument is only echoed back.
type Store struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewStore builds a store for the server at baseURL (http:// or https://).
func NewStore(baseURL, token string) *Store {
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

func (s *Store) Get(ctx context.Context, userID string) (*whiteboard.Session, error) {
	var out DrawingResponse
	status, err := s.do(ctx, http.MethodGet, "/api/drawing", nil, &out)
	if status == http.StatusNotFound {
		return nil, whiteboard.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return toSession(out), nil
}

func (s *Store) Create(ctx context.Context, userID string) (*whiteboard.Session, error) {
	var out DrawingResponse
	if _, err := s.do(ctx, http.MethodPost, "/api/drawing", nil, &out); err != nil {
		return nil, err
	}
	return toSession(out), nil
}

func (s *Store) Replace(ctx context.Context, sessionID string, strokes []stroke.Stroke) error {
	if strokes == nil {
		strokes = []stroke.Stroke{}
	}
	body := map[string]any{"data": strokes}
	status, err := s.do(ctx, http.MethodPut, "/api/drawing", body, nil)
	if status == http.StatusNotFound {
		return whiteboard.ErrSessionNotFound
	}
	return err
}

// Me returns the token owner's profile.
func (s *Store) Me(ctx context.Context) (*auth.Profile, error) {
	var out auth.Profile
	if _, err := s.do(ctx, http.MethodGet, "/api/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func toSession(d DrawingResponse) *whiteboard.Session {
	strokes := d.Data
	if strokes == nil {
		strokes = []stroke.Stroke{}
	}
	return &whiteboard.Session{ID: d.ID, UserID: d.UserID, Strokes: strokes}
}
