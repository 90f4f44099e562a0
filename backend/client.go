// Package backend talks to the document assistant's REST API: sign-in,
// speech-to-text, question answering, and document management.
package backend

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

	"github.com/google/uuid"

	"voxdoc/log"
	"voxdoc/session"
)

const (
	DefaultURL     = "http://localhost:8000"
	DefaultTimeout = 2 * time.Minute
)

// ErrUnauthorized matches any 401 from the backend. The client clears the
// stored session when it sees one.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response. Detail is the server's "detail" field when
// present, otherwise the raw body.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend error %d", e.StatusCode)
	}
	return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.Detail)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Sessions is the session the client authenticates with. Set and Clear are
// called on sign-in, sign-out, and when the server rejects the token.
type Sessions interface {
	session.Context
	Set(session.State) error
	Clear() error
}

type Client struct {
	baseURL  string
	http     *TracedClient
	sessions Sessions
}

func New(baseURL string, sessions Sessions) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend url %q: scheme must be http or https", baseURL)
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     NewTracedClient(DefaultTimeout),
		sessions: sessions,
	}, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// Warm pre-opens a connection to the backend.
func (c *Client) Warm() time.Duration {
	return c.http.Warm(c.baseURL + "/health")
}

type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	auth        bool
}

func (c *Client) do(ctx context.Context, r request) (*TracedResponse, error) {
	var token string
	if r.auth {
		token = c.sessions.Token()
		if token == "" {
			return nil, session.ErrNotAuthenticated
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, err
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Errorf("%s %s [%s]: %v", r.method, r.path, reqID, err)
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	logRequest(r.path, reqID, resp)

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Detail: parseDetail(resp.Body)}
		if resp.StatusCode == http.StatusUnauthorized && r.auth {
			log.Warn("backend rejected session token, signing out")
			if err := c.sessions.Clear(); err != nil {
				log.Errorf("clearing session: %v", err)
			}
		}
		return resp, apiErr
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, auth bool) error {
	_, err := c.sendJSON(ctx, method, path, in, out, auth)
	return err
}

// sendJSON is doJSON for callers that also want the traced response.
func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any, auth bool) (*TracedResponse, error) {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, request{method: method, path: path, body: body, contentType: contentType, auth: auth})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return resp, nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nil, fmt.Errorf("%s: response parse error: %w", path, err)
	}
	return resp, nil
}

// parseDetail extracts the error message from a FastAPI style body. Detail
// can be a string or a list of validation errors.
func parseDetail(body []byte) string {
	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &env) != nil || len(env.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var s string
	if json.Unmarshal(env.Detail, &s) == nil {
		return s
	}
	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if json.Unmarshal(env.Detail, &items) == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if len(it.Loc) > 0 {
				msgs = append(msgs, fmt.Sprintf("%v: %s", it.Loc[len(it.Loc)-1], it.Msg))
			} else {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(env.Detail)
}

func logRequest(path, reqID string, resp *TracedResponse) {
	m := resp.Metrics
	log.RequestMetrics(log.Request{
		Endpoint:   path,
		RequestID:  reqID,
		Status:     resp.StatusCode,
		DNSMs:      ms(m.DNS),
		TLSMs:      ms(m.TLS),
		TTFBMs:     ms(m.TTFB),
		TotalMs:    ms(m.Total),
		SentKB:     float64(m.SentBytes) / 1024,
		ConnReused: m.ConnReused,
	})
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
