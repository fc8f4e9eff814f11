// Package cloud synchronizes gateway state with the remote key-value store.
//
// All network I/O runs on the Gateway's worker goroutine; the scheduler only
// ever calls the non-blocking TryPush and TryPull.
package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBody bounds how much of a response is read.
const maxBody = 64 << 10

// Store is a JSON key-value tree addressed by dotted paths
// ("leak_reading", "cmd.main_valve").
type Store interface {
	// Put overwrites the value at path with the JSON document body.
	Put(ctx context.Context, path string, body []byte) error

	// Get returns the raw JSON value at path.
	Get(ctx context.Context, path string) ([]byte, error)
}

// StatusError is returned when the store answers with a non-success status.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
}

// FirebaseStore talks to a Firebase Realtime Database over its REST API.
type FirebaseStore struct {
	base   *url.URL
	auth   string
	client *http.Client
}

// NewFirebaseStore creates a store rooted at baseURL. auth, if set, is sent as
// the database secret or ID token. timeout bounds each request.
func NewFirebaseStore(baseURL, auth string, timeout time.Duration) (*FirebaseStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("store url %q: unsupported scheme", baseURL)
	}
	return &FirebaseStore{
		base:   u,
		auth:   auth,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// endpoint maps a dotted path to <base>/<a>/<b>.json.
func (s *FirebaseStore) endpoint(path string) string {
	p := strings.ReplaceAll(strings.Trim(path, "./"), ".", "/")
	u := *s.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + p + ".json"
	if s.auth != "" {
		q := u.Query()
		q.Set("auth", s.auth)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Put overwrites the value at path.
func (s *FirebaseStore) Put(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: http.MethodPut, Path: path, Code: resp.StatusCode}
	}
	return nil
}

// Get returns the raw JSON value at path.
func (s *FirebaseStore) Get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(path), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, &StatusError{Method: http.MethodGet, Path: path, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return body, nil
}
