package transport

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Recorder modes.
const (
	ModeRecord   = "record"
	ModePlayback = "playback"
)

// fixture is one captured HTTP exchange, stored as a JSON file named
// by the request digest.
type fixture struct {
	Method     string      `json:"method"`
	URL        string      `json:"url"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
}

// Recorder is an http.RoundTripper decorator. In record mode it
// forwards requests and captures the exchanges as fixtures; in
// playback mode it answers from the fixtures without touching the
// network, making HTTP-based driver tests deterministic.
type Recorder struct {
	mode string
	dir  string
	next http.RoundTripper
}

// NewRecorder creates a Recorder in the given mode storing fixtures
// under dir. next is only used in record mode.
func NewRecorder(mode, dir string, next http.RoundTripper) *Recorder {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Recorder{mode: mode, dir: dir, next: next}
}

// RoundTrip implements http.RoundTripper.
func (r *Recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	key, err := requestKey(req)
	if err != nil {
		return nil, err
	}

	if r.mode == ModePlayback {
		return r.replay(req, key)
	}
	return r.record(req, key)
}

func (r *Recorder) record(req *http.Request, key string) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	f := fixture{
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding fixture: %w", err)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating fixture dir %s: %w", r.dir, err)
	}
	if err := os.WriteFile(r.path(key), data, 0o644); err != nil {
		return nil, fmt.Errorf("writing fixture %s: %w", key, err)
	}

	return resp, nil
}

func (r *Recorder) replay(req *http.Request, key string) (*http.Response, error) {
	data, err := os.ReadFile(r.path(key))
	if err != nil {
		return nil, fmt.Errorf("no fixture for %s %s (key %s): %w",
			req.Method, req.URL, key, err)
	}

	var f fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding fixture %s: %w", key, err)
	}

	return &http.Response{
		StatusCode: f.StatusCode,
		Status:     http.StatusText(f.StatusCode),
		Header:     f.Header,
		Body:       io.NopCloser(bytes.NewReader(f.Body)),
		Request:    req,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
	}, nil
}

func (r *Recorder) path(key string) string {
	return filepath.Join(r.dir, key+".json")
}

// requestKey digests method, URL and body into a stable fixture name.
// The body is restored on the request after hashing.
func requestKey(req *http.Request) (string, error) {
	h := sha1.New()
	io.WriteString(h, req.Method)
	io.WriteString(h, " ")
	io.WriteString(h, req.URL.String())

	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return "", fmt.Errorf("reading request body: %w", err)
		}
		h.Write(body)
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	return hex.EncodeToString(h.Sum(nil))[:20], nil
}
