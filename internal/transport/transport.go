// Package transport provides the HTTP plumbing shared by the DAV and
// EWS drivers: an injectable client interface and a record/playback
// round tripper for deterministic protocol tests.
package transport

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/mholva/gwmigrate/internal/model"
)

// Doer is the minimal HTTP client contract drivers depend on, so tests
// can substitute a scripted implementation.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewClient builds an HTTP client from the runtime configuration.
// When playback is configured the client's transport is wrapped with a
// Recorder in the requested mode.
func NewClient(cfg model.Config, insecureTLS bool) *http.Client {
	timeout := time.Duration(cfg.HTTPTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var rt http.RoundTripper = http.DefaultTransport
	if insecureTLS {
		rt = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	switch cfg.Playback.Mode {
	case ModeRecord, ModePlayback:
		rt = NewRecorder(cfg.Playback.Mode, cfg.Playback.Location, rt)
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}
}
