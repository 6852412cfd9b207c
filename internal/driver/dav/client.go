// Package dav implements the CalDAV/CardDAV driver for calendar,
// contact and task collections.
package dav

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"

	"github.com/mholva/gwmigrate/internal/driver"
	"github.com/mholva/gwmigrate/internal/model"
	"github.com/mholva/gwmigrate/internal/transport"
)

// client wraps the injected HTTP Doer with the WebDAV verbs the
// driver needs. Every request carries basic auth for the account.
type client struct {
	base     string // scheme://host[:port], no trailing slash
	username string
	password string
	protocol model.Protocol
	http     transport.Doer
}

func (c *client) do(ctx context.Context, method, path string, header http.Header, body []byte) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	for key, vals := range header {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("executing %s %s: %w", method, path, err)
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, nil, fmt.Errorf("reading response body: %w", readErr)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, nil, &driver.AuthError{
			Protocol: c.protocol,
			Message:  fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode),
		}
	}

	return resp, respBody, nil
}

// propfind issues a PROPFIND at the given depth and decodes the 207
// multistatus response.
func (c *client) propfind(ctx context.Context, path, depth string, body []byte) (*multistatus, error) {
	header := http.Header{}
	header.Set("Depth", depth)
	header.Set("Content-Type", `application/xml; charset="utf-8"`)

	resp, respBody, err := c.do(ctx, "PROPFIND", path, header, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("PROPFIND %s: unexpected status %d", path, resp.StatusCode)
	}

	var ms multistatus
	if err := xml.Unmarshal(respBody, &ms); err != nil {
		return nil, fmt.Errorf("decoding multistatus for %s: %w", path, err)
	}
	return &ms, nil
}

// report issues a REPORT (Depth 1) and decodes the multistatus
// response.
func (c *client) report(ctx context.Context, path string, body []byte) (*multistatus, error) {
	header := http.Header{}
	header.Set("Depth", "1")
	header.Set("Content-Type", `application/xml; charset="utf-8"`)

	resp, respBody, err := c.do(ctx, "REPORT", path, header, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("REPORT %s: unexpected status %d", path, resp.StatusCode)
	}

	var ms multistatus
	if err := xml.Unmarshal(respBody, &ms); err != nil {
		return nil, fmt.Errorf("decoding multistatus for %s: %w", path, err)
	}
	return &ms, nil
}

// get fetches a resource body.
func (c *client) get(ctx context.Context, path string) ([]byte, string, error) {
	resp, body, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, "", driver.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	return body, resp.Header.Get("Etag"), nil
}

// put writes a resource, overwriting any existing one (upsert).
func (c *client) put(ctx context.Context, path, contentType string, body []byte) (string, error) {
	header := http.Header{}
	header.Set("Content-Type", contentType)

	resp, respBody, err := c.do(ctx, http.MethodPut, path, header, body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent &&
		resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("PUT %s: unexpected status %d: %s", path, resp.StatusCode, respBody)
	}
	return resp.Header.Get("Etag"), nil
}

// delete removes a resource. A 404 is not an error.
func (c *client) delete(ctx context.Context, path string) error {
	resp, _, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("DELETE %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

// mkcol creates a collection with the given extended MKCOL body (or a
// MKCALENDAR body for calendar collections).
func (c *client) mkcol(ctx context.Context, method, path string, body []byte) error {
	header := http.Header{}
	header.Set("Content-Type", `application/xml; charset="utf-8"`)

	resp, respBody, err := c.do(ctx, method, path, header, body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, respBody)
	}
	return nil
}
