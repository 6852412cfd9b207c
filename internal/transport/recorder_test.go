package transport

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport answers every request with a canned response and
// counts how often it was consulted.
type scriptedTransport struct {
	calls  int
	status int
	body   string
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls++
	return &http.Response{
		StatusCode: s.status,
		Header:     http.Header{"Content-Type": []string{"text/xml"}},
		Body:       io.NopCloser(strings.NewReader(s.body)),
		Request:    req,
	}, nil
}

func TestRecorderRecordThenPlayback(t *testing.T) {
	dir := t.TempDir()
	upstream := &scriptedTransport{status: 207, body: "<multistatus/>"}

	newRequest := func() *http.Request {
		req, err := http.NewRequest("PROPFIND", "https://dav.example.com/calendars/alice/",
			strings.NewReader("<propfind/>"))
		require.NoError(t, err)
		return req
	}

	rec := NewRecorder(ModeRecord, dir, upstream)
	resp, err := rec.RoundTrip(newRequest())
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 207, resp.StatusCode)
	assert.Equal(t, "<multistatus/>", string(body))
	assert.Equal(t, 1, upstream.calls)

	// Playback answers from the fixture without consulting upstream.
	play := NewRecorder(ModePlayback, dir, upstream)
	resp, err = play.RoundTrip(newRequest())
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 207, resp.StatusCode)
	assert.Equal(t, "<multistatus/>", string(body))
	assert.Equal(t, "text/xml", resp.Header.Get("Content-Type"))
	assert.Equal(t, 1, upstream.calls)
}

func TestRecorderPlaybackMissingFixture(t *testing.T) {
	play := NewRecorder(ModePlayback, t.TempDir(), nil)
	req, err := http.NewRequest("GET", "https://dav.example.com/never-recorded", nil)
	require.NoError(t, err)

	_, err = play.RoundTrip(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fixture")
}

func TestRequestKeyDependsOnBody(t *testing.T) {
	mk := func(body string) *http.Request {
		req, err := http.NewRequest("POST", "https://ews.example.com/EWS/Exchange.asmx",
			strings.NewReader(body))
		require.NoError(t, err)
		return req
	}

	reqA := mk("<GetFolder/>")
	keyA, err := requestKey(reqA)
	require.NoError(t, err)
	keyB, err := requestKey(mk("<SyncFolderItems/>"))
	require.NoError(t, err)
	assert.NotEqual(t, keyA, keyB)

	// Hashing must leave the body readable for the actual send.
	body, err := io.ReadAll(reqA.Body)
	require.NoError(t, err)
	assert.Equal(t, "<GetFolder/>", string(body))

	keyAgain, err := requestKey(mk("<GetFolder/>"))
	require.NoError(t, err)
	assert.Equal(t, keyA, keyAgain)
}
