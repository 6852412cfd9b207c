package imap

import (
	"testing"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
)

// A message without a Message-ID keeps its derived identity across
// transfers: the destination copy must be recognized by recomputing
// the digest, never re-appended.
func TestMatchesDigestEnvelope(t *testing.T) {
	env := &goimap.Envelope{
		Subject: "second, no message id",
		Date:    time.Date(2026, 1, 9, 8, 0, 0, 0, time.UTC),
		From:    []goimap.Address{{Mailbox: "carol", Host: "example.org"}},
	}
	uid := messageIdentity(env)
	assert.True(t, matchesDigest(uid, env, nil))

	other := &goimap.Envelope{Subject: "unrelated", Date: env.Date}
	assert.False(t, matchesDigest(uid, other, nil))
}

func TestMatchesDigestContent(t *testing.T) {
	raw := []byte("From: carol@example.org\r\n" +
		"Subject: second, no message id\r\n" +
		"Date: Fri, 09 Jan 2026 08:00:00 +0000\r\n" +
		"\r\n" +
		"An archived message that never had a Message-ID.\r\n")
	uid := contentDigest(raw)

	// The envelope digest differs from a content digest, so the match
	// falls through to the raw body.
	env := &goimap.Envelope{Subject: "second, no message id"}
	assert.True(t, matchesDigest(uid, env, raw))
	assert.False(t, matchesDigest(uid, env, nil))
	assert.False(t, matchesDigest(uid, env, append(raw, 'x')))
}

func TestContentSubject(t *testing.T) {
	raw := []byte("From: carol@example.org\r\n" +
		"Subject: quarterly numbers\r\n" +
		"\r\n" +
		"body\r\n")
	assert.Equal(t, "quarterly numbers", contentSubject(raw))

	assert.Equal(t, "", contentSubject(nil))
	assert.Equal(t, "", contentSubject([]byte("From: a@b\r\n\r\nno subject\r\n")))
}

func TestParseCheckpoint(t *testing.T) {
	validity, last, ok := parseCheckpoint("41:57")
	assert.True(t, ok)
	assert.Equal(t, uint32(41), validity)
	assert.Equal(t, goimap.UID(57), last)

	for _, bad := range []string{"", "41", "x:57", "41:y"} {
		_, _, ok := parseCheckpoint(bad)
		assert.False(t, ok, "checkpoint %q", bad)
	}
}

func TestNextCheckpoint(t *testing.T) {
	// First run, nothing stored.
	assert.Equal(t, "41:57", nextCheckpoint("", 41, 57))

	// Same mailbox generation: lastuid never regresses after the
	// newest messages are deleted.
	assert.Equal(t, "41:57", nextCheckpoint("41:57", 41, 12))
	assert.Equal(t, "41:80", nextCheckpoint("41:57", 41, 80))

	// New UIDVALIDITY means the mailbox was recreated; numbering
	// starts over.
	assert.Equal(t, "42:3", nextCheckpoint("41:57", 42, 3))
}
