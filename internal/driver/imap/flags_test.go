package imap

import (
	"testing"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"

	"github.com/mholva/gwmigrate/internal/model"
)

func TestNormalizeFlags(t *testing.T) {
	got := normalizeFlags([]goimap.Flag{
		goimap.FlagFlagged,
		goimap.FlagSeen,
		"$Junk", // server-private keywords are dropped
		"\\Recent",
	})
	assert.Equal(t, []string{FlagFlagged, FlagSeen}, got)

	assert.Empty(t, normalizeFlags(nil))
}

func TestWireFlagsRoundTrip(t *testing.T) {
	flags := []string{FlagAnswered, FlagDraft, FlagSeen}
	wire := wireFlags(flags)
	assert.Equal(t, []goimap.Flag{goimap.FlagAnswered, goimap.FlagDraft, goimap.FlagSeen}, wire)
	assert.Equal(t, flags, normalizeFlags(wire))

	// Unknown normalized names have no wire form.
	assert.Empty(t, wireFlags([]string{"sparkly"}))
}

func TestFlagsFingerprintOrderIndependent(t *testing.T) {
	a := flagsFingerprint([]string{FlagSeen, FlagFlagged})
	b := flagsFingerprint([]string{FlagFlagged, FlagSeen})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, flagsFingerprint([]string{FlagSeen}))
	assert.Equal(t, "", flagsFingerprint(nil))
}

func TestMessageIdentity(t *testing.T) {
	env := &goimap.Envelope{MessageID: "<sync1@example.com>"}
	assert.Equal(t, "sync1@example.com", messageIdentity(env))

	// Missing Message-ID falls back to a stable envelope digest.
	date := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	bare := &goimap.Envelope{
		Subject: "no id here",
		Date:    date,
		From:    []goimap.Address{{Mailbox: "alice", Host: "example.com"}},
	}
	first := messageIdentity(bare)
	assert.Contains(t, first, "sha1:")
	assert.Equal(t, first, messageIdentity(bare))

	other := &goimap.Envelope{Subject: "different subject", Date: date}
	assert.NotEqual(t, first, messageIdentity(other))
}

func TestKindFromList(t *testing.T) {
	cases := []struct {
		mailbox string
		attrs   []goimap.MailboxAttr
		want    model.FolderKind
	}{
		{"INBOX", nil, model.KindMailInbox},
		{"inbox", nil, model.KindMailInbox},
		{"Drafts", []goimap.MailboxAttr{goimap.MailboxAttrDrafts}, model.KindMailDrafts},
		{"Gesendet", []goimap.MailboxAttr{goimap.MailboxAttrSent}, model.KindMailSent},
		{"Trash", []goimap.MailboxAttr{goimap.MailboxAttrTrash}, model.KindMailTrash},
		{"Spam", []goimap.MailboxAttr{goimap.MailboxAttrJunk}, model.KindMailJunk},
		{"Projects", nil, model.KindMail},
	}
	for _, tc := range cases {
		got := kindFromList(&goimap.ListData{Mailbox: tc.mailbox, Attrs: tc.attrs})
		assert.Equal(t, tc.want, got, "mailbox %s", tc.mailbox)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Projects/2026",
		displayName(&goimap.ListData{Mailbox: "Projects.2026", Delim: '.'}))
	assert.Equal(t, "INBOX",
		displayName(&goimap.ListData{Mailbox: "INBOX", Delim: 0}))
}
