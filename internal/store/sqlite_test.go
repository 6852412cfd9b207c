package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mholva/gwmigrate/internal/store"
	"github.com/mholva/gwmigrate/tests/testutil"
)

var key = store.FolderKey{
	SourceAccount: "imap://alice@mail.example.com",
	SourceFolder:  "INBOX",
	DestFolder:    "INBOX",
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	cp, err := s.GetCheckpoint(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "", cp)

	require.NoError(t, s.PutCheckpoint(ctx, key, "42:100"))
	cp, err = s.GetCheckpoint(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "42:100", cp)

	// A later pass replaces the checkpoint in place.
	require.NoError(t, s.PutCheckpoint(ctx, key, "42:150"))
	cp, err = s.GetCheckpoint(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "42:150", cp)
}

func TestCheckpointKeyedPerFolderPair(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	other := key
	other.DestFolder = "Archive"

	require.NoError(t, s.PutCheckpoint(ctx, key, "a"))
	require.NoError(t, s.PutCheckpoint(ctx, other, "b"))

	cp, err := s.GetCheckpoint(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, "b", cp)
}

func TestFingerprints(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	fp, err := s.GetFingerprint(ctx, key, "msg-1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "", fp)

	require.NoError(t, s.PutFingerprint(ctx, key, "msg-1@example.com", "42:1:seen"))
	require.NoError(t, s.PutFingerprint(ctx, key, "msg-2@example.com", "42:2:"))

	fp, err = s.GetFingerprint(ctx, key, "msg-1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "42:1:seen", fp)

	// Upsert replaces.
	require.NoError(t, s.PutFingerprint(ctx, key, "msg-1@example.com", "42:1:flagged,seen"))
	fp, err = s.GetFingerprint(ctx, key, "msg-1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "42:1:flagged,seen", fp)

	uids, err := s.ListUIDs(ctx, key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"msg-1@example.com", "msg-2@example.com"}, uids)

	require.NoError(t, s.DeleteFingerprint(ctx, key, "msg-1@example.com"))
	uids, err = s.ListUIDs(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"msg-2@example.com"}, uids)

	// Deleting an absent fingerprint is not an error.
	require.NoError(t, s.DeleteFingerprint(ctx, key, "gone@example.com"))
}

func TestClearFolder(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutCheckpoint(ctx, key, "42:100"))
	require.NoError(t, s.PutFingerprint(ctx, key, "msg-1@example.com", "fp"))

	other := key
	other.SourceFolder = "Sent"
	require.NoError(t, s.PutCheckpoint(ctx, other, "keep"))

	require.NoError(t, s.ClearFolder(ctx, key))

	cp, err := s.GetCheckpoint(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "", cp)

	uids, err := s.ListUIDs(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, uids)

	// Sibling folders are untouched.
	cp, err = s.GetCheckpoint(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, "keep", cp)
}
