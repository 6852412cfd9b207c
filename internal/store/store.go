package store

import "context"

// FolderKey identifies the sync state of one migrated folder pair.
type FolderKey struct {
	// SourceAccount is the stable account identifier of the source.
	SourceAccount string

	// SourceFolder and DestFolder are the protocol-level folder IDs on
	// each side.
	SourceFolder string
	DestFolder   string
}

// Store persists per-folder checkpoints and per-item fingerprints
// across migration runs. It is the only shared mutable resource between
// units of work; a folder's checkpoint is only ever written by the
// single folder job owning that folder.
type Store interface {
	// GetCheckpoint returns the last successfully applied checkpoint
	// for the folder pair, or "" when the pair was never synced.
	GetCheckpoint(ctx context.Context, key FolderKey) (string, error)

	// PutCheckpoint records a new checkpoint. Called only after every
	// destination write of the pass is durably applied.
	PutCheckpoint(ctx context.Context, key FolderKey, checkpoint string) error

	// GetFingerprint returns the source fingerprint last transferred
	// for the item, or "" when the item was never transferred.
	GetFingerprint(ctx context.Context, key FolderKey, uid string) (string, error)

	// PutFingerprint records a transferred item's source fingerprint.
	PutFingerprint(ctx context.Context, key FolderKey, uid, fingerprint string) error

	// DeleteFingerprint forgets an item, typically after mirroring its
	// deletion at the destination.
	DeleteFingerprint(ctx context.Context, key FolderKey, uid string) error

	// ListUIDs returns every UID with a recorded fingerprint for the
	// folder pair, used to reconcile deletions against a full listing.
	ListUIDs(ctx context.Context, key FolderKey) ([]string, error)

	// ClearFolder drops the checkpoint and all fingerprints for the
	// folder pair (force resync).
	ClearFolder(ctx context.Context, key FolderKey) error

	// Close releases the underlying storage.
	Close() error
}
