// Package driver defines the capability contract every protocol
// adapter implements. The engine talks to sources and destinations
// exclusively through this interface; all protocol-specific addressing,
// identity and versioning is normalized behind it.
package driver

import (
	"context"
	"errors"

	"github.com/mholva/gwmigrate/internal/model"
)

// ErrReadOnly is returned by write operations on drivers backed by
// static data (takeout archives).
var ErrReadOnly = errors.New("driver is read-only")

// ErrNotFound is returned by FetchItem when the referenced item no
// longer exists at the source.
var ErrNotFound = errors.New("item not found")

// ChangeSet is the result of enumerating a folder since a checkpoint.
type ChangeSet struct {
	// Refs lists items added or modified since the checkpoint; for a
	// full listing it is the folder's complete current item set.
	Refs []model.ItemRef

	// Deleted lists UIDs removed since the checkpoint. Only meaningful
	// for incremental listings; full listings report deletions
	// implicitly through absence.
	Deleted []string

	// Checkpoint is the new folder checkpoint to persist once the
	// corresponding transfers are durably applied.
	Checkpoint string

	// Full reports whether Refs is the complete current item set, so
	// the caller may reconcile deletions by absence.
	Full bool
}

// Driver is the per-protocol capability contract. Implementations must
// be safe for concurrent use; sibling item transfers within a folder
// run in parallel.
type Driver interface {
	// Protocol returns the protocol this driver speaks.
	Protocol() model.Protocol

	// ListFolders enumerates folders holding any of the requested
	// object types. Folders whose kind cannot be determined are
	// returned with KindOther rather than failing the listing.
	ListFolders(ctx context.Context, types []model.ObjectType) ([]model.Folder, error)

	// ListChanges enumerates items in folder. An empty since token
	// requests a full listing; otherwise only changes since that
	// checkpoint are returned.
	ListChanges(ctx context.Context, folder model.Folder, since string) (*ChangeSet, error)

	// FetchItem resolves an item reference to its full content.
	FetchItem(ctx context.Context, folder model.Folder, ref model.ItemRef) (*model.Item, error)

	// WriteItem upserts an item: an existing item with the same UID is
	// overwritten, never duplicated. Safe to call twice with identical
	// input.
	WriteItem(ctx context.Context, folder model.Folder, item *model.Item) (model.ItemRef, error)

	// DeleteItem removes the item with the given UID. Deleting an
	// absent item is not an error.
	DeleteItem(ctx context.Context, folder model.Folder, uid string) error

	// EnsureFolder resolves the destination folder for (parentPath,
	// name, kind), creating it when missing. Well-known kinds match an
	// existing folder by kind before name; a suitable existing folder
	// is never duplicated.
	EnsureFolder(ctx context.Context, parentPath, name string, kind model.FolderKind) (model.Folder, error)

	// DeleteFolder removes a folder and its contents.
	DeleteFolder(ctx context.Context, folder model.Folder) error

	// EmptyFolder removes all items from a folder, keeping the folder.
	EmptyFolder(ctx context.Context, folder model.Folder) error

	// Close releases any held connections.
	Close() error
}

// TagSource is implemented by drivers whose backing store carries tag
// (relation) objects that must be migrated outside the item pipeline.
type TagSource interface {
	ListTags(ctx context.Context) ([]model.Tag, error)
}

// TagSink is implemented by drivers able to persist migrated tags.
type TagSink interface {
	WriteTag(ctx context.Context, tag model.Tag) error
}
