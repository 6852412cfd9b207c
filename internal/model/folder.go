package model

import "strings"

// ObjectType is the coarse class of groupware data a folder holds.
type ObjectType string

const (
	TypeMail    ObjectType = "mail"
	TypeEvent   ObjectType = "event"
	TypeContact ObjectType = "contact"
	TypeTask    ObjectType = "task"
	TypeConfig  ObjectType = "configuration"
	TypeOther   ObjectType = "other"
)

// ParseObjectTypes parses a comma-separated type filter ("mail,event").
// An empty input selects all migratable types.
func ParseObjectTypes(s string) []ObjectType {
	if strings.TrimSpace(s) == "" {
		return []ObjectType{TypeMail, TypeEvent, TypeContact, TypeTask}
	}
	var types []ObjectType
	for _, part := range strings.Split(s, ",") {
		switch ObjectType(strings.TrimSpace(part)) {
		case TypeMail:
			types = append(types, TypeMail)
		case TypeEvent:
			types = append(types, TypeEvent)
		case TypeContact:
			types = append(types, TypeContact)
		case TypeTask:
			types = append(types, TypeTask)
		}
	}
	return types
}

// FolderKind classifies a folder, including the well-known roles that
// must map onto the destination's corresponding folder instead of
// being recreated under their source name.
type FolderKind string

const (
	KindMail           FolderKind = "mail"
	KindMailInbox      FolderKind = "mail.inbox"
	KindMailDrafts     FolderKind = "mail.drafts"
	KindMailSent       FolderKind = "mail.sentitems"
	KindMailTrash      FolderKind = "mail.trash"
	KindMailJunk       FolderKind = "mail.junk"
	KindEvent          FolderKind = "event"
	KindEventDefault   FolderKind = "event.default"
	KindContact        FolderKind = "contact"
	KindContactDefault FolderKind = "contact.default"
	KindTask           FolderKind = "task"
	KindTaskDefault    FolderKind = "task.default"
	KindConfiguration  FolderKind = "configuration"
	KindOther          FolderKind = "other"
)

// ObjectType returns the data class of a folder kind.
func (k FolderKind) ObjectType() ObjectType {
	switch {
	case strings.HasPrefix(string(k), "mail"):
		return TypeMail
	case strings.HasPrefix(string(k), "event"):
		return TypeEvent
	case strings.HasPrefix(string(k), "contact"):
		return TypeContact
	case strings.HasPrefix(string(k), "task"):
		return TypeTask
	case k == KindConfiguration:
		return TypeConfig
	default:
		return TypeOther
	}
}

// IsDefault reports whether the kind names a well-known folder role
// that exists at most once per account.
func (k FolderKind) IsDefault() bool {
	switch k {
	case KindMailInbox, KindMailDrafts, KindMailSent, KindMailTrash,
		KindMailJunk, KindEventDefault, KindContactDefault, KindTaskDefault:
		return true
	}
	return false
}

// Migratable reports whether folders of this kind go through the item
// pipeline. Configuration and unrecognized folders are source-only
// bookkeeping.
func (k FolderKind) Migratable() bool {
	switch k.ObjectType() {
	case TypeConfig, TypeOther:
		return false
	}
	return true
}

// Folder is an immutable snapshot of a source or destination
// collection as returned by a driver's folder listing.
type Folder struct {
	// ID is the stable protocol-level identifier: a mailbox path for
	// IMAP, a collection href for DAV, a server-assigned id for EWS.
	ID string

	// Name is the display name, with hierarchy separated by "/".
	Name string

	Kind       FolderKind
	Subscribed bool

	// Checkpoint is the folder's opaque sync token as of the listing:
	// "uidvalidity:lastuid" for IMAP, a sync-token or ctag for DAV, a
	// SyncState blob for EWS. Empty when the folder was never synced.
	Checkpoint string
}
