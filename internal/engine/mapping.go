package engine

import (
	"path"

	"github.com/mholva/gwmigrate/internal/model"
)

// wellKnownNames are the canonical destination names for well-known
// folder roles. The destination driver matches by kind first, so these
// only apply when the role has to be created from scratch.
var wellKnownNames = map[model.FolderKind]string{
	model.KindMailInbox:      "INBOX",
	model.KindMailDrafts:     "Drafts",
	model.KindMailSent:       "Sent",
	model.KindMailTrash:      "Trash",
	model.KindMailJunk:       "Junk",
	model.KindEventDefault:   "Calendar",
	model.KindContactDefault: "Contacts",
	model.KindTaskDefault:    "Tasks",
}

// destinationTarget maps a source folder onto the (parent, name, kind)
// triple handed to the destination's EnsureFolder. Well-known roles
// map to the destination's corresponding folder; user-created folders
// keep their relative path.
func destinationTarget(f model.Folder) (parent, name string, kind model.FolderKind) {
	if canonical, ok := wellKnownNames[f.Kind]; ok {
		return "", canonical, f.Kind
	}

	dir, base := path.Split(f.Name)
	return path.Clean("/" + dir)[1:], base, f.Kind
}
