package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mholva/gwmigrate/internal/model"
)

func TestDestinationTargetWellKnown(t *testing.T) {
	cases := []struct {
		folder model.Folder
		name   string
	}{
		{model.Folder{Name: "INBOX", Kind: model.KindMailInbox}, "INBOX"},
		{model.Folder{Name: "Gesendete Objekte", Kind: model.KindMailSent}, "Sent"},
		{model.Folder{Name: "Papierkorb", Kind: model.KindMailTrash}, "Trash"},
		{model.Folder{Name: "Personal Calendar", Kind: model.KindEventDefault}, "Calendar"},
		{model.Folder{Name: "Addresses", Kind: model.KindContactDefault}, "Contacts"},
		{model.Folder{Name: "My Tasks", Kind: model.KindTaskDefault}, "Tasks"},
	}
	for _, tc := range cases {
		parent, name, kind := destinationTarget(tc.folder)
		assert.Empty(t, parent, "folder %s", tc.folder.Name)
		assert.Equal(t, tc.name, name, "folder %s", tc.folder.Name)
		assert.Equal(t, tc.folder.Kind, kind)
	}
}

func TestDestinationTargetUserFolders(t *testing.T) {
	parent, name, kind := destinationTarget(model.Folder{Name: "Projects", Kind: model.KindMail})
	assert.Empty(t, parent)
	assert.Equal(t, "Projects", name)
	assert.Equal(t, model.KindMail, kind)

	parent, name, _ = destinationTarget(model.Folder{Name: "Projects/2026/Q3", Kind: model.KindMail})
	assert.Equal(t, "Projects/2026", parent)
	assert.Equal(t, "Q3", name)

	parent, name, _ = destinationTarget(model.Folder{Name: "Team Calendar", Kind: model.KindEvent})
	assert.Empty(t, parent)
	assert.Equal(t, "Team Calendar", name)
}
