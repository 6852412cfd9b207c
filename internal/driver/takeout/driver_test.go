package takeout

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mholva/gwmigrate/internal/driver"
	"github.com/mholva/gwmigrate/internal/model"
)

const inboxMbox = "From alice@example.com Thu Apr  2 09:00:00 2026\r\n" +
	"From: alice@example.com\r\n" +
	"Message-ID: <sync1@x>\r\n" +
	"Subject: first\r\n" +
	"\r\n" +
	"body one\r\n" +
	"\r\n" +
	"From alice@example.com Thu Apr  2 10:00:00 2026\r\n" +
	"From: alice@example.com\r\n" +
	"Subject: second, no message id\r\n" +
	"\r\n" +
	"body two\r\n"

const calendarICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:ev-1\r\n" +
	"SUMMARY:standup\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VTODO\r\n" +
	"UID:td-1\r\n" +
	"SUMMARY:file report\r\n" +
	"END:VTODO\r\n" +
	"END:VCALENDAR\r\n"

const contactsVCF = "BEGIN:VCARD\r\n" +
	"VERSION:3.0\r\n" +
	"FN:Alice Example\r\n" +
	"END:VCARD\r\n" +
	"BEGIN:VCARD\r\n" +
	"VERSION:3.0\r\n" +
	"UID:card-1\r\n" +
	"FN:Bob Example\r\n" +
	"END:VCARD\r\n"

func writeArchive(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	archive := filepath.Join(dir, "takeout.zip")

	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range map[string]string{
		"Takeout/Mail/Inbox.mbox":         inboxMbox,
		"Takeout/Calendar/Personal.ics":   calendarICS,
		"Takeout/Contacts/MyContacts.vcf": contactsVCF,
		"Takeout/Archive/ignored.json":    "{}",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return archive
}

func openDriver(t *testing.T) *Driver {
	t.Helper()
	account, err := model.ParseAccount("takeout://export@localhost" + writeArchive(t))
	require.NoError(t, err)
	d, err := New(model.Config{}, account)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestListFolders(t *testing.T) {
	d := openDriver(t)
	folders, err := d.ListFolders(context.Background(), model.ParseObjectTypes(""))
	require.NoError(t, err)

	byKind := make(map[model.FolderKind]model.Folder)
	for _, f := range folders {
		byKind[f.Kind] = f
	}
	require.Len(t, folders, 4)
	assert.Equal(t, "Inbox", byKind[model.KindMailInbox].Name)
	assert.Equal(t, "Personal", byKind[model.KindEvent].Name)
	assert.Equal(t, "Personal", byKind[model.KindTask].Name)
	assert.Equal(t, "MyContacts", byKind[model.KindContact].Name)

	// The shared .ics entry yields distinct folder ids per component.
	assert.NotEqual(t, byKind[model.KindEvent].ID, byKind[model.KindTask].ID)

	mailOnly, err := d.ListFolders(context.Background(), []model.ObjectType{model.TypeMail})
	require.NoError(t, err)
	require.Len(t, mailOnly, 1)
	assert.Equal(t, model.KindMailInbox, mailOnly[0].Kind)
}

func TestMailListing(t *testing.T) {
	d := openDriver(t)
	folder := model.Folder{ID: "Takeout/Mail/Inbox.mbox", Name: "Inbox", Kind: model.KindMailInbox}

	cs, err := d.ListChanges(context.Background(), folder, "")
	require.NoError(t, err)
	assert.True(t, cs.Full)
	assert.Equal(t, "archive", cs.Checkpoint)
	require.Len(t, cs.Refs, 2)

	uids := []string{cs.Refs[0].UID, cs.Refs[1].UID}
	assert.Contains(t, uids, "sync1@x")

	item, err := d.FetchItem(context.Background(), folder, model.ItemRef{UID: "sync1@x"})
	require.NoError(t, err)
	assert.Contains(t, string(item.Content), "Subject: first")
	assert.Equal(t, model.TypeMail, item.Type)

	// The second listing is served from cache and stays identical.
	again, err := d.ListChanges(context.Background(), folder, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, cs.Refs, again.Refs)
}

func TestCalendarSplitByComponent(t *testing.T) {
	d := openDriver(t)
	events := model.Folder{ID: "event:Takeout/Calendar/Personal.ics", Name: "Personal", Kind: model.KindEvent}
	tasks := model.Folder{ID: "task:Takeout/Calendar/Personal.ics", Name: "Personal", Kind: model.KindTask}

	ev, err := d.ListChanges(context.Background(), events, "")
	require.NoError(t, err)
	require.Len(t, ev.Refs, 1)
	assert.Equal(t, "ev-1", ev.Refs[0].UID)

	td, err := d.ListChanges(context.Background(), tasks, "")
	require.NoError(t, err)
	require.Len(t, td.Refs, 1)
	assert.Equal(t, "td-1", td.Refs[0].UID)

	item, err := d.FetchItem(context.Background(), events, ev.Refs[0])
	require.NoError(t, err)
	assert.Contains(t, string(item.Content), "BEGIN:VEVENT")
	assert.NotContains(t, string(item.Content), "BEGIN:VTODO")
}

func TestContactUIDDerivation(t *testing.T) {
	d := openDriver(t)
	folder := model.Folder{ID: "Takeout/Contacts/MyContacts.vcf", Name: "MyContacts", Kind: model.KindContact}

	cs, err := d.ListChanges(context.Background(), folder, "")
	require.NoError(t, err)
	require.Len(t, cs.Refs, 2)

	var derived string
	for _, ref := range cs.Refs {
		if ref.UID != "card-1" {
			derived = ref.UID
		}
	}
	require.NotEmpty(t, derived)

	// The derived UID is injected into the card content.
	item, err := d.FetchItem(context.Background(), folder, model.ItemRef{UID: derived})
	require.NoError(t, err)
	assert.Contains(t, string(item.Content), "UID:"+derived)

	// Re-opening the archive derives the same UID.
	other := openDriver(t)
	cs2, err := other.ListChanges(context.Background(), folder, "")
	require.NoError(t, err)
	uids := []string{cs2.Refs[0].UID, cs2.Refs[1].UID}
	assert.Contains(t, uids, derived)
}

func TestWritesRejected(t *testing.T) {
	d := openDriver(t)
	folder := model.Folder{ID: "Takeout/Mail/Inbox.mbox", Kind: model.KindMailInbox}

	_, err := d.WriteItem(context.Background(), folder, &model.Item{})
	assert.ErrorIs(t, err, driver.ErrReadOnly)
	assert.ErrorIs(t, d.DeleteItem(context.Background(), folder, "sync1@x"), driver.ErrReadOnly)
	_, err = d.EnsureFolder(context.Background(), "", "New", model.KindMail)
	assert.ErrorIs(t, err, driver.ErrReadOnly)
	assert.ErrorIs(t, d.DeleteFolder(context.Background(), folder), driver.ErrReadOnly)
	assert.ErrorIs(t, d.EmptyFolder(context.Background(), folder), driver.ErrReadOnly)
}
