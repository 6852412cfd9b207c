// Package takeout reads static export archives (Google Takeout style
// zip files). The archive is a snapshot: every run lists its fixed
// content in full and every write operation is rejected, making the
// driver source-only.
package takeout

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/mholva/gwmigrate/internal/driver"
	"github.com/mholva/gwmigrate/internal/ics"
	"github.com/mholva/gwmigrate/internal/model"
)

type Driver struct {
	account *model.Account
	archive *zip.ReadCloser

	mu    sync.Mutex
	items map[string]map[string]*model.Item // folder id -> uid -> item
}

// New opens the zip archive named by the account's path or archive
// option.
func New(cfg model.Config, account *model.Account) (*Driver, error) {
	archivePath := account.ArchivePath()
	if archivePath == "" {
		return nil, fmt.Errorf("takeout: account has no archive path")
	}
	rc, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	return &Driver{
		account: account,
		archive: rc,
		items:   make(map[string]map[string]*model.Item),
	}, nil
}

func (d *Driver) Protocol() model.Protocol { return model.ProtocolTakeout }

func (d *Driver) Close() error { return d.archive.Close() }

// ListFolders maps archive entries to folders: one mail folder per
// .mbox file, one event and one task folder per .ics file (split by
// component), one contact folder per .vcf file.
func (d *Driver) ListFolders(ctx context.Context, types []model.ObjectType) ([]model.Folder, error) {
	wanted := make(map[model.ObjectType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	var folders []model.Folder
	add := func(f model.Folder) {
		if wanted[f.Kind.ObjectType()] {
			folders = append(folders, f)
		}
	}

	for _, entry := range d.archive.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		name := entryTitle(entry.Name)
		switch strings.ToLower(path.Ext(entry.Name)) {
		case ".mbox":
			add(model.Folder{ID: entry.Name, Name: name, Kind: mailKind(name), Subscribed: true})
		case ".ics":
			data, err := d.readEntry(entry.Name)
			if err != nil {
				return nil, err
			}
			if len(ics.Components(data, "VEVENT")) > 0 {
				add(model.Folder{ID: "event:" + entry.Name, Name: name, Kind: model.KindEvent, Subscribed: true})
			}
			if len(ics.Components(data, "VTODO")) > 0 {
				add(model.Folder{ID: "task:" + entry.Name, Name: name, Kind: model.KindTask, Subscribed: true})
			}
		case ".vcf":
			add(model.Folder{ID: entry.Name, Name: name, Kind: model.KindContact, Subscribed: true})
		}
	}
	return folders, nil
}

// ListChanges returns the archive's full content for the folder. The
// checkpoint is constant: the archive cannot change, and unchanged
// items are skipped by fingerprint at the destination.
func (d *Driver) ListChanges(ctx context.Context, folder model.Folder, since string) (*driver.ChangeSet, error) {
	items, err := d.load(folder)
	if err != nil {
		return nil, err
	}
	cs := &driver.ChangeSet{Full: true, Checkpoint: "archive"}
	for _, item := range items {
		cs.Refs = append(cs.Refs, item.Ref)
	}
	return cs, nil
}

func (d *Driver) FetchItem(ctx context.Context, folder model.Folder, ref model.ItemRef) (*model.Item, error) {
	items, err := d.load(folder)
	if err != nil {
		return nil, err
	}
	item, ok := items[ref.UID]
	if !ok {
		return nil, driver.ErrNotFound
	}
	return item, nil
}

func (d *Driver) WriteItem(ctx context.Context, folder model.Folder, item *model.Item) (model.ItemRef, error) {
	return model.ItemRef{}, driver.ErrReadOnly
}

func (d *Driver) DeleteItem(ctx context.Context, folder model.Folder, uid string) error {
	return driver.ErrReadOnly
}

func (d *Driver) EnsureFolder(ctx context.Context, parentPath, name string, kind model.FolderKind) (model.Folder, error) {
	return model.Folder{}, driver.ErrReadOnly
}

func (d *Driver) DeleteFolder(ctx context.Context, folder model.Folder) error {
	return driver.ErrReadOnly
}

func (d *Driver) EmptyFolder(ctx context.Context, folder model.Folder) error {
	return driver.ErrReadOnly
}

// load parses a folder's archive entry once and caches the items. An
// archive is local and bounded, so holding a folder's items in memory
// keeps FetchItem from re-reading the entry per item.
func (d *Driver) load(folder model.Folder) (map[string]*model.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if items, ok := d.items[folder.ID]; ok {
		return items, nil
	}

	entryName := strings.TrimPrefix(strings.TrimPrefix(folder.ID, "event:"), "task:")
	data, err := d.readEntry(entryName)
	if err != nil {
		return nil, err
	}

	var items map[string]*model.Item
	switch folder.Kind.ObjectType() {
	case model.TypeMail:
		items, err = parseMbox(data)
	case model.TypeEvent:
		items = parseCalendar(data, "VEVENT", model.TypeEvent)
	case model.TypeTask:
		items = parseCalendar(data, "VTODO", model.TypeTask)
	case model.TypeContact:
		items = parseVCards(data)
	default:
		return nil, fmt.Errorf("takeout: unsupported folder kind %s", folder.Kind)
	}
	if err != nil {
		return nil, err
	}
	d.items[folder.ID] = items
	return items, nil
}

func (d *Driver) readEntry(name string) ([]byte, error) {
	for _, entry := range d.archive.File {
		if entry.Name != name {
			continue
		}
		r, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("opening archive entry %s: %w", name, err)
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading archive entry %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("takeout: archive entry %s not found", name)
}

// parseMbox splits an mbox stream into messages keyed by Message-ID,
// with a content-hash fallback for messages lacking one.
func parseMbox(data []byte) (map[string]*model.Item, error) {
	items := make(map[string]*model.Item)
	r := mbox.NewReader(bytes.NewReader(data))
	for {
		mr, err := r.NextMessage()
		if err == io.EOF {
			return items, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading mbox: %w", err)
		}
		raw, err := io.ReadAll(mr)
		if err != nil {
			return nil, fmt.Errorf("reading mbox message: %w", err)
		}

		uid := messageUID(raw)
		items[uid] = &model.Item{
			Ref: model.ItemRef{
				UID:         uid,
				Fingerprint: contentHash(raw),
				Address:     uid,
			},
			Type:    model.TypeMail,
			Content: raw,
		}
	}
}

// messageUID extracts the Message-ID header, falling back to a content
// hash.
func messageUID(raw []byte) string {
	if entity, err := message.Read(bytes.NewReader(raw)); err == nil {
		h := mail.Header{Header: entity.Header}
		if id, err := h.MessageID(); err == nil && id != "" {
			return id
		}
	}
	return "sha1:" + contentHash(raw)
}

// parseCalendar groups the named components by UID, one item per UID
// with masters and their recurrence exceptions in a single payload.
func parseCalendar(data []byte, component string, t model.ObjectType) map[string]*model.Item {
	items := make(map[string]*model.Item)
	for uid, payload := range ics.GroupByUID(data, component) {
		items[uid] = &model.Item{
			Ref: model.ItemRef{
				UID:         uid,
				Fingerprint: contentHash(payload),
				Address:     uid,
			},
			Type:    t,
			Content: payload,
		}
	}
	return items
}

// parseVCards splits a multi-card stream. Exported contacts often lack
// a UID property, so one is derived deterministically from the card
// content.
func parseVCards(data []byte) map[string]*model.Item {
	items := make(map[string]*model.Item)
	for _, card := range ics.Components(data, "VCARD") {
		uid := ics.UID(card)
		if uid == "" {
			uid = uuid.NewSHA1(uuid.NameSpaceURL, append([]byte("takeout://contact|"), card...)).String()
			card = withUID(card, uid)
		}
		payload := append(card, '\r', '\n')
		items[uid] = &model.Item{
			Ref: model.ItemRef{
				UID:         uid,
				Fingerprint: contentHash(payload),
				Address:     uid,
			},
			Type:    model.TypeContact,
			Content: payload,
		}
	}
	return items
}

// withUID inserts a UID property after the BEGIN line.
func withUID(card []byte, uid string) []byte {
	insert := []byte("BEGIN:VCARD\r\nUID:" + uid)
	out := bytes.Replace(card, []byte("BEGIN:VCARD"), insert, 1)
	return out
}

func contentHash(data []byte) string {
	return fmt.Sprintf("%x", sha1.Sum(data))
}

// mailKind classifies a mail folder by its exported name.
func mailKind(name string) model.FolderKind {
	switch strings.ToLower(name) {
	case "inbox":
		return model.KindMailInbox
	case "drafts":
		return model.KindMailDrafts
	case "sent", "sent mail":
		return model.KindMailSent
	case "trash", "bin":
		return model.KindMailTrash
	case "spam", "junk":
		return model.KindMailJunk
	}
	return model.KindMail
}

// entryTitle derives a display name from an archive entry path.
func entryTitle(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}
