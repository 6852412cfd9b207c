// Package kolab3 migrates legacy Kolab accounts where groupware
// objects are tunnelled as MIME messages inside dedicated IMAP
// folders. A folder's object kind comes from the
// vendor/kolab/folder-type METADATA annotation; mail folders behave as
// plain IMAP and delegate to the imap driver.
package kolab3

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/google/uuid"

	"github.com/mholva/gwmigrate/internal/driver"
	"github.com/mholva/gwmigrate/internal/driver/imap"
	"github.com/mholva/gwmigrate/internal/model"
)

const (
	sharedFolderType  = "/shared/vendor/kolab/folder-type"
	privateFolderType = "/private/vendor/kolab/folder-type"
)

// folderTypeKinds maps the annotation values to folder kinds.
var folderTypeKinds = map[string]model.FolderKind{
	"mail":             model.KindMail,
	"mail.inbox":       model.KindMailInbox,
	"mail.drafts":      model.KindMailDrafts,
	"mail.sentitems":   model.KindMailSent,
	"mail.wastebasket": model.KindMailTrash,
	"mail.junkemail":   model.KindMailJunk,
	"event":            model.KindEvent,
	"event.default":    model.KindEventDefault,
	"contact":          model.KindContact,
	"contact.default":  model.KindContactDefault,
	"task":             model.KindTask,
	"task.default":     model.KindTaskDefault,
	"configuration":    model.KindConfiguration,
}

type Driver struct {
	cfg     model.Config
	account *model.Account
	mail    *imap.Driver
	conn    imap.Connector
}

// New creates a Kolab3 driver for the account.
func New(cfg model.Config, account *model.Account) (*Driver, error) {
	mail, err := imap.New(cfg, account)
	if err != nil {
		return nil, err
	}
	return &Driver{
		cfg:     cfg,
		account: account,
		mail:    mail,
		conn:    imap.NewConnector(account),
	}, nil
}

func (d *Driver) Protocol() model.Protocol { return model.ProtocolKolab3 }

func (d *Driver) Close() error { return d.mail.Close() }

// ListFolders enumerates mailboxes and classifies each from its
// folder-type annotation. A private annotation overrides the shared
// one; a mailbox without either is a plain mail folder.
func (d *Driver) ListFolders(ctx context.Context, types []model.ObjectType) ([]model.Folder, error) {
	c, err := d.conn.Connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout().Wait() }()

	folders, err := d.listAnnotated(c)
	if err != nil {
		return nil, err
	}

	wanted := make(map[model.ObjectType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	var out []model.Folder
	for _, f := range folders {
		if wanted[f.Kind.ObjectType()] {
			out = append(out, f)
		}
	}
	return out, nil
}

func (d *Driver) listAnnotated(c *imapclient.Client) ([]model.Folder, error) {
	mboxes, err := c.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing mailboxes: %w", err)
	}

	var folders []model.Folder
	for _, mbox := range mboxes {
		if hasAttr(mbox.Attrs, goimap.MailboxAttrNoSelect) {
			continue
		}
		folders = append(folders, model.Folder{
			ID:         mbox.Mailbox,
			Name:       displayName(mbox),
			Kind:       d.folderKind(c, mbox),
			Subscribed: hasAttr(mbox.Attrs, goimap.MailboxAttrSubscribed),
		})
	}
	return folders, nil
}

// folderKind resolves a mailbox's kind from its annotation, falling
// back to plain-mail classification.
func (d *Driver) folderKind(c *imapclient.Client, mbox *goimap.ListData) model.FolderKind {
	folderType := d.folderType(c, mbox.Mailbox)
	if kind, ok := folderTypeKinds[folderType]; ok {
		return kind
	}
	if folderType != "" {
		return model.KindOther
	}
	return mailKind(mbox)
}

func (d *Driver) folderType(c *imapclient.Client, mailbox string) string {
	data, err := c.GetMetadata(mailbox, []string{sharedFolderType, privateFolderType}, nil).Wait()
	if err != nil || data == nil {
		return ""
	}
	for _, entry := range []string{privateFolderType, sharedFolderType} {
		if v := data.Entries[entry]; v != nil && len(*v) > 0 {
			return string(*v)
		}
	}
	return ""
}

// ListChanges enumerates a folder. Mail folders delegate to the imap
// driver; groupware folders list the tunnelled objects, whose UID is
// carried in the message subject.
func (d *Driver) ListChanges(ctx context.Context, folder model.Folder, since string) (*driver.ChangeSet, error) {
	if folder.Kind.ObjectType() == model.TypeMail {
		return d.mail.ListChanges(ctx, folder, since)
	}

	c, err := d.conn.Connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout().Wait() }()

	sel, err := c.Select(folder.ID, &goimap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", folder.ID, err)
	}

	cs := &driver.ChangeSet{Full: true}
	maxUID := goimap.UID(0)

	if sel.NumMessages > 0 {
		var seqSet goimap.SeqSet
		seqSet.AddRange(1, 0)

		fetchCmd := c.Fetch(seqSet, &goimap.FetchOptions{
			Envelope: true,
			Flags:    true,
			UID:      true,
		})
		defer fetchCmd.Close()

		for {
			msg := fetchCmd.Next()
			if msg == nil {
				break
			}
			buf, err := msg.Collect()
			if err != nil {
				continue
			}
			if buf.UID > maxUID {
				maxUID = buf.UID
			}
			if hasFlag(buf.Flags, goimap.FlagDeleted) {
				continue
			}
			// A Kolab object's UID lives in the message subject; a
			// message without one is not a groupware object.
			if buf.Envelope == nil || buf.Envelope.Subject == "" {
				continue
			}
			cs.Refs = append(cs.Refs, model.ItemRef{
				UID:         buf.Envelope.Subject,
				Fingerprint: fmt.Sprintf("%d:%d", sel.UIDValidity, buf.UID),
				Address:     strconv.FormatUint(uint64(buf.UID), 10),
			})
		}
		if err := fetchCmd.Close(); err != nil {
			return nil, fmt.Errorf("listing %s: %w", folder.ID, err)
		}
	}

	cs.Checkpoint = fmt.Sprintf("%d:%d", sel.UIDValidity, maxUID)
	return cs, nil
}

// FetchItem resolves a groupware object to its embedded serialized
// payload.
func (d *Driver) FetchItem(ctx context.Context, folder model.Folder, ref model.ItemRef) (*model.Item, error) {
	if folder.Kind.ObjectType() == model.TypeMail {
		return d.mail.FetchItem(ctx, folder, ref)
	}

	raw, err := d.fetchRaw(folder.ID, ref.Address)
	if err != nil {
		return nil, err
	}
	payload, err := unwrapObject(raw)
	if err != nil {
		return nil, fmt.Errorf("unwrapping object %s: %w", ref.UID, err)
	}
	return &model.Item{
		Ref:     ref,
		Type:    folder.Kind.ObjectType(),
		Content: payload,
	}, nil
}

func (d *Driver) fetchRaw(mailbox, address string) ([]byte, error) {
	uid, err := strconv.ParseUint(address, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad item address %q: %w", address, err)
	}

	c, err := d.conn.Connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout().Wait() }()

	if _, err := c.Select(mailbox, &goimap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	bodySection := &goimap.FetchItemBodySection{Peek: true}
	fetchCmd := c.Fetch(goimap.UIDSetNum(goimap.UID(uid)), &goimap.FetchOptions{
		UID:         true,
		BodySection: []*goimap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, driver.ErrNotFound
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message %d: %w", uid, err)
	}
	body := buf.FindBodySection(bodySection)
	if body == nil {
		return nil, fmt.Errorf("message %d in %s has no body", uid, mailbox)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching message %d: %w", uid, err)
	}
	return body, nil
}

// WriteItem upserts a groupware object: an existing message carrying
// the same object UID is removed before the new revision is appended.
func (d *Driver) WriteItem(ctx context.Context, folder model.Folder, item *model.Item) (model.ItemRef, error) {
	if item.Type == model.TypeMail {
		return d.mail.WriteItem(ctx, folder, item)
	}

	kolabType, ok := kolabTypes[item.Type]
	if !ok {
		return model.ItemRef{}, fmt.Errorf("kolab3: unsupported object type %s", item.Type)
	}
	raw, err := wrapObject(item.Ref.UID, d.account.LoginUser(), kolabType, partTypes[item.Type], item.Content)
	if err != nil {
		return model.ItemRef{}, err
	}

	c, err := d.conn.Connect()
	if err != nil {
		return model.ItemRef{}, err
	}
	defer func() { _ = c.Logout().Wait() }()

	if err := d.removeBySubject(c, folder.ID, item.Ref.UID); err != nil {
		return model.ItemRef{}, err
	}
	if err := appendMessage(c, folder.ID, raw); err != nil {
		return model.ItemRef{}, err
	}
	return model.ItemRef{UID: item.Ref.UID}, nil
}

// DeleteItem removes the message carrying the object UID. An absent
// object is already gone.
func (d *Driver) DeleteItem(ctx context.Context, folder model.Folder, uid string) error {
	if folder.Kind.ObjectType() == model.TypeMail {
		return d.mail.DeleteItem(ctx, folder, uid)
	}

	c, err := d.conn.Connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Logout().Wait() }()

	return d.removeBySubject(c, folder.ID, uid)
}

// removeBySubject expunges every message whose subject carries the
// object UID.
func (d *Driver) removeBySubject(c *imapclient.Client, mailbox, uid string) error {
	if _, err := c.Select(mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	data, err := c.UIDSearch(&goimap.SearchCriteria{
		Header: []goimap.SearchCriteriaHeaderField{
			{Key: "Subject", Value: uid},
		},
	}, nil).Wait()
	if err != nil {
		return fmt.Errorf("searching %s for %s: %w", mailbox, uid, err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil
	}

	storeCmd := c.Store(goimap.UIDSetNum(uids...), &goimap.StoreFlags{
		Op:     goimap.StoreFlagsAdd,
		Silent: true,
		Flags:  []goimap.Flag{goimap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking %s deleted: %w", uid, err)
	}
	if err := c.Expunge().Close(); err != nil {
		return fmt.Errorf("expunging %s: %w", mailbox, err)
	}
	return nil
}

// EnsureFolder resolves or creates a destination folder, setting the
// folder-type annotation on newly created groupware folders.
func (d *Driver) EnsureFolder(ctx context.Context, parentPath, name string, kind model.FolderKind) (model.Folder, error) {
	if kind.ObjectType() == model.TypeMail {
		return d.mail.EnsureFolder(ctx, parentPath, name, kind)
	}

	c, err := d.conn.Connect()
	if err != nil {
		return model.Folder{}, err
	}
	defer func() { _ = c.Logout().Wait() }()

	folders, err := d.listAnnotated(c)
	if err != nil {
		return model.Folder{}, err
	}

	var byName *model.Folder
	for i := range folders {
		f := folders[i]
		if f.Kind.ObjectType() != kind.ObjectType() {
			continue
		}
		if kind.IsDefault() && f.Kind == kind {
			return f, nil
		}
		if byName == nil && strings.EqualFold(f.Name, name) {
			byName = &folders[i]
		}
	}
	if byName != nil {
		return *byName, nil
	}

	if err := c.Create(name, nil).Wait(); err != nil {
		return model.Folder{}, fmt.Errorf("creating mailbox %s: %w", name, err)
	}
	folderType := annotationValue(kind)
	if err := c.SetMetadata(name, map[string]*[]byte{
		sharedFolderType: &folderType,
	}).Wait(); err != nil {
		return model.Folder{}, fmt.Errorf("annotating mailbox %s: %w", name, err)
	}
	// Subscription failures do not invalidate the folder.
	_ = c.Subscribe(name).Wait()

	return model.Folder{ID: name, Name: name, Kind: kind, Subscribed: true}, nil
}

func (d *Driver) DeleteFolder(ctx context.Context, folder model.Folder) error {
	return d.mail.DeleteFolder(ctx, folder)
}

func (d *Driver) EmptyFolder(ctx context.Context, folder model.Folder) error {
	return d.mail.EmptyFolder(ctx, folder)
}

// ListTags reads relation objects out of configuration folders,
// resolving member links to item UIDs.
func (d *Driver) ListTags(ctx context.Context) ([]model.Tag, error) {
	c, err := d.conn.Connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout().Wait() }()

	folders, err := d.listAnnotated(c)
	if err != nil {
		return nil, err
	}

	var tags []model.Tag
	for _, f := range folders {
		if f.Kind != model.KindConfiguration {
			continue
		}
		rels, err := d.listRelations(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("reading tags from %s: %w", f.ID, err)
		}
		for _, rel := range rels {
			tags = append(tags, rel.tag())
		}
	}
	return tags, nil
}

// WriteTag upserts a relation object in the configuration folder,
// replacing any existing relation with the same name.
func (d *Driver) WriteTag(ctx context.Context, tag model.Tag) error {
	folder, err := d.ensureConfiguration(ctx)
	if err != nil {
		return err
	}

	rels, err := d.listRelations(ctx, folder)
	if err != nil {
		return err
	}

	c, err := d.conn.Connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Logout().Wait() }()

	uid := uuid.NewSHA1(uuid.NameSpaceURL, []byte("kolab3://tag|"+tag.Name)).String()
	for _, rel := range rels {
		if rel.Name == tag.Name {
			uid = rel.UID
			if err := d.removeBySubject(c, folder.ID, rel.UID); err != nil {
				return err
			}
		}
	}

	rel := &relation{
		UID:          uid,
		Type:         "relation",
		RelationType: "tag",
		Name:         tag.Name,
		Members:      relationMembers(tag.MemberUIDs),
	}
	payload, err := rel.marshal()
	if err != nil {
		return err
	}
	raw, err := wrapObject(uid, d.account.LoginUser(), relationKolabType, relationPartType, payload)
	if err != nil {
		return err
	}
	return appendMessage(c, folder.ID, raw)
}

// listRelations fetches and parses every relation object in a
// configuration folder.
func (d *Driver) listRelations(ctx context.Context, folder model.Folder) ([]*relation, error) {
	cs, err := d.ListChanges(ctx, folder, "")
	if err != nil {
		return nil, err
	}

	var rels []*relation
	for _, ref := range cs.Refs {
		raw, err := d.fetchRaw(folder.ID, ref.Address)
		if err != nil {
			return nil, err
		}
		payload, err := unwrapObject(raw)
		if err != nil {
			continue
		}
		rel, err := parseRelation(payload)
		if err != nil || rel == nil {
			continue
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

// ensureConfiguration resolves the account's configuration folder,
// creating an annotated one when absent.
func (d *Driver) ensureConfiguration(ctx context.Context) (model.Folder, error) {
	c, err := d.conn.Connect()
	if err != nil {
		return model.Folder{}, err
	}
	defer func() { _ = c.Logout().Wait() }()

	folders, err := d.listAnnotated(c)
	if err != nil {
		return model.Folder{}, err
	}
	for _, f := range folders {
		if f.Kind == model.KindConfiguration {
			return f, nil
		}
	}

	const name = "Configuration"
	if err := c.Create(name, nil).Wait(); err != nil {
		return model.Folder{}, fmt.Errorf("creating mailbox %s: %w", name, err)
	}
	folderType := []byte("configuration")
	if err := c.SetMetadata(name, map[string]*[]byte{
		sharedFolderType: &folderType,
	}).Wait(); err != nil {
		return model.Folder{}, fmt.Errorf("annotating mailbox %s: %w", name, err)
	}
	return model.Folder{ID: name, Name: name, Kind: model.KindConfiguration}, nil
}

func appendMessage(c *imapclient.Client, mailbox string, raw []byte) error {
	appendCmd := c.Append(mailbox, int64(len(raw)), nil)
	if _, err := appendCmd.Write(raw); err != nil {
		return fmt.Errorf("appending to %s: %w", mailbox, err)
	}
	if err := appendCmd.Close(); err != nil {
		return fmt.Errorf("appending to %s: %w", mailbox, err)
	}
	if _, err := appendCmd.Wait(); err != nil {
		return fmt.Errorf("appending to %s: %w", mailbox, err)
	}
	return nil
}

func annotationValue(kind model.FolderKind) []byte {
	for folderType, k := range folderTypeKinds {
		if k == kind {
			return []byte(folderType)
		}
	}
	return []byte(string(kind))
}

func mailKind(mbox *goimap.ListData) model.FolderKind {
	if strings.EqualFold(mbox.Mailbox, "INBOX") {
		return model.KindMailInbox
	}
	for _, attr := range mbox.Attrs {
		switch attr {
		case goimap.MailboxAttrDrafts:
			return model.KindMailDrafts
		case goimap.MailboxAttrSent:
			return model.KindMailSent
		case goimap.MailboxAttrTrash:
			return model.KindMailTrash
		case goimap.MailboxAttrJunk:
			return model.KindMailJunk
		}
	}
	return model.KindMail
}

func displayName(mbox *goimap.ListData) string {
	if mbox.Delim == 0 {
		return mbox.Mailbox
	}
	return strings.ReplaceAll(mbox.Mailbox, string(mbox.Delim), "/")
}

func hasAttr(attrs []goimap.MailboxAttr, want goimap.MailboxAttr) bool {
	for _, attr := range attrs {
		if attr == want {
			return true
		}
	}
	return false
}

func hasFlag(flags []goimap.Flag, want goimap.Flag) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
