package imap

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/mholva/gwmigrate/internal/driver"
	"github.com/mholva/gwmigrate/internal/model"
)

// Driver speaks IMAP. Item identity is the Message-ID header (content
// digest fallback); the fingerprint is the IMAP UID plus flag set
// under the folder's UIDVALIDITY; the folder checkpoint is
// "uidvalidity:lastuid".
type Driver struct {
	cfg     model.Config
	account *model.Account
	conn    connector
}

// New creates an IMAP driver for the account.
func New(cfg model.Config, account *model.Account) (*Driver, error) {
	return &Driver{
		cfg:     cfg,
		account: account,
		conn:    newConnector(account),
	}, nil
}

func (d *Driver) Protocol() model.Protocol { return d.account.Protocol }

func (d *Driver) Close() error { return nil }

// ListFolders enumerates mailboxes, classifying them from SPECIAL-USE
// attributes and the INBOX name.
func (d *Driver) ListFolders(ctx context.Context, types []model.ObjectType) ([]model.Folder, error) {
	if !wantsMail(types) {
		return nil, nil
	}

	c, err := d.conn.connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout().Wait() }()

	mboxes, err := c.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing mailboxes: %w", err)
	}

	var folders []model.Folder
	for _, mbox := range mboxes {
		if hasAttr(mbox.Attrs, imap.MailboxAttrNoSelect) {
			continue
		}
		folders = append(folders, model.Folder{
			ID:         mbox.Mailbox,
			Name:       displayName(mbox),
			Kind:       kindFromList(mbox),
			Subscribed: hasAttr(mbox.Attrs, imap.MailboxAttrSubscribed),
		})
	}
	return folders, nil
}

// ListChanges enumerates the folder's messages with their envelope and
// flags. The listing is always complete; without CONDSTORE there is no
// way to enumerate flag changes since a UID, so the per-item
// fingerprints let the engine skip everything unchanged instead. The
// since checkpoint carries the UIDVALIDITY the previous run saw: a
// changed value means the mailbox was recreated and its lastuid is
// void, an unchanged one keeps lastuid monotonic across runs.
func (d *Driver) ListChanges(ctx context.Context, folder model.Folder, since string) (*driver.ChangeSet, error) {
	c, err := d.conn.connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout().Wait() }()

	sel, err := c.Select(folder.ID, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", folder.ID, err)
	}

	cs := &driver.ChangeSet{Full: true}
	maxUID := imap.UID(0)

	if sel.NumMessages > 0 {
		var seqSet imap.SeqSet
		seqSet.AddRange(1, 0)

		fetchCmd := c.Fetch(seqSet, &imap.FetchOptions{
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
			flags := normalizeFlags(buf.Flags)
			cs.Refs = append(cs.Refs, model.ItemRef{
				UID:         messageIdentity(buf.Envelope),
				Fingerprint: fmt.Sprintf("%d:%d:%s", sel.UIDValidity, buf.UID, flagsFingerprint(flags)),
				Address:     strconv.FormatUint(uint64(buf.UID), 10),
			})
		}
		if err := fetchCmd.Close(); err != nil {
			return nil, fmt.Errorf("fetching envelopes in %s: %w", folder.ID, err)
		}
	}

	cs.Checkpoint = nextCheckpoint(since, sel.UIDValidity, maxUID)
	return cs, nil
}

// parseCheckpoint splits a "uidvalidity:lastuid" checkpoint token.
func parseCheckpoint(s string) (validity uint32, last imap.UID, ok bool) {
	v, l, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, false
	}
	pv, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, 0, false
	}
	pl, err := strconv.ParseUint(l, 10, 32)
	if err != nil {
		return 0, 0, false
	}
	return uint32(pv), imap.UID(pl), true
}

// nextCheckpoint advances a folder checkpoint. Under an unchanged
// UIDVALIDITY the recorded lastuid never regresses, even after the
// newest messages were deleted; a changed UIDVALIDITY means the
// mailbox was recreated and UID numbering restarted.
func nextCheckpoint(prev string, validity uint32, maxUID imap.UID) string {
	if pv, pl, ok := parseCheckpoint(prev); ok && pv == validity && pl > maxUID {
		maxUID = pl
	}
	return fmt.Sprintf("%d:%d", validity, maxUID)
}

// FetchItem fetches the full RFC 5322 message for a reference.
func (d *Driver) FetchItem(ctx context.Context, folder model.Folder, ref model.ItemRef) (*model.Item, error) {
	uid, err := strconv.ParseUint(ref.Address, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad item address %q: %w", ref.Address, err)
	}

	c, err := d.conn.connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout().Wait() }()

	if _, err := c.Select(folder.ID, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", folder.ID, err)
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := c.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
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
		return nil, fmt.Errorf("message %d in %s has no body", uid, folder.ID)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching message %d: %w", uid, err)
	}

	return &model.Item{
		Ref:     ref,
		Type:    model.TypeMail,
		Content: body,
		Flags:   normalizeFlags(buf.Flags),
	}, nil
}

// WriteItem upserts a message. Mail content is immutable, so an
// existing message with the same Message-ID only has its flags
// replaced; otherwise the message is appended.
func (d *Driver) WriteItem(ctx context.Context, folder model.Folder, item *model.Item) (model.ItemRef, error) {
	c, err := d.conn.connect()
	if err != nil {
		return model.ItemRef{}, err
	}
	defer func() { _ = c.Logout().Wait() }()

	existing, err := d.findExisting(c, folder.ID, item.Ref.UID, item.Content)
	if err != nil {
		return model.ItemRef{}, err
	}

	if existing != 0 {
		storeCmd := c.Store(imap.UIDSetNum(existing), &imap.StoreFlags{
			Op:     imap.StoreFlagsSet,
			Silent: true,
			Flags:  wireFlags(item.Flags),
		}, nil)
		if err := storeCmd.Close(); err != nil {
			return model.ItemRef{}, fmt.Errorf("updating flags of %s: %w", item.Ref.UID, err)
		}
		return model.ItemRef{
			UID:     item.Ref.UID,
			Address: strconv.FormatUint(uint64(existing), 10),
		}, nil
	}

	appendCmd := c.Append(folder.ID, int64(len(item.Content)), &imap.AppendOptions{
		Flags: wireFlags(item.Flags),
	})
	if _, err := appendCmd.Write(item.Content); err != nil {
		return model.ItemRef{}, fmt.Errorf("appending to %s: %w", folder.ID, err)
	}
	if err := appendCmd.Close(); err != nil {
		return model.ItemRef{}, fmt.Errorf("appending to %s: %w", folder.ID, err)
	}
	if _, err := appendCmd.Wait(); err != nil {
		return model.ItemRef{}, fmt.Errorf("appending to %s: %w", folder.ID, err)
	}

	return model.ItemRef{UID: item.Ref.UID}, nil
}

// DeleteItem removes the message with the given identity. Deleting an
// absent message is not an error.
func (d *Driver) DeleteItem(ctx context.Context, folder model.Folder, uid string) error {
	c, err := d.conn.connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Logout().Wait() }()

	existing, err := d.findExisting(c, folder.ID, uid, nil)
	if err != nil {
		return err
	}
	if existing == 0 {
		return nil
	}
	// findExisting selected the folder read-only; reselect to write.
	if _, err := c.Select(folder.ID, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", folder.ID, err)
	}

	storeCmd := c.Store(imap.UIDSetNum(existing), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking %s deleted: %w", uid, err)
	}

	if err := c.Expunge().Close(); err != nil {
		return fmt.Errorf("expunging %s: %w", folder.ID, err)
	}
	return nil
}

// EnsureFolder resolves a destination mailbox, matching well-known
// kinds by SPECIAL-USE attribute before falling back to the name, and
// creating the mailbox only when nothing suitable exists.
func (d *Driver) EnsureFolder(ctx context.Context, parentPath, name string, kind model.FolderKind) (model.Folder, error) {
	c, err := d.conn.connect()
	if err != nil {
		return model.Folder{}, err
	}
	defer func() { _ = c.Logout().Wait() }()

	mboxes, err := c.List("", "*", nil).Collect()
	if err != nil {
		return model.Folder{}, fmt.Errorf("listing mailboxes: %w", err)
	}

	delim := "/"
	for _, mbox := range mboxes {
		if mbox.Delim != 0 {
			delim = string(mbox.Delim)
			break
		}
	}

	if kind.IsDefault() {
		for _, mbox := range mboxes {
			if kindFromList(mbox) == kind {
				return model.Folder{
					ID:   mbox.Mailbox,
					Name: displayName(mbox),
					Kind: kind,
				}, nil
			}
		}
	}

	full := name
	if parentPath != "" {
		full = parentPath + "/" + name
	}
	target := strings.ReplaceAll(full, "/", delim)

	for _, mbox := range mboxes {
		if mbox.Mailbox == target {
			return model.Folder{
				ID:   mbox.Mailbox,
				Name: full,
				Kind: kind,
			}, nil
		}
	}

	if err := c.Create(target, nil).Wait(); err != nil {
		return model.Folder{}, fmt.Errorf("creating mailbox %s: %w", target, err)
	}
	// Subscription is best-effort; some servers auto-subscribe.
	_ = c.Subscribe(target).Wait()

	return model.Folder{ID: target, Name: full, Kind: kind}, nil
}

// DeleteFolder removes a mailbox and its contents.
func (d *Driver) DeleteFolder(ctx context.Context, folder model.Folder) error {
	c, err := d.conn.connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Logout().Wait() }()

	if err := c.Delete(folder.ID).Wait(); err != nil {
		return fmt.Errorf("deleting mailbox %s: %w", folder.ID, err)
	}
	return nil
}

// EmptyFolder expunges every message from a mailbox.
func (d *Driver) EmptyFolder(ctx context.Context, folder model.Folder) error {
	c, err := d.conn.connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Logout().Wait() }()

	sel, err := c.Select(folder.ID, nil).Wait()
	if err != nil {
		return fmt.Errorf("selecting %s: %w", folder.ID, err)
	}
	if sel.NumMessages == 0 {
		return nil
	}

	var seqSet imap.SeqSet
	seqSet.AddRange(1, 0)
	storeCmd := c.Store(seqSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking %s deleted: %w", folder.ID, err)
	}

	if err := c.Expunge().Close(); err != nil {
		return fmt.Errorf("expunging %s: %w", folder.ID, err)
	}
	return nil
}

// findExisting locates an item's copy in a mailbox, returning 0 when
// absent. A real Message-ID identity is searched server-side; a
// derived "sha1:" identity has no searchable header and is matched by
// recomputing the digest over candidate messages.
func (d *Driver) findExisting(c *imapclient.Client, mailbox, uid string, content []byte) (imap.UID, error) {
	if strings.HasPrefix(uid, "sha1:") {
		return d.findByDigest(c, mailbox, uid, content)
	}
	return d.findByMessageID(c, mailbox, uid)
}

// findByMessageID searches a mailbox for a message whose Message-ID
// header carries the given identity.
func (d *Driver) findByMessageID(c *imapclient.Client, mailbox, uid string) (imap.UID, error) {
	if _, err := c.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return 0, fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	data, err := c.UIDSearch(&imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "Message-Id", Value: uid},
		},
	}, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("searching %s for %s: %w", mailbox, uid, err)
	}

	uids := data.AllUIDs()
	if len(uids) == 0 {
		return 0, nil
	}
	return uids[0], nil
}

// findByDigest scans a mailbox for the message matching a derived
// "sha1:" identity, narrowing candidates by subject when the content
// is at hand. Candidates are matched both ways a digest identity is
// minted: over the envelope and over the raw content.
func (d *Driver) findByDigest(c *imapclient.Client, mailbox, uid string, content []byte) (imap.UID, error) {
	sel, err := c.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return 0, fmt.Errorf("selecting %s: %w", mailbox, err)
	}
	if sel.NumMessages == 0 {
		return 0, nil
	}

	var all imap.UIDSet
	all.AddRange(1, 0)
	criteria := &imap.SearchCriteria{UID: []imap.UIDSet{all}}
	if subject := contentSubject(content); subject != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key: "Subject", Value: subject,
		})
	}

	data, err := c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("searching %s for %s: %w", mailbox, uid, err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return 0, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	found := imap.UID(0)
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		if found == 0 && matchesDigest(uid, buf.Envelope, buf.FindBodySection(bodySection)) {
			found = buf.UID
		}
	}
	if err := fetchCmd.Close(); err != nil {
		return 0, fmt.Errorf("scanning %s for %s: %w", mailbox, uid, err)
	}
	return found, nil
}

// matchesDigest reports whether a candidate message carries the given
// derived identity, as an envelope digest or as a content digest.
func matchesDigest(uid string, env *imap.Envelope, body []byte) bool {
	if env != nil && messageIdentity(env) == uid {
		return true
	}
	return len(body) > 0 && contentDigest(body) == uid
}

func contentDigest(content []byte) string {
	sum := sha1.Sum(content)
	return "sha1:" + hex.EncodeToString(sum[:])
}

// contentSubject pulls the Subject header out of a raw message,
// best-effort; "" disables candidate narrowing.
func contentSubject(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	entity, err := message.Read(bytes.NewReader(content))
	if err != nil && !message.IsUnknownCharset(err) {
		return ""
	}
	h := mail.Header{Header: entity.Header}
	subject, err := h.Subject()
	if err != nil {
		return ""
	}
	return subject
}

// messageIdentity derives the cross-system identity of a message: its
// Message-ID without angle brackets, or a digest of stable envelope
// fields when the header is missing.
func messageIdentity(env *imap.Envelope) string {
	if env != nil && env.MessageID != "" {
		return strings.Trim(env.MessageID, "<>")
	}

	h := sha1.New()
	if env != nil {
		fmt.Fprintf(h, "%s|%s", env.Subject, env.Date.UTC().Format("2006-01-02T15:04:05Z"))
		for _, from := range env.From {
			fmt.Fprintf(h, "|%s@%s", from.Mailbox, from.Host)
		}
	}
	return "sha1:" + hex.EncodeToString(h.Sum(nil))
}

// kindFromList classifies a mailbox from its SPECIAL-USE attributes
// and name.
func kindFromList(mbox *imap.ListData) model.FolderKind {
	if strings.EqualFold(mbox.Mailbox, "INBOX") {
		return model.KindMailInbox
	}
	for _, attr := range mbox.Attrs {
		switch attr {
		case imap.MailboxAttrDrafts:
			return model.KindMailDrafts
		case imap.MailboxAttrSent:
			return model.KindMailSent
		case imap.MailboxAttrTrash:
			return model.KindMailTrash
		case imap.MailboxAttrJunk:
			return model.KindMailJunk
		}
	}
	return model.KindMail
}

func displayName(mbox *imap.ListData) string {
	if mbox.Delim == 0 {
		return mbox.Mailbox
	}
	return strings.ReplaceAll(mbox.Mailbox, string(mbox.Delim), "/")
}

func hasAttr(attrs []imap.MailboxAttr, want imap.MailboxAttr) bool {
	for _, attr := range attrs {
		if attr == want {
			return true
		}
	}
	return false
}

func wantsMail(types []model.ObjectType) bool {
	for _, t := range types {
		if t == model.TypeMail {
			return true
		}
	}
	return false
}
