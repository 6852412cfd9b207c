package dav

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/mholva/gwmigrate/internal/driver"
	"github.com/mholva/gwmigrate/internal/model"
	"github.com/mholva/gwmigrate/internal/transport"
)

// Property request bodies.
var (
	collectionProps = []byte(`<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav" xmlns:cs="http://calendarserver.org/ns/">
  <d:prop>
    <d:displayname/>
    <d:resourcetype/>
    <d:sync-token/>
    <cs:getctag/>
    <c:supported-calendar-component-set/>
  </d:prop>
</d:propfind>`)

	etagProps = []byte(`<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:getetag/>
  </d:prop>
</d:propfind>`)
)

// Driver speaks CalDAV and CardDAV. Item identity is the resource
// href's basename (servers name resources by UID); the fingerprint is
// the ETag; the folder checkpoint is a DAV sync-token when the server
// advertises one, else the collection's ctag.
type Driver struct {
	cfg     model.Config
	account *model.Account
	c       *client
	root    string
}

// New creates a DAV driver for the account.
func New(cfg model.Config, account *model.Account) (*Driver, error) {
	scheme := "https"
	defaultPort := "443"
	if account.Protocol == model.ProtocolDAV {
		scheme = "http"
		defaultPort = "80"
	}

	root := "/"
	if account.Path != "" {
		root = "/" + strings.Trim(account.Path, "/") + "/"
	}

	return &Driver{
		cfg:     cfg,
		account: account,
		root:    root,
		c: &client{
			base:     fmt.Sprintf("%s://%s", scheme, account.Addr(defaultPort)),
			username: account.Username,
			password: account.Password,
			protocol: account.Protocol,
			http:     transport.NewClient(cfg, account.InsecureTLS()),
		},
	}, nil
}

func (d *Driver) Protocol() model.Protocol { return d.account.Protocol }

func (d *Driver) Close() error { return nil }

// ListFolders discovers calendar and addressbook collections below the
// account root.
func (d *Driver) ListFolders(ctx context.Context, types []model.ObjectType) ([]model.Folder, error) {
	ms, err := d.c.propfind(ctx, d.root, "1", collectionProps)
	if err != nil {
		return nil, fmt.Errorf("discovering collections: %w", err)
	}

	wanted := make(map[model.ObjectType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	var folders []model.Folder
	for _, resp := range ms.Responses {
		p := resp.findProp()
		if p == nil {
			continue
		}
		kind := collectionKind(resp.Href, p)
		if kind == model.KindOther {
			continue
		}
		if !wanted[kind.ObjectType()] {
			continue
		}

		checkpoint := ""
		if p.SyncToken != "" {
			checkpoint = "token:" + p.SyncToken
		} else if p.CTag != "" {
			checkpoint = "ctag:" + p.CTag
		}

		name := p.DisplayName
		if name == "" {
			name = path.Base(strings.TrimSuffix(resp.Href, "/"))
		}

		folders = append(folders, model.Folder{
			ID:         ensureTrailingSlash(resp.Href),
			Name:       name,
			Kind:       kind,
			Subscribed: true,
			Checkpoint: checkpoint,
		})
	}
	return folders, nil
}

// ListChanges enumerates a collection. With a sync-token checkpoint
// the server reports the delta directly; otherwise the driver compares
// ctags and falls back to a full ETag listing.
func (d *Driver) ListChanges(ctx context.Context, folder model.Folder, since string) (*driver.ChangeSet, error) {
	token, ctag := d.collectionState(ctx, folder.ID)

	if strings.HasPrefix(since, "token:") && token != "" {
		cs, err := d.syncCollection(ctx, folder, strings.TrimPrefix(since, "token:"))
		if err == nil {
			return cs, nil
		}
		// An expired or rejected token degrades to a full listing.
	}

	newCheckpoint := ""
	switch {
	case token != "":
		newCheckpoint = "token:" + token
	case ctag != "":
		newCheckpoint = "ctag:" + ctag
	}

	// Unchanged ctag means no changes; report nothing rather than a
	// full listing so absence is not mistaken for deletion.
	if since != "" && since == newCheckpoint && strings.HasPrefix(since, "ctag:") {
		return &driver.ChangeSet{Checkpoint: newCheckpoint}, nil
	}

	ms, err := d.c.propfind(ctx, folder.ID, "1", etagProps)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", folder.ID, err)
	}

	cs := &driver.ChangeSet{Full: true, Checkpoint: newCheckpoint}
	for _, resp := range ms.Responses {
		p := resp.findProp()
		if p == nil || p.ETag == "" {
			continue
		}
		if ensureTrailingSlash(resp.Href) == folder.ID {
			continue
		}
		cs.Refs = append(cs.Refs, model.ItemRef{
			UID:         hrefUID(resp.Href),
			Fingerprint: p.ETag,
			Address:     resp.Href,
		})
	}
	return cs, nil
}

// syncCollection runs a sync-collection REPORT from the given token.
func (d *Driver) syncCollection(ctx context.Context, folder model.Folder, token string) (*driver.ChangeSet, error) {
	body := []byte(fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<d:sync-collection xmlns:d="DAV:">
  <d:sync-token>%s</d:sync-token>
  <d:sync-level>1</d:sync-level>
  <d:prop><d:getetag/></d:prop>
</d:sync-collection>`, xmlEscape(token)))

	ms, err := d.c.report(ctx, folder.ID, body)
	if err != nil {
		return nil, err
	}

	cs := &driver.ChangeSet{Checkpoint: "token:" + ms.SyncToken}
	for _, resp := range ms.Responses {
		if resp.notFound() {
			cs.Deleted = append(cs.Deleted, hrefUID(resp.Href))
			continue
		}
		p := resp.findProp()
		if p == nil || p.ETag == "" {
			continue
		}
		cs.Refs = append(cs.Refs, model.ItemRef{
			UID:         hrefUID(resp.Href),
			Fingerprint: p.ETag,
			Address:     resp.Href,
		})
	}
	return cs, nil
}

// FetchItem fetches a resource's iCalendar or vCard payload.
func (d *Driver) FetchItem(ctx context.Context, folder model.Folder, ref model.ItemRef) (*model.Item, error) {
	body, _, err := d.c.get(ctx, ref.Address)
	if err != nil {
		return nil, err
	}
	return &model.Item{
		Ref:     ref,
		Type:    folder.Kind.ObjectType(),
		Content: body,
	}, nil
}

// WriteItem PUTs the item at a UID-derived href. PUT overwrites an
// existing resource, giving upsert semantics.
func (d *Driver) WriteItem(ctx context.Context, folder model.Folder, item *model.Item) (model.ItemRef, error) {
	href := folder.ID + resourceName(item.Ref.UID, item.Type)
	etag, err := d.c.put(ctx, href, contentType(item.Type), item.Content)
	if err != nil {
		return model.ItemRef{}, err
	}
	return model.ItemRef{UID: item.Ref.UID, Fingerprint: etag, Address: href}, nil
}

// DeleteItem removes the resource for a UID.
func (d *Driver) DeleteItem(ctx context.Context, folder model.Folder, uid string) error {
	return d.c.delete(ctx, folder.ID+resourceName(uid, folder.Kind.ObjectType()))
}

// EnsureFolder resolves a destination collection, matching well-known
// kinds before names and creating a new collection only as a last
// resort.
func (d *Driver) EnsureFolder(ctx context.Context, parentPath, name string, kind model.FolderKind) (model.Folder, error) {
	ms, err := d.c.propfind(ctx, d.root, "1", collectionProps)
	if err != nil {
		return model.Folder{}, fmt.Errorf("discovering collections: %w", err)
	}

	var byName *model.Folder
	for _, resp := range ms.Responses {
		p := resp.findProp()
		if p == nil {
			continue
		}
		existing := collectionKind(resp.Href, p)
		if existing.ObjectType() != kind.ObjectType() {
			continue
		}

		f := model.Folder{
			ID:   ensureTrailingSlash(resp.Href),
			Name: p.DisplayName,
			Kind: existing,
		}
		if f.Name == "" {
			f.Name = path.Base(strings.TrimSuffix(resp.Href, "/"))
		}

		if kind.IsDefault() && existing == kind {
			return f, nil
		}
		if byName == nil && (strings.EqualFold(f.Name, name) ||
			strings.EqualFold(path.Base(strings.TrimSuffix(resp.Href, "/")), name)) {
			found := f
			byName = &found
		}
	}
	if byName != nil {
		return *byName, nil
	}

	href := d.root + slug(name) + "/"
	if err := d.createCollection(ctx, href, name, kind); err != nil {
		return model.Folder{}, err
	}
	return model.Folder{ID: href, Name: name, Kind: kind}, nil
}

func (d *Driver) createCollection(ctx context.Context, href, name string, kind model.FolderKind) error {
	switch kind.ObjectType() {
	case model.TypeEvent, model.TypeTask:
		comp := "VEVENT"
		if kind.ObjectType() == model.TypeTask {
			comp = "VTODO"
		}
		body := []byte(fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<c:mkcalendar xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:set>
    <d:prop>
      <d:displayname>%s</d:displayname>
      <c:supported-calendar-component-set><c:comp name="%s"/></c:supported-calendar-component-set>
    </d:prop>
  </d:set>
</c:mkcalendar>`, xmlEscape(name), comp))
		return d.c.mkcol(ctx, "MKCALENDAR", href, body)

	case model.TypeContact:
		body := []byte(fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<d:mkcol xmlns:d="DAV:" xmlns:card="urn:ietf:params:xml:ns:carddav">
  <d:set>
    <d:prop>
      <d:resourcetype><d:collection/><card:addressbook/></d:resourcetype>
      <d:displayname>%s</d:displayname>
    </d:prop>
  </d:set>
</d:mkcol>`, xmlEscape(name)))
		return d.c.mkcol(ctx, "MKCOL", href, body)
	}

	return fmt.Errorf("cannot create DAV collection of kind %s", kind)
}

// DeleteFolder removes a collection and everything in it.
func (d *Driver) DeleteFolder(ctx context.Context, folder model.Folder) error {
	return d.c.delete(ctx, folder.ID)
}

// EmptyFolder deletes every resource in a collection.
func (d *Driver) EmptyFolder(ctx context.Context, folder model.Folder) error {
	cs, err := d.ListChanges(ctx, folder, "")
	if err != nil {
		return err
	}
	for _, ref := range cs.Refs {
		if err := d.c.delete(ctx, ref.Address); err != nil {
			return err
		}
	}
	return nil
}

// collectionState reads the collection's current sync-token and ctag.
func (d *Driver) collectionState(ctx context.Context, href string) (token, ctag string) {
	ms, err := d.c.propfind(ctx, href, "0", collectionProps)
	if err != nil || len(ms.Responses) == 0 {
		return "", ""
	}
	p := ms.Responses[0].findProp()
	if p == nil {
		return "", ""
	}
	return p.SyncToken, p.CTag
}

// collectionKind classifies a collection from its resource type, its
// component set and conventional default names.
func collectionKind(href string, p *prop) model.FolderKind {
	base := strings.ToLower(path.Base(strings.TrimSuffix(href, "/")))

	switch {
	case p.ResourceType.Calendar != nil:
		taskOnly := false
		if p.ComponentSet != nil && len(p.ComponentSet.Comps) > 0 {
			taskOnly = true
			for _, c := range p.ComponentSet.Comps {
				if !strings.EqualFold(c.Name, "VTODO") {
					taskOnly = false
				}
			}
		}
		if taskOnly {
			if base == "tasks" {
				return model.KindTaskDefault
			}
			return model.KindTask
		}
		if base == "calendar" || base == "default" {
			return model.KindEventDefault
		}
		return model.KindEvent

	case p.ResourceType.AddressBook != nil:
		if base == "contacts" || base == "default" || base == "addressbook" {
			return model.KindContactDefault
		}
		return model.KindContact
	}

	return model.KindOther
}

// hrefUID derives the item identity from a resource href.
func hrefUID(href string) string {
	base := path.Base(strings.TrimSuffix(href, "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	return base
}

func resourceName(uid string, t model.ObjectType) string {
	if t == model.TypeContact {
		return slug(uid) + ".vcf"
	}
	return slug(uid) + ".ics"
}

func contentType(t model.ObjectType) string {
	if t == model.TypeContact {
		return `text/vcard; charset="utf-8"`
	}
	return `text/calendar; charset="utf-8"`
}

// slug keeps hrefs URL-safe.
func slug(s string) string {
	repl := strings.NewReplacer("/", "-", " ", "-", "%", "-", "#", "-", "?", "-")
	return repl.Replace(s)
}

func ensureTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func xmlEscape(s string) string {
	repl := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return repl.Replace(s)
}
