// Package ews migrates mailboxes reachable over Exchange Web Services.
// Exchange addresses items by server-assigned ids, so the driver keeps
// a per-folder index from derived UIDs to item ids and resolves every
// UID-based operation through it.
package ews

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/mholva/gwmigrate/internal/driver"
	"github.com/mholva/gwmigrate/internal/ics"
	"github.com/mholva/gwmigrate/internal/model"
)

var distinguishedKinds = map[string]model.FolderKind{
	"inbox":        model.KindMailInbox,
	"drafts":       model.KindMailDrafts,
	"sentitems":    model.KindMailSent,
	"deleteditems": model.KindMailTrash,
	"junkemail":    model.KindMailJunk,
	"calendar":     model.KindEventDefault,
	"contacts":     model.KindContactDefault,
	"tasks":        model.KindTaskDefault,
}

var classKinds = map[string]model.FolderKind{
	classMail:    model.KindMail,
	classEvent:   model.KindEvent,
	classContact: model.KindContact,
	classTask:    model.KindTask,
}

type Driver struct {
	cfg     model.Config
	account *model.Account
	c       *client

	mu    sync.Mutex
	index map[string]map[string]ewsID // folder id -> derived uid -> item id
}

// New creates an EWS driver for the account. The endpoint is the
// standard /EWS/Exchange.asmx path on the account host; the "user"
// option selects an impersonation target for admin credentials.
func New(cfg model.Config, account *model.Account) (*Driver, error) {
	return &Driver{
		cfg:     cfg,
		account: account,
		c:       newClient(cfg, account),
		index:   make(map[string]map[string]ewsID),
	}, nil
}

func (d *Driver) Protocol() model.Protocol { return model.ProtocolEWS }

func (d *Driver) Close() error { return nil }

// ListFolders enumerates the mailbox folder tree. Well-known folders
// are resolved first by their distinguished ids so they map to the
// specific kinds; everything else is classified by folder class.
func (d *Driver) ListFolders(ctx context.Context, types []model.ObjectType) ([]model.Folder, error) {
	wellKnown, err := d.wellKnownFolders(ctx)
	if err != nil {
		return nil, err
	}

	var resp findFolderResponse
	body := `<m:FindFolder Traversal="Deep">
  <m:FolderShape><t:BaseShape>AllProperties</t:BaseShape></m:FolderShape>
  <m:ParentFolderIds><t:DistinguishedFolderId Id="msgfolderroot"/></m:ParentFolderIds>
</m:FindFolder>`
	if err := d.c.call(ctx, body, &resp); err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	if len(resp.Messages) == 0 {
		return nil, fmt.Errorf("ews: empty FindFolder response")
	}
	msg := resp.Messages[0]
	if err := checkResponse(msg.ResponseClass, "", msg.MessageText); err != nil {
		return nil, err
	}

	wanted := make(map[model.ObjectType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	var folders []model.Folder
	for _, f := range msg.RootFolder.all() {
		kind, ok := wellKnown[f.ID.ID]
		if !ok {
			kind = classKinds[baseClass(f.FolderClass)]
			if kind == "" {
				kind = model.KindOther
			}
		}
		if !wanted[kind.ObjectType()] {
			continue
		}
		folders = append(folders, model.Folder{
			ID:         f.ID.ID,
			Name:       f.DisplayName,
			Kind:       kind,
			Subscribed: true,
		})
	}
	return folders, nil
}

// wellKnownFolders maps the distinguished folders' server ids to their
// kinds.
func (d *Driver) wellKnownFolders(ctx context.Context) (map[string]model.FolderKind, error) {
	var ids strings.Builder
	names := make([]string, 0, len(distinguishedKinds))
	for name := range distinguishedKinds {
		names = append(names, name)
		fmt.Fprintf(&ids, `<t:DistinguishedFolderId Id="%s"/>`, name)
	}

	var resp getFolderResponse
	body := fmt.Sprintf(`<m:GetFolder>
  <m:FolderShape><t:BaseShape>IdOnly</t:BaseShape></m:FolderShape>
  <m:FolderIds>%s</m:FolderIds>
</m:GetFolder>`, ids.String())
	if err := d.c.call(ctx, body, &resp); err != nil {
		return nil, fmt.Errorf("resolving well-known folders: %w", err)
	}

	out := make(map[string]model.FolderKind)
	for i, msg := range resp.Messages {
		if i >= len(names) || msg.ResponseClass != "Success" {
			continue
		}
		for _, f := range msg.all() {
			out[f.ID.ID] = distinguishedKinds[names[i]]
		}
	}
	return out, nil
}

// ListChanges pages SyncFolderItems from the given sync state. Delete
// changes carry only the server item id, from which the derived UID
// cannot be recovered, so a pass that observes deletions degrades to a
// full listing and lets the caller reconcile by set difference.
func (d *Driver) ListChanges(ctx context.Context, folder model.Folder, since string) (*driver.ChangeSet, error) {
	cs := &driver.ChangeSet{Full: since == ""}
	state := since
	sawDelete := false
	uids := make(map[string]ewsID)

	for {
		msg, err := d.syncPage(ctx, folder.ID, state)
		if err != nil {
			return nil, err
		}

		for _, change := range append(msg.Creates, msg.Updates...) {
			item := change.Item
			uid := deriveUID(item, folder.Kind.ObjectType())
			uids[uid] = item.ItemID
			cs.Refs = append(cs.Refs, model.ItemRef{
				UID:         uid,
				Fingerprint: item.ItemID.ChangeKey,
				Address:     item.ItemID.ID,
			})
		}
		sawDelete = sawDelete || len(msg.Deletes) > 0

		state = msg.SyncState
		if msg.LastInRange {
			break
		}
	}
	cs.Checkpoint = state

	if sawDelete && !cs.Full {
		full, err := d.ListChanges(ctx, folder, "")
		if err != nil {
			return nil, err
		}
		full.Checkpoint = cs.Checkpoint
		return full, nil
	}

	d.mu.Lock()
	if cs.Full {
		d.index[folder.ID] = uids
	} else {
		if d.index[folder.ID] == nil {
			d.index[folder.ID] = make(map[string]ewsID)
		}
		for uid, id := range uids {
			d.index[folder.ID][uid] = id
		}
	}
	d.mu.Unlock()

	return cs, nil
}

func (d *Driver) syncPage(ctx context.Context, folderID, state string) (*syncMessage, error) {
	stateElem := ""
	if state != "" {
		stateElem = fmt.Sprintf("<m:SyncState>%s</m:SyncState>", xmlEscape(state))
	}
	body := fmt.Sprintf(`<m:SyncFolderItems>
  <m:ItemShape><t:BaseShape>AllProperties</t:BaseShape></m:ItemShape>
  <m:SyncFolderId><t:FolderId Id="%s"/></m:SyncFolderId>
  %s
  <m:MaxChangesReturned>256</m:MaxChangesReturned>
</m:SyncFolderItems>`, xmlEscape(folderID), stateElem)

	var resp syncFolderItemsResponse
	if err := d.c.call(ctx, body, &resp); err != nil {
		return nil, fmt.Errorf("syncing folder: %w", err)
	}
	if len(resp.Messages) == 0 {
		return nil, fmt.Errorf("ews: empty SyncFolderItems response")
	}
	msg := &resp.Messages[0]
	if err := checkResponse(msg.ResponseClass, "", msg.MessageText); err != nil {
		return nil, err
	}
	return msg, nil
}

// FetchItem resolves full content: MIME for mail and events, a
// synthesized vCard or VTODO for contacts and tasks.
func (d *Driver) FetchItem(ctx context.Context, folder model.Folder, ref model.ItemRef) (*model.Item, error) {
	body := fmt.Sprintf(`<m:GetItem>
  <m:ItemShape>
    <t:BaseShape>AllProperties</t:BaseShape>
    <t:IncludeMimeContent>true</t:IncludeMimeContent>
  </m:ItemShape>
  <m:ItemIds><t:ItemId Id="%s"/></m:ItemIds>
</m:GetItem>`, xmlEscape(ref.Address))

	var resp getItemResponse
	if err := d.c.call(ctx, body, &resp); err != nil {
		return nil, fmt.Errorf("fetching item %s: %w", ref.UID, err)
	}
	if len(resp.Messages) == 0 {
		return nil, fmt.Errorf("ews: empty GetItem response")
	}
	msg := resp.Messages[0]
	if err := checkResponse(msg.ResponseClass, msg.ResponseCode, msg.MessageText); err != nil {
		return nil, err
	}

	var raw *ewsItem
	for _, items := range [][]ewsItem{msg.Items, msg.Calendar, msg.Contacts, msg.Tasks} {
		if len(items) > 0 {
			raw = &items[0]
			break
		}
	}
	if raw == nil {
		return nil, driver.ErrNotFound
	}

	t := folder.Kind.ObjectType()
	item := &model.Item{Ref: ref, Type: t}
	switch t {
	case model.TypeMail:
		content, err := base64.StdEncoding.DecodeString(raw.MimeContent)
		if err != nil {
			return nil, fmt.Errorf("decoding message %s: %w", ref.UID, err)
		}
		item.Content = content
		if raw.IsRead {
			item.Flags = append(item.Flags, "seen")
		}
		if raw.Flagged {
			item.Flags = append(item.Flags, "flagged")
		}
	case model.TypeEvent:
		content, err := base64.StdEncoding.DecodeString(raw.MimeContent)
		if err != nil {
			return nil, fmt.Errorf("decoding event %s: %w", ref.UID, err)
		}
		item.Content = content
	case model.TypeContact:
		item.Content = contactVCard(ref.UID, *raw)
	case model.TypeTask:
		item.Content = taskCalendar(ref.UID, *raw)
	default:
		return nil, fmt.Errorf("ews: unsupported object type %s", t)
	}
	return item, nil
}

// WriteItem upserts by derived UID: when the folder index already maps
// the UID to a server item, the old item is removed before the new one
// is created, so the folder never holds two items with the same UID.
func (d *Driver) WriteItem(ctx context.Context, folder model.Folder, item *model.Item) (model.ItemRef, error) {
	if err := d.ensureIndex(ctx, folder); err != nil {
		return model.ItemRef{}, err
	}

	d.mu.Lock()
	existing, ok := d.index[folder.ID][item.Ref.UID]
	d.mu.Unlock()
	if ok {
		if err := d.deleteByID(ctx, existing.ID); err != nil {
			return model.ItemRef{}, fmt.Errorf("replacing item %s: %w", item.Ref.UID, err)
		}
	}

	elem, attrs, err := createElement(item)
	if err != nil {
		return model.ItemRef{}, err
	}
	body := fmt.Sprintf(`<m:CreateItem%s>
  <m:SavedItemFolderId><t:FolderId Id="%s"/></m:SavedItemFolderId>
  <m:Items>%s</m:Items>
</m:CreateItem>`, attrs, xmlEscape(folder.ID), elem)

	var resp createItemResponse
	if err := d.c.call(ctx, body, &resp); err != nil {
		return model.ItemRef{}, fmt.Errorf("writing item %s: %w", item.Ref.UID, err)
	}
	if len(resp.Messages) == 0 {
		return model.ItemRef{}, fmt.Errorf("ews: empty CreateItem response")
	}
	msg := resp.Messages[0]
	if err := checkResponse(msg.ResponseClass, "", msg.MessageText); err != nil {
		return model.ItemRef{}, err
	}

	var created ewsID
	for _, items := range [][]ewsItem{msg.Items, msg.Calendar, msg.Contacts, msg.Tasks} {
		if len(items) > 0 {
			created = items[0].ItemID
			break
		}
	}

	d.mu.Lock()
	if d.index[folder.ID] == nil {
		d.index[folder.ID] = make(map[string]ewsID)
	}
	d.index[folder.ID][item.Ref.UID] = created
	d.mu.Unlock()

	return model.ItemRef{
		UID:         item.Ref.UID,
		Fingerprint: created.ChangeKey,
		Address:     created.ID,
	}, nil
}

// DeleteItem removes the server item the UID maps to; an unknown UID
// is already gone.
func (d *Driver) DeleteItem(ctx context.Context, folder model.Folder, uid string) error {
	if err := d.ensureIndex(ctx, folder); err != nil {
		return err
	}
	d.mu.Lock()
	id, ok := d.index[folder.ID][uid]
	if ok {
		delete(d.index[folder.ID], uid)
	}
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return d.deleteByID(ctx, id.ID)
}

func (d *Driver) deleteByID(ctx context.Context, id string) error {
	body := fmt.Sprintf(`<m:DeleteItem DeleteType="HardDelete" SendMeetingCancellations="SendToNone" AffectedTaskOccurrences="AllOccurrences">
  <m:ItemIds><t:ItemId Id="%s"/></m:ItemIds>
</m:DeleteItem>`, xmlEscape(id))

	var resp deleteItemResponse
	if err := d.c.call(ctx, body, &resp); err != nil {
		return err
	}
	for _, msg := range resp.Messages {
		if err := checkResponse(msg.ResponseClass, msg.ResponseCode, msg.MessageText); err != nil {
			return err
		}
	}
	return nil
}

// EnsureFolder matches destination folders by kind first so well-known
// folders are reused, then by name; a new folder is created only when
// neither matches.
func (d *Driver) EnsureFolder(ctx context.Context, parentPath, name string, kind model.FolderKind) (model.Folder, error) {
	existing, err := d.ListFolders(ctx, []model.ObjectType{kind.ObjectType()})
	if err != nil {
		return model.Folder{}, err
	}

	var byName *model.Folder
	for i := range existing {
		f := existing[i]
		if kind.IsDefault() && f.Kind == kind {
			return f, nil
		}
		if byName == nil && strings.EqualFold(f.Name, name) {
			byName = &existing[i]
		}
	}
	if byName != nil {
		return *byName, nil
	}

	class := classMail
	switch kind.ObjectType() {
	case model.TypeEvent:
		class = classEvent
	case model.TypeContact:
		class = classContact
	case model.TypeTask:
		class = classTask
	}

	body := fmt.Sprintf(`<m:CreateFolder>
  <m:ParentFolderId><t:DistinguishedFolderId Id="msgfolderroot"/></m:ParentFolderId>
  <m:Folders>
    <t:Folder>
      <t:FolderClass>%s</t:FolderClass>
      <t:DisplayName>%s</t:DisplayName>
    </t:Folder>
  </m:Folders>
</m:CreateFolder>`, class, xmlEscape(name))

	var resp createFolderResponse
	if err := d.c.call(ctx, body, &resp); err != nil {
		return model.Folder{}, fmt.Errorf("creating folder %s: %w", name, err)
	}
	if len(resp.Messages) == 0 {
		return model.Folder{}, fmt.Errorf("ews: empty CreateFolder response")
	}
	msg := resp.Messages[0]
	if err := checkResponse(msg.ResponseClass, "", msg.MessageText); err != nil {
		return model.Folder{}, err
	}
	created := msg.all()
	if len(created) == 0 {
		return model.Folder{}, fmt.Errorf("ews: CreateFolder returned no folder")
	}
	return model.Folder{ID: created[0].ID.ID, Name: name, Kind: kind}, nil
}

func (d *Driver) DeleteFolder(ctx context.Context, folder model.Folder) error {
	body := fmt.Sprintf(`<m:DeleteFolder DeleteType="HardDelete">
  <m:FolderIds><t:FolderId Id="%s"/></m:FolderIds>
</m:DeleteFolder>`, xmlEscape(folder.ID))

	var resp deleteFolderResponse
	if err := d.c.call(ctx, body, &resp); err != nil {
		return err
	}
	for _, msg := range resp.Messages {
		if err := checkResponse(msg.ResponseClass, msg.ResponseCode, msg.MessageText); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) EmptyFolder(ctx context.Context, folder model.Folder) error {
	body := fmt.Sprintf(`<m:EmptyFolder DeleteType="HardDelete" DeleteSubFolders="false">
  <m:FolderIds><t:FolderId Id="%s"/></m:FolderIds>
</m:EmptyFolder>`, xmlEscape(folder.ID))

	var resp emptyFolderResponse
	if err := d.c.call(ctx, body, &resp); err != nil {
		return err
	}
	for _, msg := range resp.Messages {
		if err := checkResponse(msg.ResponseClass, msg.ResponseCode, msg.MessageText); err != nil {
			return err
		}
	}
	d.mu.Lock()
	delete(d.index, folder.ID)
	d.mu.Unlock()
	return nil
}

// ensureIndex builds the folder's UID index from a full listing when
// it has not been populated in this run.
func (d *Driver) ensureIndex(ctx context.Context, folder model.Folder) error {
	d.mu.Lock()
	_, ok := d.index[folder.ID]
	d.mu.Unlock()
	if ok {
		return nil
	}
	_, err := d.ListChanges(ctx, folder, "")
	return err
}

// createElement renders the item as the typed element CreateItem
// expects, plus the operation attributes its type requires.
func createElement(item *model.Item) (elem, attrs string, err error) {
	switch item.Type {
	case model.TypeMail:
		mime := base64.StdEncoding.EncodeToString(item.Content)
		read := "false"
		for _, f := range item.Flags {
			if f == "seen" {
				read = "true"
			}
		}
		elem = fmt.Sprintf(`<t:Message><t:MimeContent CharacterSet="UTF-8">%s</t:MimeContent><t:IsRead>%s</t:IsRead></t:Message>`, mime, read)
		return elem, ` MessageDisposition="SaveOnly"`, nil

	case model.TypeEvent:
		mime := base64.StdEncoding.EncodeToString(item.Content)
		elem = fmt.Sprintf(`<t:CalendarItem><t:MimeContent CharacterSet="UTF-8">%s</t:MimeContent></t:CalendarItem>`, mime)
		return elem, ` SendMeetingInvitations="SendToNone"`, nil

	case model.TypeContact:
		return contactElement(item.Content), "", nil

	case model.TypeTask:
		return taskElement(item.Content), "", nil
	}
	return "", "", fmt.Errorf("ews: unsupported object type %s", item.Type)
}

// contactElement maps a vCard back onto the Contact fields Exchange
// understands, in schema order.
func contactElement(vcard []byte) string {
	var b strings.Builder
	b.WriteString("<t:Contact>")

	surname, given := splitName(ics.Property(vcard, "N"))
	if fn := unescapeText(ics.Property(vcard, "FN")); fn != "" {
		fmt.Fprintf(&b, "<t:DisplayName>%s</t:DisplayName>", xmlEscape(fn))
	}
	if given != "" {
		fmt.Fprintf(&b, "<t:GivenName>%s</t:GivenName>", xmlEscape(given))
	}
	if org := unescapeText(ics.Property(vcard, "ORG")); org != "" {
		fmt.Fprintf(&b, "<t:CompanyName>%s</t:CompanyName>", xmlEscape(org))
	}
	if email := unescapeText(ics.Property(vcard, "EMAIL")); email != "" {
		fmt.Fprintf(&b, `<t:EmailAddresses><t:Entry Key="EmailAddress1">%s</t:Entry></t:EmailAddresses>`, xmlEscape(email))
	}
	if tel := unescapeText(ics.Property(vcard, "TEL")); tel != "" {
		fmt.Fprintf(&b, `<t:PhoneNumbers><t:Entry Key="BusinessPhone">%s</t:Entry></t:PhoneNumbers>`, xmlEscape(tel))
	}
	if surname != "" {
		fmt.Fprintf(&b, "<t:Surname>%s</t:Surname>", xmlEscape(surname))
	}

	b.WriteString("</t:Contact>")
	return b.String()
}

// taskElement maps a VTODO back onto Task fields.
func taskElement(cal []byte) string {
	var b strings.Builder
	b.WriteString("<t:Task>")

	if summary := unescapeText(ics.Property(cal, "SUMMARY")); summary != "" {
		fmt.Fprintf(&b, "<t:Subject>%s</t:Subject>", xmlEscape(summary))
	}
	if desc := unescapeText(ics.Property(cal, "DESCRIPTION")); desc != "" {
		fmt.Fprintf(&b, `<t:Body BodyType="Text">%s</t:Body>`, xmlEscape(desc))
	}
	if due := ewsTime(ics.Property(cal, "DUE")); due != "" {
		fmt.Fprintf(&b, "<t:DueDate>%s</t:DueDate>", due)
	}
	fmt.Fprintf(&b, "<t:Status>%s</t:Status>", ewsTaskStatus(ics.Property(cal, "STATUS")))

	b.WriteString("</t:Task>")
	return b.String()
}

// ewsTime converts basic iCalendar timestamps to RFC 3339.
func ewsTime(s string) string {
	if len(s) < 8 {
		return ""
	}
	date := fmt.Sprintf("%s-%s-%s", s[0:4], s[4:6], s[6:8])
	if len(s) >= 15 && s[8] == 'T' {
		return fmt.Sprintf("%sT%s:%s:%sZ", date, s[9:11], s[11:13], s[13:15])
	}
	return date + "T00:00:00Z"
}

func splitName(n string) (surname, given string) {
	parts := strings.Split(n, ";")
	if len(parts) > 0 {
		surname = unescapeText(parts[0])
	}
	if len(parts) > 1 {
		given = unescapeText(parts[1])
	}
	return surname, given
}

func baseClass(class string) string {
	for prefix := range classKinds {
		if class == prefix || strings.HasPrefix(class, prefix+".") {
			return prefix
		}
	}
	return class
}
