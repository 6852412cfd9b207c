// Package kolab4 migrates native Kolab accounts: one logical account
// served by two protocols. Mail lives in IMAP; calendars, contacts and
// tasks are served by the companion DAV endpoint; tags remain relation
// objects in the IMAP configuration folder.
package kolab4

import (
	"context"

	"github.com/mholva/gwmigrate/internal/driver"
	"github.com/mholva/gwmigrate/internal/driver/dav"
	"github.com/mholva/gwmigrate/internal/driver/imap"
	"github.com/mholva/gwmigrate/internal/driver/kolab3"
	"github.com/mholva/gwmigrate/internal/model"
)

type Driver struct {
	account   *model.Account
	mail      *imap.Driver
	groupware *dav.Driver
	tags      *kolab3.Driver
}

// New creates a Kolab4 driver: an IMAP driver for the account itself
// and a DAV driver for its companion endpoint.
func New(cfg model.Config, account *model.Account) (*Driver, error) {
	mail, err := imap.New(cfg, account)
	if err != nil {
		return nil, err
	}
	groupware, err := dav.New(cfg, account.DAVCompanion())
	if err != nil {
		return nil, err
	}
	tags, err := kolab3.New(cfg, account)
	if err != nil {
		return nil, err
	}
	return &Driver{account: account, mail: mail, groupware: groupware, tags: tags}, nil
}

func (d *Driver) Protocol() model.Protocol { return model.ProtocolKolab4 }

func (d *Driver) Close() error {
	err := d.mail.Close()
	if gerr := d.groupware.Close(); err == nil {
		err = gerr
	}
	return err
}

// ListFolders merges the mail folder tree with the DAV collections.
func (d *Driver) ListFolders(ctx context.Context, types []model.ObjectType) ([]model.Folder, error) {
	folders, err := d.mail.ListFolders(ctx, types)
	if err != nil {
		return nil, err
	}
	davFolders, err := d.groupware.ListFolders(ctx, types)
	if err != nil {
		return nil, err
	}
	return append(folders, davFolders...), nil
}

// side routes a folder to the protocol serving its object type.
func (d *Driver) side(folder model.Folder) driver.Driver {
	if folder.Kind.ObjectType() == model.TypeMail {
		return d.mail
	}
	return d.groupware
}

func (d *Driver) ListChanges(ctx context.Context, folder model.Folder, since string) (*driver.ChangeSet, error) {
	return d.side(folder).ListChanges(ctx, folder, since)
}

func (d *Driver) FetchItem(ctx context.Context, folder model.Folder, ref model.ItemRef) (*model.Item, error) {
	return d.side(folder).FetchItem(ctx, folder, ref)
}

func (d *Driver) WriteItem(ctx context.Context, folder model.Folder, item *model.Item) (model.ItemRef, error) {
	return d.side(folder).WriteItem(ctx, folder, item)
}

func (d *Driver) DeleteItem(ctx context.Context, folder model.Folder, uid string) error {
	return d.side(folder).DeleteItem(ctx, folder, uid)
}

func (d *Driver) EnsureFolder(ctx context.Context, parentPath, name string, kind model.FolderKind) (model.Folder, error) {
	if kind.ObjectType() == model.TypeMail {
		return d.mail.EnsureFolder(ctx, parentPath, name, kind)
	}
	return d.groupware.EnsureFolder(ctx, parentPath, name, kind)
}

func (d *Driver) DeleteFolder(ctx context.Context, folder model.Folder) error {
	return d.side(folder).DeleteFolder(ctx, folder)
}

func (d *Driver) EmptyFolder(ctx context.Context, folder model.Folder) error {
	return d.side(folder).EmptyFolder(ctx, folder)
}

// ListTags reads relation objects from the IMAP configuration folder;
// the tag storage format did not change between Kolab generations.
func (d *Driver) ListTags(ctx context.Context) ([]model.Tag, error) {
	return d.tags.ListTags(ctx)
}

// WriteTag persists a tag as a relation object in the IMAP
// configuration folder.
func (d *Driver) WriteTag(ctx context.Context, tag model.Tag) error {
	return d.tags.WriteTag(ctx, tag)
}
