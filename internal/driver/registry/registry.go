// Package registry resolves accounts to concrete protocol drivers
// through a closed table keyed by protocol, fixed at compile time.
package registry

import (
	"fmt"

	"github.com/mholva/gwmigrate/internal/driver"
	"github.com/mholva/gwmigrate/internal/driver/dav"
	"github.com/mholva/gwmigrate/internal/driver/ews"
	"github.com/mholva/gwmigrate/internal/driver/imap"
	"github.com/mholva/gwmigrate/internal/driver/kolab3"
	"github.com/mholva/gwmigrate/internal/driver/kolab4"
	"github.com/mholva/gwmigrate/internal/driver/takeout"
	"github.com/mholva/gwmigrate/internal/model"
)

type constructor func(model.Config, *model.Account) (driver.Driver, error)

var drivers = map[model.Protocol]constructor{
	model.ProtocolIMAP:    func(cfg model.Config, a *model.Account) (driver.Driver, error) { return imap.New(cfg, a) },
	model.ProtocolIMAPS:   func(cfg model.Config, a *model.Account) (driver.Driver, error) { return imap.New(cfg, a) },
	model.ProtocolDAV:     func(cfg model.Config, a *model.Account) (driver.Driver, error) { return dav.New(cfg, a) },
	model.ProtocolDAVS:    func(cfg model.Config, a *model.Account) (driver.Driver, error) { return dav.New(cfg, a) },
	model.ProtocolEWS:     func(cfg model.Config, a *model.Account) (driver.Driver, error) { return ews.New(cfg, a) },
	model.ProtocolKolab3:  func(cfg model.Config, a *model.Account) (driver.Driver, error) { return kolab3.New(cfg, a) },
	model.ProtocolKolab4:  func(cfg model.Config, a *model.Account) (driver.Driver, error) { return kolab4.New(cfg, a) },
	model.ProtocolTakeout: func(cfg model.Config, a *model.Account) (driver.Driver, error) { return takeout.New(cfg, a) },
}

// Open resolves the account's protocol to a driver instance. It
// satisfies the engine's Opener contract.
func Open(cfg model.Config, account *model.Account) (driver.Driver, error) {
	construct, ok := drivers[account.Protocol]
	if !ok {
		return nil, fmt.Errorf("no driver for protocol %q", account.Protocol)
	}
	return construct(cfg, account)
}
