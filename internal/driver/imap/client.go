// Package imap implements the mail driver over IMAP, and supplies the
// transport the legacy Kolab3 driver builds on.
package imap

import (
	"crypto/tls"
	"fmt"

	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/mholva/gwmigrate/internal/driver"
	"github.com/mholva/gwmigrate/internal/model"
)

// connector dials and authenticates one IMAP connection per operation.
// Connections are cheap relative to the transfers they carry, and a
// connection per operation keeps the driver safe under the concurrent
// item jobs the engine fans out.
type connector struct {
	addr      string
	username  string
	password  string
	useTLS    bool
	tlsConfig *tls.Config
	protocol  model.Protocol
}

func newConnector(account *model.Account) connector {
	useTLS := account.Protocol != model.ProtocolIMAP
	defaultPort := "143"
	if useTLS {
		defaultPort = "993"
	}

	var tlsCfg *tls.Config
	if account.InsecureTLS() {
		tlsCfg = &tls.Config{InsecureSkipVerify: true}
	}

	return connector{
		addr:      account.Addr(defaultPort),
		username:  account.Username,
		password:  account.Password,
		useTLS:    useTLS,
		tlsConfig: tlsCfg,
		protocol:  account.Protocol,
	}
}

// Connector dials authenticated IMAP connections for drivers layered
// on the IMAP transport, such as the legacy Kolab3 driver.
type Connector struct {
	connector
}

func NewConnector(account *model.Account) Connector {
	return Connector{newConnector(account)}
}

// Connect establishes a connection and authenticates. The caller is
// responsible for calling Logout on the returned client.
func (c Connector) Connect() (*imapclient.Client, error) {
	return c.connect()
}

// connect establishes a connection and authenticates. The caller is
// responsible for calling Logout on the returned client.
func (c connector) connect() (*imapclient.Client, error) {
	var (
		client *imapclient.Client
		err    error
	)
	if c.useTLS {
		client, err = imapclient.DialTLS(c.addr, &imapclient.Options{TLSConfig: c.tlsConfig})
	} else {
		client, err = imapclient.DialStartTLS(c.addr, &imapclient.Options{TLSConfig: c.tlsConfig})
	}
	if err != nil {
		return nil, &driver.AuthError{
			Protocol: c.protocol,
			Message:  fmt.Sprintf("connecting to %s: %v", c.addr, err),
		}
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &driver.AuthError{
			Protocol: c.protocol,
			Message:  fmt.Sprintf("authentication failed for %s: %v", c.username, err),
		}
	}

	return client, nil
}
