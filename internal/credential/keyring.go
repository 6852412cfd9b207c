// Package credential stores account passwords in the system keyring,
// so migration URIs on the command line can omit them.
package credential

import (
	"fmt"

	"github.com/99designs/keyring"

	"github.com/mholva/gwmigrate/internal/model"
)

const serviceName = "gwmigrate"

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/gwmigrate/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("gwmigrate-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// accountKey derives the keyring entry key for an account.
func accountKey(a *model.Account) string {
	return fmt.Sprintf("%s://%s@%s", a.Protocol, a.Username, a.Host)
}

// Resolve fills in the account's password from the keyring when the
// URI carried none. An account with an inline password is returned
// unchanged.
func Resolve(a *model.Account) error {
	if a.Password != "" || a.Protocol == model.ProtocolTakeout {
		return nil
	}

	ring, err := openKeyring()
	if err != nil {
		return err
	}
	item, err := ring.Get(accountKey(a))
	if err != nil {
		return fmt.Errorf("no stored credential for %s: %w", a.ID(), err)
	}
	a.Password = string(item.Data)
	return nil
}

// Store saves the account's password in the system keyring.
func Store(a *model.Account) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	err = ring.Set(keyring.Item{
		Key:  accountKey(a),
		Data: []byte(a.Password),
	})
	if err != nil {
		return fmt.Errorf("storing credential for %s: %w", a.ID(), err)
	}
	return nil
}

// Delete removes the account's stored credential.
func Delete(a *model.Account) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	if err := ring.Remove(accountKey(a)); err != nil {
		return fmt.Errorf("deleting credential for %s: %w", a.ID(), err)
	}
	return nil
}
