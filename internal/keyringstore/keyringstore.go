// Package keyringstore adapts zalando/go-keyring to store an account's
// password in the OS-native credential store, so --password can resolve
// from the keyring instead of requiring it on every invocation.
package keyringstore

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// service is the keyring service name under which every account's
// password is stored.
const service = "icloudpd-go"

// ErrNotFound is returned when no password is stored for account.
var ErrNotFound = errors.New("keyringstore: no password stored for account")

// Get reads the stored password for account, or ErrNotFound.
func Get(account string) (string, error) {
	password, err := keyring.Get(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}

	if err != nil {
		return "", fmt.Errorf("keyringstore: reading %s: %w", account, err)
	}

	return password, nil
}

// Set stores password for account, overwriting any existing entry.
func Set(account, password string) error {
	if err := keyring.Set(service, account, password); err != nil {
		return fmt.Errorf("keyringstore: writing %s: %w", account, err)
	}

	return nil
}

// Delete removes the stored password for account, if any.
func Delete(account string) error {
	if err := keyring.Delete(service, account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyringstore: deleting %s: %w", account, err)
	}

	return nil
}
