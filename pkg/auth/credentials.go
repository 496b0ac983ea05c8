// Package auth stores the price-service account credentials. The system
// keychain is preferred; an encrypted file is the fallback for headless
// boxes, and plain environment variables always win so scheduled runs can
// inject credentials without touching any store.
package auth

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Account holds one set of service credentials.
type Account struct {
	Username     string    `json:"username"`
	Password     string    `json:"password"`
	LastModified time.Time `json:"last_modified"`
}

var (
	ErrInvalidCredentials = errors.New("username and password are required")
	ErrAccountNotFound    = errors.New("account not found")
)

// CredentialStore persists accounts keyed by username.
type CredentialStore interface {
	Store(account *Account) error
	Retrieve(username string) (*Account, error)
	List() ([]string, error)
	Delete(username string) error
}

// NewStore returns the best available store: the system keychain when it
// works, otherwise an encrypted file under the user's config directory.
func NewStore() (CredentialStore, error) {
	if store, err := NewKeyringStore(); err == nil {
		return store, nil
	}
	path := filepath.Join(configDir(), "credentials.enc")
	return NewEncryptedFileStore(path)
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "bcgrab")
	}
	return filepath.Join(os.Getenv("HOME"), ".bcgrab")
}

// Resolve returns the credentials for a run: environment variables first,
// then the store. An empty username picks the only stored account, or
// fails when there are several.
func Resolve(store CredentialStore, username string) (*Account, error) {
	if user, pass := os.Getenv("BCGRAB_USERNAME"), os.Getenv("BCGRAB_PASSWORD"); user != "" && pass != "" {
		return &Account{Username: user, Password: pass}, nil
	}
	if store == nil {
		return nil, ErrAccountNotFound
	}
	if username != "" {
		return store.Retrieve(username)
	}
	names, err := store.List()
	if err != nil {
		return nil, err
	}
	switch len(names) {
	case 0:
		return nil, ErrAccountNotFound
	case 1:
		return store.Retrieve(names[0])
	default:
		return nil, errors.New("several accounts stored, pick one with --account")
	}
}
