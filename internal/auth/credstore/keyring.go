package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const availabilityKey = "docgpt-keyring-check"

// KeyringCache stores tokens in the OS secret service (Keychain, libsecret, Credential Manager).
type KeyringCache struct{}

// NewKeyringCache returns a KeyringCache.
func NewKeyringCache() *KeyringCache { return &KeyringCache{} }

// Name implements Cache.
func (*KeyringCache) Name() string { return "keyring" }

// Available tests the keyring by setting and deleting a throwaway entry.
func (*KeyringCache) Available(context.Context) bool {
	if err := keyring.Set(availabilityKey, availabilityKey, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(availabilityKey, availabilityKey)
	return true
}

// Get implements Cache.
func (*KeyringCache) Get(_ context.Context, service, username string) (string, bool, error) {
	token, err := keyring.Get(service, username)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("keyring get: %w", err)
	}
	return token, true, nil
}

// Set implements Cache.
func (*KeyringCache) Set(_ context.Context, service, username, token string) error {
	if err := keyring.Set(service, username, token); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

// Delete implements Cache.
func (*KeyringCache) Delete(_ context.Context, service, username string) error {
	if err := keyring.Delete(service, username); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

// NoneCache never stores anything. It is used when no backend is available.
type NoneCache struct{}

// Name implements Cache.
func (NoneCache) Name() string { return "none" }

// Get implements Cache.
func (NoneCache) Get(context.Context, string, string) (string, bool, error) { return "", false, nil }

// Set implements Cache.
func (NoneCache) Set(context.Context, string, string, string) error { return nil }

// Delete implements Cache.
func (NoneCache) Delete(context.Context, string, string) error { return nil }
