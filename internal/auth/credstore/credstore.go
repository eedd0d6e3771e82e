// Package credstore persists access tokens across runs, keyed by (service, username).
//
// Tokens are first written under a placeholder username because the real account is
// only known after the identity lookup. Reconcile moves them to the real username.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docgpt/docgpt/internal/config"
	"github.com/docgpt/docgpt/internal/constant"
	log "github.com/sirupsen/logrus"
)

// ErrPlaceholderRetained is returned by Reconcile when the token reached the real
// username but the entry it was found under could not be removed.
var ErrPlaceholderRetained = errors.New("credstore: placeholder entry retained")

// Cache stores one token per (service, username).
type Cache interface {
	// Get returns the token, or ok=false when no entry exists.
	Get(ctx context.Context, service, username string) (token string, ok bool, err error)
	// Set overwrites the entry.
	Set(ctx context.Context, service, username, token string) error
	// Delete removes the entry. Deleting an absent entry is not an error.
	Delete(ctx context.Context, service, username string) error
	// Name identifies the backend in logs.
	Name() string
}

// New selects the backend named by cfg.CredentialStore. A backend that cannot work on
// this host is downgraded to NoneCache with a warning; the caller still gets a usable Cache.
func New(ctx context.Context, cfg config.AuthConfig) Cache {
	switch cfg.CredentialStore {
	case config.CredentialStoreNone:
		return NoneCache{}
	case config.CredentialStoreFile:
		fc, err := NewFileCache(cfg.CredentialFile)
		if err != nil {
			log.Warnf("credential file unavailable, tokens will not be cached: %v", err)
			return NoneCache{}
		}
		log.Debugf("caching credentials in %s", fc.Path())
		return fc
	default:
		kc := NewKeyringCache()
		if !kc.Available(ctx) {
			log.Warn("no OS keyring available, tokens will not be cached between runs")
			return NoneCache{}
		}
		return kc
	}
}

// AccountService returns the service name of the pointer record that remembers which
// real username the placeholder was last reconciled to.
func AccountService(service string) string {
	return service + constant.AccountPointerSuffix
}

// Reconcile moves token from the from username to the to username. The new entry is
// written first and the old one deleted only after that succeeds, so an interruption
// leaves at worst a duplicate. The account pointer is always recorded under placeholder,
// which is where Lookup starts, even when from is an earlier real username.
func Reconcile(ctx context.Context, cache Cache, service, placeholder, from, to, token string) error {
	if cache == nil {
		return nil
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("credstore: reconcile to empty username")
	}
	if err := cache.Set(ctx, service, to, token); err != nil {
		return fmt.Errorf("credstore: store token for %s: %w", to, err)
	}
	var errDelete error
	if from != "" && from != to {
		if err := cache.Delete(ctx, service, from); err != nil {
			errDelete = fmt.Errorf("%w: %s: %w", ErrPlaceholderRetained, from, err)
		}
	}
	if placeholder != "" && placeholder != to {
		if err := cache.Set(ctx, AccountService(service), placeholder, to); err != nil {
			log.Warnf("credstore: failed to record account pointer: %v", err)
		}
	}
	return errDelete
}

// Lookup finds the cached token for a placeholder. It checks the placeholder entry
// first, then follows the account pointer to the last reconciled username. The
// returned username is the key the token was found under.
func Lookup(ctx context.Context, cache Cache, service, placeholder string) (token, username string, ok bool, err error) {
	if cache == nil {
		return "", "", false, nil
	}
	token, ok, err = cache.Get(ctx, service, placeholder)
	if err != nil || ok {
		return token, placeholder, ok, err
	}
	username, ok, err = cache.Get(ctx, AccountService(service), placeholder)
	if err != nil || !ok || username == "" {
		return "", "", false, err
	}
	token, ok, err = cache.Get(ctx, service, username)
	if err != nil || !ok {
		return "", "", false, err
	}
	return token, username, true, nil
}

// Forget removes every entry reachable from the placeholder: the pointed account's
// token, the placeholder's token, and the pointer itself.
func Forget(ctx context.Context, cache Cache, service, placeholder string) error {
	if cache == nil {
		return nil
	}
	var errs []error
	if username, ok, err := cache.Get(ctx, AccountService(service), placeholder); err != nil {
		errs = append(errs, err)
	} else if ok && username != "" {
		errs = append(errs, cache.Delete(ctx, service, username))
	}
	errs = append(errs,
		cache.Delete(ctx, service, placeholder),
		cache.Delete(ctx, AccountService(service), placeholder),
	)
	return errors.Join(errs...)
}
