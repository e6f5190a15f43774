package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-autopost/core"
)

const accountCacheKeyPrefix = "go-autopost::account::v1"

// CachedAccountStore puts a read-through cache in front of the
// secret-free lookups. Opt-in wiring: lookups that carry sealed token
// material always go to the base store, so plaintext-adjacent blobs
// never sit in a shared cache. Writes invalidate the cached view.
type CachedAccountStore struct {
	base  core.AccountStore
	cache repositorycache.CacheService
}

func NewCachedAccountStore(base core.AccountStore, cacheService repositorycache.CacheService) (*CachedAccountStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base account store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: account cache service is required")
	}
	return &CachedAccountStore{base: base, cache: cacheService}, nil
}

// AccountCacheKey is the deterministic key contract for cached account
// reads: go-autopost::account::v1::<email> with the email URL-path
// escaped after normalization.
func AccountCacheKey(email string) (string, error) {
	normalized, err := core.NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{accountCacheKeyPrefix, url.PathEscape(normalized)}, "::"), nil
}

func (s *CachedAccountStore) Upsert(ctx context.Context, in core.UpsertAccountInput) (core.Account, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Account{}, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	stored, err := s.base.Upsert(ctx, in)
	if err != nil {
		return core.Account{}, err
	}
	if err := s.invalidate(ctx, stored.Email); err != nil {
		return core.Account{}, err
	}
	return stored, nil
}

func (s *CachedAccountStore) GetByEmail(ctx context.Context, email string, includeSecrets bool) (core.Account, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Account{}, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	if includeSecrets {
		return s.base.GetByEmail(ctx, email, true)
	}

	cacheKey, err := AccountCacheKey(email)
	if err != nil {
		return core.Account{}, err
	}
	account, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Account, error) {
		fetched, fetchErr := s.base.GetByEmail(ctx, email, false)
		if fetchErr != nil {
			return core.Account{}, fetchErr
		}
		return cloneAccount(fetched), nil
	})
	if err != nil {
		return core.Account{}, err
	}
	return cloneAccount(account), nil
}

func (s *CachedAccountStore) SetActivePage(ctx context.Context, email string, pageID string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached account store is not configured")
	}
	if err := s.base.SetActivePage(ctx, email, pageID); err != nil {
		return err
	}
	return s.invalidate(ctx, email)
}

func (s *CachedAccountStore) SetActive(ctx context.Context, email string, active bool, reason string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached account store is not configured")
	}
	if err := s.base.SetActive(ctx, email, active, reason); err != nil {
		return err
	}
	return s.invalidate(ctx, email)
}

func (s *CachedAccountStore) ListExpiring(ctx context.Context, before time.Time, limit int) ([]core.Account, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	return s.base.ListExpiring(ctx, before, limit)
}

func (s *CachedAccountStore) invalidate(ctx context.Context, email string) error {
	cacheKey, err := AccountCacheKey(email)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneAccount(account core.Account) core.Account {
	cloned := account
	cloned.Permissions = append([]string(nil), account.Permissions...)
	cloned.Pages = core.ClonePages(account.Pages)
	return cloned
}

var _ core.AccountStore = (*CachedAccountStore)(nil)
