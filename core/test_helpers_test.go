package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeCipher struct {
	sealCalls int
	openCalls int
	failOpen  bool
}

func (c *fakeCipher) Seal(_ context.Context, plaintext []byte) ([]byte, error) {
	c.sealCalls++
	return []byte("sealed:" + string(plaintext)), nil
}

func (c *fakeCipher) Open(_ context.Context, blob []byte) ([]byte, error) {
	c.openCalls++
	if c.failOpen {
		return nil, fmt.Errorf("fake: decrypt payload failed")
	}
	value, ok := strings.CutPrefix(string(blob), "sealed:")
	if !ok {
		return nil, fmt.Errorf("fake: malformed ciphertext")
	}
	return []byte(value), nil
}

type memoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]Account
}

func newMemoryAccountStore() *memoryAccountStore {
	return &memoryAccountStore{accounts: map[string]Account{}}
}

func (s *memoryAccountStore) Upsert(_ context.Context, in UpsertAccountInput) (Account, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	account, ok := s.accounts[email]
	if !ok {
		account = Account{
			ID:        fmt.Sprintf("acc-%d", len(s.accounts)+1),
			Email:     email,
			CreatedAt: now,
		}
	}
	account.MetaUserID = in.MetaUserID
	account.UserName = in.UserName
	account.EncryptedAccessToken = in.EncryptedAccessToken
	account.TokenExpiry = in.TokenExpiry
	account.TokenRefreshedAt = in.TokenRefreshedAt
	account.Permissions = append([]string(nil), in.Permissions...)
	account.Pages = MergePages(account.Pages, in.Pages)
	account.LastActivity = in.LastActivity
	account.IsActive = true
	account.UpdatedAt = now
	s.accounts[email] = account
	return cloneStoredAccount(account), nil
}

func (s *memoryAccountStore) GetByEmail(_ context.Context, email string, includeSecrets bool) (Account, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[normalized]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, normalized)
	}
	cloned := cloneStoredAccount(account)
	if !includeSecrets {
		cloned.EncryptedAccessToken = ""
		for i := range cloned.Pages {
			cloned.Pages[i].EncryptedPageToken = ""
		}
	}
	return cloned, nil
}

func (s *memoryAccountStore) SetActivePage(_ context.Context, email string, pageID string) error {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[normalized]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, normalized)
	}
	account.ActivePageID = pageID
	s.accounts[normalized] = account
	return nil
}

func (s *memoryAccountStore) SetActive(_ context.Context, email string, active bool, _ string) error {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[normalized]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, normalized)
	}
	account.IsActive = active
	s.accounts[normalized] = account
	return nil
}

func (s *memoryAccountStore) ListExpiring(_ context.Context, before time.Time, limit int) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Account{}
	for _, account := range s.accounts {
		if !account.IsActive || account.TokenExpiry.IsZero() {
			continue
		}
		if account.TokenExpiry.Before(before) {
			out = append(out, cloneStoredAccount(account))
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func cloneStoredAccount(account Account) Account {
	cloned := account
	cloned.Permissions = append([]string(nil), account.Permissions...)
	cloned.Pages = ClonePages(account.Pages)
	return cloned
}

type fakeGraphClient struct {
	mu sync.Mutex

	pages          []PageInfo
	pagesErr       error
	user           UserInfo
	longLivedToken Token
	pageTokenCalls int
	publishCalls   []PublishPhotoRequest
	publishResult  PublishPhotoResult
	publishErr     error
}

func newFakeGraphClient() *fakeGraphClient {
	return &fakeGraphClient{
		user: UserInfo{
			ID:          "meta-user-1",
			Name:        "Dana Example",
			Permissions: []string{"pages_show_list", "pages_manage_posts"},
		},
		pages: []PageInfo{
			{ID: "page-1", Name: "First Page", AccessToken: "page-token-1", Category: "Real Estate"},
			{ID: "page-2", Name: "Second Page", AccessToken: "page-token-2", IGBusinessID: "ig-1", IGUsername: "secondpage"},
		},
		longLivedToken: Token{AccessToken: "long-lived-token", TokenType: "bearer", ExpiresIn: 0},
		publishResult:  PublishPhotoResult{PostID: "page-1_post-1", PostURL: "https://www.facebook.com/page-1_post-1"},
	}
}

func (c *fakeGraphClient) AuthorizationURL(redirectURI string, state string, scopes []string) (string, error) {
	return "https://www.facebook.com/v23.0/dialog/oauth?state=" + state + "&redirect_uri=" + redirectURI +
		"&scope=" + strings.Join(scopes, ","), nil
}

func (c *fakeGraphClient) ExchangeCode(context.Context, string, string) (Token, error) {
	return Token{AccessToken: "short-lived-token", TokenType: "bearer", ExpiresIn: 3600}, nil
}

func (c *fakeGraphClient) ExchangeLongLived(context.Context, string) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.longLivedToken, nil
}

func (c *fakeGraphClient) UserInfo(context.Context, string) (UserInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user, nil
}

func (c *fakeGraphClient) Pages(context.Context, string) ([]PageInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pagesErr != nil {
		return nil, c.pagesErr
	}
	return append([]PageInfo(nil), c.pages...), nil
}

func (c *fakeGraphClient) PageAccessToken(_ context.Context, pageID string, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageTokenCalls++
	return "fetched-page-token-" + pageID, nil
}

func (c *fakeGraphClient) PublishPhoto(_ context.Context, req PublishPhotoRequest) (PublishPhotoResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishCalls = append(c.publishCalls, req)
	if c.publishErr != nil {
		return PublishPhotoResult{}, c.publishErr
	}
	return c.publishResult, nil
}

func newTestService(t *testing.T, store AccountStore, graph GraphClient, extra ...Option) *Service {
	t.Helper()
	options := append([]Option{
		WithTokenCipher(&fakeCipher{}),
		WithAccountStore(store),
		WithGraphClient(graph),
	}, extra...)
	service, err := NewService(Config{ServiceName: "autopost"}, options...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}
