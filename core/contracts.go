package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Token is an access token as returned by the provider's token endpoint.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
}

// UserInfo is the provider-side identity of the connecting user.
// Permissions keep the provider's response order.
type UserInfo struct {
	ID          string
	Name        string
	Permissions []string
}

// PageInfo is one manageable page from the provider's page listing.
type PageInfo struct {
	ID           string
	Name         string
	AccessToken  string
	Category     string
	IGBusinessID string
	IGUsername   string
}

type PublishPhotoRequest struct {
	PageID    string
	PageToken string
	ImageURL  string
	ImageData []byte
	Caption   string
}

type PublishPhotoResult struct {
	PostID  string
	PostURL string
}

// GraphClient is the Meta Graph API surface the service consumes. The
// concrete implementation lives in providers/meta.
type GraphClient interface {
	AuthorizationURL(redirectURI string, state string, scopes []string) (string, error)
	ExchangeCode(ctx context.Context, code string, redirectURI string) (Token, error)
	ExchangeLongLived(ctx context.Context, accessToken string) (Token, error)
	UserInfo(ctx context.Context, accessToken string) (UserInfo, error)
	Pages(ctx context.Context, accessToken string) ([]PageInfo, error)
	PageAccessToken(ctx context.Context, pageID string, userToken string) (string, error)
	PublishPhoto(ctx context.Context, req PublishPhotoRequest) (PublishPhotoResult, error)
}

// TokenCipher seals and opens opaque token material. Implementations live
// in the security package; the record shape never depends on the cipher
// choice.
type TokenCipher interface {
	Seal(ctx context.Context, plaintext []byte) ([]byte, error)
	Open(ctx context.Context, blob []byte) ([]byte, error)
}

type UpsertAccountInput struct {
	Email                string
	MetaUserID           string
	UserName             string
	EncryptedAccessToken string
	TokenExpiry          time.Time
	TokenRefreshedAt     time.Time
	Permissions          []string
	Pages                []Page
	LastActivity         time.Time
}

// AccountStore persists credential records keyed by normalized email.
// Default reads exclude sealed token material; lookups that need it pass
// includeSecrets.
type AccountStore interface {
	Upsert(ctx context.Context, in UpsertAccountInput) (Account, error)
	GetByEmail(ctx context.Context, email string, includeSecrets bool) (Account, error)
	SetActivePage(ctx context.Context, email string, pageID string) error
	SetActive(ctx context.Context, email string, active bool, reason string) error
	ListExpiring(ctx context.Context, before time.Time, limit int) ([]Account, error)
}

type StoreProvider interface {
	AccountStore() AccountStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// BeginConnectRequest starts the OAuth dialog for one email. ReturnURL is
// carried through the state record so the callback can send the browser
// back where it came from.
type BeginConnectRequest struct {
	Email       string
	RedirectURI string
	ReturnURL   string
	State       string
	Scopes      []string
}

type BeginConnectResponse struct {
	URL    string
	State  string
	Scopes []string
}

type CompleteConnectionRequest struct {
	Email       string
	Code        string
	State       string
	RedirectURI string
	Metadata    map[string]any
}

// CompleteConnectionResponse is the callback outcome: the stored account
// in its redacted view plus the return URL carried through the state
// record.
type CompleteConnectionResponse struct {
	Account   Account
	ReturnURL string
}

// CredentialBundle is what the publish path gets back from a lookup: the
// opened token, a redacted account view, and the resolved active page
// (nil when the default single-page view was used).
type CredentialBundle struct {
	AccessToken string
	Account     Account
	ActivePage  *Page
}

// PageID is the publish target: the resolved page when one exists.
func (b CredentialBundle) PageID() string {
	if b.ActivePage != nil {
		return b.ActivePage.PageID
	}
	if page, ok := b.Account.DefaultPage(); ok {
		return page.PageID
	}
	return ""
}

// IGBusinessID is the linked Instagram business account for the publish
// target, when one is attached.
func (b CredentialBundle) IGBusinessID() string {
	if b.ActivePage != nil {
		return b.ActivePage.IGBusinessID
	}
	if page, ok := b.Account.DefaultPage(); ok {
		return page.IGBusinessID
	}
	return ""
}

type PublishRequest struct {
	Email     string
	ImageURL  string
	ImageData []byte
	Caption   string
}

type PublishResult struct {
	PostID  string
	PostURL string
	PageID  string
}
