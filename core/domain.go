package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidEmail       = errors.New("core: invalid email")
	ErrAccountNotFound    = errors.New("core: account not found")
	ErrNoPagesFound       = errors.New("core: no pages found")
	ErrPageNotLinked      = errors.New("core: page not linked")
	ErrTokenExpired       = errors.New("core: token expired")
	ErrAccountInactive    = errors.New("core: account inactive")
	ErrMissingTokenExpiry = errors.New("core: token expiry is required")
)

// Page is one linked Facebook Page, optionally carrying the Instagram
// business account attached to it. PageToken values held here are sealed;
// the plaintext never touches the record.
type Page struct {
	PageID             string
	PageName           string
	EncryptedPageToken string
	Category           string
	IGBusinessID       string
	IGUsername         string
}

// Account is the persisted per-email Meta credential record. The linked
// pages list plus ActivePageID is the single source of truth for page
// selection; the single-page view callers used to read from top-level
// columns is derived, see DefaultPage.
type Account struct {
	ID                   string
	Email                string
	MetaUserID           string
	UserName             string
	EncryptedAccessToken string
	TokenExpiry          time.Time
	TokenRefreshedAt     time.Time
	Permissions          []string
	Pages                []Page
	ActivePageID         string
	LastActivity         time.Time
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NormalizeEmail lower-cases and trims the record key. Every store and
// service entry point goes through this so one mailbox maps to one record.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEmail)
	}
	at := strings.Index(normalized, "@")
	if at <= 0 || at == len(normalized)-1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return normalized, nil
}

// FindPage returns the linked page with the given id.
func (a Account) FindPage(pageID string) (Page, bool) {
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return Page{}, false
	}
	for _, page := range a.Pages {
		if page.PageID == pageID {
			return page, true
		}
	}
	return Page{}, false
}

// ActivePage resolves ActivePageID against the linked pages. A dangling
// pointer reports not-found rather than failing; callers fall back to
// DefaultPage.
func (a Account) ActivePage() (Page, bool) {
	if strings.TrimSpace(a.ActivePageID) == "" {
		return Page{}, false
	}
	return a.FindPage(a.ActivePageID)
}

// DefaultPage is the page publishing targets when the user made no
// explicit selection: the active page when it resolves, otherwise the
// first linked page. Insertion order is preserved across reconnects, so
// the default never silently changes when the provider reorders its
// page listing.
func (a Account) DefaultPage() (Page, bool) {
	if page, ok := a.ActivePage(); ok {
		return page, true
	}
	if len(a.Pages) == 0 {
		return Page{}, false
	}
	return a.Pages[0], true
}

// TokenExpired reports whether the stored long-lived token has passed its
// recorded validity window.
func (a Account) TokenExpired(now time.Time) bool {
	if a.TokenExpiry.IsZero() {
		return true
	}
	return now.After(a.TokenExpiry)
}

// MergePages folds an exchange's page listing into the existing list:
// entries are keyed by PageID, known pages are updated in place, unknown
// pages are appended. Existing order survives so derived defaults stay
// stable.
func MergePages(existing []Page, incoming []Page) []Page {
	merged := make([]Page, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing))
	for _, page := range existing {
		if strings.TrimSpace(page.PageID) == "" {
			continue
		}
		if _, ok := index[page.PageID]; ok {
			continue
		}
		index[page.PageID] = len(merged)
		merged = append(merged, page)
	}
	for _, page := range incoming {
		if strings.TrimSpace(page.PageID) == "" {
			continue
		}
		if at, ok := index[page.PageID]; ok {
			merged[at] = page
			continue
		}
		index[page.PageID] = len(merged)
		merged = append(merged, page)
	}
	return merged
}

// ClonePages deep-copies a page list.
func ClonePages(pages []Page) []Page {
	if len(pages) == 0 {
		return []Page{}
	}
	return append([]Page(nil), pages...)
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	return append([]string(nil), values...)
}
