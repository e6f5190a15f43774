package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-autopost/core"
)

type accountRecord struct {
	bun.BaseModel `bun:"table:autopost_accounts,alias:aa"`

	ID                   string      `bun:"id,pk"`
	Email                string      `bun:"email,notnull,unique"`
	MetaUserID           string      `bun:"meta_user_id"`
	UserName             string      `bun:"user_name"`
	EncryptedAccessToken string      `bun:"encrypted_access_token"`
	TokenExpiry          *time.Time  `bun:"token_expiry,nullzero"`
	TokenRefreshedAt     *time.Time  `bun:"token_refreshed_at,nullzero"`
	Permissions          []string    `bun:"permissions,type:jsonb,notnull"`
	Pages                []pageEntry `bun:"pages,type:jsonb,notnull"`
	ActivePageID         string      `bun:"active_page_id"`
	LastActivity         *time.Time  `bun:"last_activity,nullzero"`
	IsActive             bool        `bun:"is_active,notnull"`
	DeactivationReason   string      `bun:"deactivation_reason"`
	CreatedAt            time.Time   `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time   `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type pageEntry struct {
	PageID             string `json:"page_id"`
	PageName           string `json:"page_name"`
	EncryptedPageToken string `json:"encrypted_page_token,omitempty"`
	Category           string `json:"category,omitempty"`
	IGBusinessID       string `json:"ig_business_id,omitempty"`
	IGUsername         string `json:"ig_username,omitempty"`
}

func pagesToEntries(pages []core.Page) []pageEntry {
	entries := make([]pageEntry, 0, len(pages))
	for _, page := range pages {
		entries = append(entries, pageEntry{
			PageID:             page.PageID,
			PageName:           page.PageName,
			EncryptedPageToken: page.EncryptedPageToken,
			Category:           page.Category,
			IGBusinessID:       page.IGBusinessID,
			IGUsername:         page.IGUsername,
		})
	}
	return entries
}

func entriesToPages(entries []pageEntry) []core.Page {
	pages := make([]core.Page, 0, len(entries))
	for _, entry := range entries {
		pages = append(pages, core.Page{
			PageID:             entry.PageID,
			PageName:           entry.PageName,
			EncryptedPageToken: entry.EncryptedPageToken,
			Category:           entry.Category,
			IGBusinessID:       entry.IGBusinessID,
			IGUsername:         entry.IGUsername,
		})
	}
	return pages
}

// toDomain maps the row to the domain record. Unless includeSecrets is
// set, sealed token material is stripped so default reads never carry it
// past the store boundary.
func (r *accountRecord) toDomain(includeSecrets bool) core.Account {
	if r == nil {
		return core.Account{}
	}
	account := core.Account{
		ID:           r.ID,
		Email:        r.Email,
		MetaUserID:   r.MetaUserID,
		UserName:     r.UserName,
		Permissions:  append([]string(nil), r.Permissions...),
		Pages:        entriesToPages(r.Pages),
		ActivePageID: r.ActivePageID,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.TokenExpiry != nil {
		account.TokenExpiry = *r.TokenExpiry
	}
	if r.TokenRefreshedAt != nil {
		account.TokenRefreshedAt = *r.TokenRefreshedAt
	}
	if r.LastActivity != nil {
		account.LastActivity = *r.LastActivity
	}
	if includeSecrets {
		account.EncryptedAccessToken = r.EncryptedAccessToken
	} else {
		for i := range account.Pages {
			account.Pages[i].EncryptedPageToken = ""
		}
	}
	return account
}

func timePtr(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}
