package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-autopost/core"
)

// AccountStore persists per-email credential records in the
// autopost_accounts table. Linked pages live in a jsonb column; the
// record is the unit of read and write.
type AccountStore struct {
	db   *bun.DB
	repo repository.Repository[*accountRecord]
}

func NewAccountStore(db *bun.DB) (*AccountStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*accountRecord](db, accountHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid account repository wiring: %w", err)
		}
	}
	return &AccountStore{db: db, repo: repo}, nil
}

// Upsert writes the OAuth exchange outcome for one email. An existing
// record keeps its id, creation time, and active page selection; the
// incoming page listing is merged into the stored one by page id. A
// reconnect reactivates a deactivated record.
func (s *AccountStore) Upsert(ctx context.Context, in core.UpsertAccountInput) (core.Account, error) {
	if s == nil || s.db == nil {
		return core.Account{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	email, err := core.NormalizeEmail(in.Email)
	if err != nil {
		return core.Account{}, err
	}
	if in.TokenExpiry.IsZero() {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrMissingTokenExpiry, email)
	}

	now := time.Now().UTC()
	var stored core.Account
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &accountRecord{}
		findErr := tx.NewSelect().
			Model(existing).
			Where("email = ?", email).
			Limit(1).
			Scan(ctx)
		switch {
		case findErr == nil:
			merged := core.MergePages(entriesToPages(existing.Pages), in.Pages)
			existing.MetaUserID = in.MetaUserID
			existing.UserName = in.UserName
			existing.EncryptedAccessToken = in.EncryptedAccessToken
			existing.TokenExpiry = timePtr(in.TokenExpiry)
			existing.TokenRefreshedAt = timePtr(in.TokenRefreshedAt)
			existing.Permissions = append([]string(nil), in.Permissions...)
			existing.Pages = pagesToEntries(merged)
			existing.LastActivity = timePtr(in.LastActivity)
			existing.IsActive = true
			existing.DeactivationReason = ""
			existing.UpdatedAt = now
			if _, updateErr := tx.NewUpdate().
				Model(existing).
				WherePK().
				Exec(ctx); updateErr != nil {
				return updateErr
			}
			stored = existing.toDomain(true)
			return nil
		case errors.Is(findErr, sql.ErrNoRows):
			record := &accountRecord{
				ID:                   uuid.NewString(),
				Email:                email,
				MetaUserID:           in.MetaUserID,
				UserName:             in.UserName,
				EncryptedAccessToken: in.EncryptedAccessToken,
				TokenExpiry:          timePtr(in.TokenExpiry),
				TokenRefreshedAt:     timePtr(in.TokenRefreshedAt),
				Permissions:          append([]string(nil), in.Permissions...),
				Pages:                pagesToEntries(in.Pages),
				LastActivity:         timePtr(in.LastActivity),
				IsActive:             true,
				CreatedAt:            now,
				UpdatedAt:            now,
			}
			if record.Permissions == nil {
				record.Permissions = []string{}
			}
			if record.Pages == nil {
				record.Pages = []pageEntry{}
			}
			created, createErr := s.repo.CreateTx(ctx, tx, record)
			if createErr != nil {
				return createErr
			}
			stored = created.toDomain(true)
			return nil
		default:
			return findErr
		}
	})
	if err != nil {
		return core.Account{}, err
	}
	return stored, nil
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string, includeSecrets bool) (core.Account, error) {
	if s == nil || s.repo == nil {
		return core.Account{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	normalized, err := core.NormalizeEmail(email)
	if err != nil {
		return core.Account{}, err
	}

	criteria := []repository.SelectCriteria{
		repository.SelectBy("email", "=", normalized),
		repository.SelectPaginate(1, 0),
	}
	if !includeSecrets {
		criteria = append(criteria, repository.ExcludeColumns("encrypted_access_token"))
	}
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return core.Account{}, err
	}
	if len(records) == 0 {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, normalized)
	}
	return records[0].toDomain(includeSecrets), nil
}

func (s *AccountStore) SetActivePage(ctx context.Context, email string, pageID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	normalized, err := core.NormalizeEmail(email)
	if err != nil {
		return err
	}
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return fmt.Errorf("sqlstore: page id is required")
	}

	result, err := s.db.NewUpdate().
		Model((*accountRecord)(nil)).
		Set("active_page_id = ?", pageID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("email = ?", normalized).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffectedRow(result, normalized)
}

func (s *AccountStore) SetActive(ctx context.Context, email string, active bool, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	normalized, err := core.NormalizeEmail(email)
	if err != nil {
		return err
	}
	if active {
		reason = ""
	}

	result, err := s.db.NewUpdate().
		Model((*accountRecord)(nil)).
		Set("is_active = ?", active).
		Set("deactivation_reason = ?", strings.TrimSpace(reason)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("email = ?", normalized).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffectedRow(result, normalized)
}

// ListExpiring returns active records whose token validity window ends
// before the cutoff, soonest first. Sealed material is never included;
// the audit path has no use for it.
func (s *AccountStore) ListExpiring(ctx context.Context, before time.Time, limit int) ([]core.Account, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: account store is not configured")
	}
	if limit <= 0 {
		limit = 100
	}

	var records []*accountRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("is_active = ?", true).
		Where("token_expiry IS NOT NULL").
		Where("token_expiry < ?", before.UTC()).
		OrderExpr("token_expiry ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	accounts := make([]core.Account, 0, len(records))
	for _, record := range records {
		accounts = append(accounts, record.toDomain(false))
	}
	return accounts, nil
}

func requireAffectedRow(result sql.Result, email string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrAccountNotFound, email)
	}
	return nil
}

var _ core.AccountStore = (*AccountStore)(nil)
