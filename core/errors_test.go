package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestAutopostErrorMapperSentinels(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category goerrors.Category
		textCode string
		code     int
	}{
		{
			name:     "account not found",
			err:      fmt.Errorf("%w: dana@example.com", ErrAccountNotFound),
			category: goerrors.CategoryNotFound,
			textCode: AutopostErrorNotFound,
			code:     http.StatusNotFound,
		},
		{
			name:     "expired token masks as not found",
			err:      ErrTokenExpired,
			category: goerrors.CategoryNotFound,
			textCode: AutopostErrorNotFound,
			code:     http.StatusNotFound,
		},
		{
			name:     "inactive account masks as not found",
			err:      ErrAccountInactive,
			category: goerrors.CategoryNotFound,
			textCode: AutopostErrorNotFound,
			code:     http.StatusNotFound,
		},
		{
			name:     "no pages",
			err:      ErrNoPagesFound,
			category: goerrors.CategoryOperation,
			textCode: AutopostErrorNoPages,
		},
		{
			name:     "invalid email",
			err:      fmt.Errorf("%w: %q", ErrInvalidEmail, "nope"),
			category: goerrors.CategoryBadInput,
			textCode: AutopostErrorBadInput,
			code:     http.StatusBadRequest,
		},
		{
			name:     "page not linked",
			err:      fmt.Errorf("%w: page-9", ErrPageNotLinked),
			category: goerrors.CategoryBadInput,
			textCode: AutopostErrorBadInput,
			code:     http.StatusBadRequest,
		},
		{
			name:     "oauth state",
			err:      errors.New("core: oauth state not found"),
			category: goerrors.CategoryAuth,
			textCode: AutopostErrorOAuthStateInvalid,
			code:     http.StatusUnauthorized,
		},
		{
			name:     "decrypt failure",
			err:      errors.New("security: decrypt payload failed"),
			category: goerrors.CategoryInternal,
			textCode: AutopostErrorDecryptFailed,
		},
		{
			name:     "graph api failure",
			err:      errors.New("meta: graph api error (500): something broke"),
			category: goerrors.CategoryExternal,
			textCode: AutopostErrorProviderFailed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := autopostErrorMapper(tc.err)
			if mapped == nil {
				t.Fatal("expected mapped error")
			}
			if mapped.Category != tc.category {
				t.Fatalf("expected category %s, got %s", tc.category, mapped.Category)
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %s, got %s", tc.textCode, mapped.TextCode)
			}
			if tc.code != 0 && mapped.Code != tc.code {
				t.Fatalf("expected http code %d, got %d", tc.code, mapped.Code)
			}
		})
	}
}

func TestAutopostErrorMapperPassesRichErrorsThrough(t *testing.T) {
	original := goerrors.New("already mapped", goerrors.CategoryConflict)

	mapped := autopostErrorMapper(original)
	if mapped.Category != goerrors.CategoryConflict {
		t.Fatalf("expected category preserved, got %s", mapped.Category)
	}
	if mapped.Code != http.StatusConflict {
		t.Fatalf("expected conflict status backfilled, got %d", mapped.Code)
	}
	if mapped.TextCode == "" {
		t.Fatal("expected text code backfilled")
	}
}

func TestAutopostErrorMapperNil(t *testing.T) {
	if autopostErrorMapper(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
}
