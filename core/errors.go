package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	AutopostErrorBadInput          = "AUTOPOST_BAD_INPUT"
	AutopostErrorNotFound          = "AUTOPOST_NOT_FOUND"
	AutopostErrorNoPages           = "AUTOPOST_NO_PAGES"
	AutopostErrorDecryptFailed     = "AUTOPOST_DECRYPT_FAILED"
	AutopostErrorOAuthStateInvalid = "AUTOPOST_OAUTH_STATE_INVALID"
	AutopostErrorProviderFailed    = "AUTOPOST_PROVIDER_FAILED"
	AutopostErrorInternal          = "AUTOPOST_INTERNAL_ERROR"
)

func autopostErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureAutopostErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrAccountInactive):
		return newAutopostError(err.Error(), goerrors.CategoryNotFound, AutopostErrorNotFound)
	case errors.Is(err, ErrNoPagesFound):
		return newAutopostError(err.Error(), goerrors.CategoryOperation, AutopostErrorNoPages)
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrPageNotLinked),
		errors.Is(err, ErrMissingTokenExpiry):
		return newAutopostError(err.Error(), goerrors.CategoryBadInput, AutopostErrorBadInput)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "oauth state"):
		return newAutopostError(err.Error(), goerrors.CategoryAuth, AutopostErrorOAuthStateInvalid)
	case strings.Contains(msg, "decrypt"),
		strings.Contains(msg, "ciphertext"),
		strings.Contains(msg, "padding"):
		return newAutopostError(err.Error(), goerrors.CategoryInternal, AutopostErrorDecryptFailed)
	case strings.Contains(msg, "graph api"),
		strings.Contains(msg, "meta:"):
		return newAutopostError(err.Error(), goerrors.CategoryExternal, AutopostErrorProviderFailed)
	case strings.Contains(msg, "not found"):
		return newAutopostError(err.Error(), goerrors.CategoryNotFound, AutopostErrorNotFound)
	case strings.Contains(msg, "required"),
		strings.Contains(msg, "invalid"),
		strings.Contains(msg, "mismatch"):
		return newAutopostError(err.Error(), goerrors.CategoryBadInput, AutopostErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureAutopostErrorEnvelope(mapped)
}

func newAutopostError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureAutopostErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureAutopostErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = autopostHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultAutopostTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultAutopostTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return AutopostErrorBadInput
	case goerrors.CategoryNotFound:
		return AutopostErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return AutopostErrorOAuthStateInvalid
	case goerrors.CategoryExternal:
		return AutopostErrorProviderFailed
	case goerrors.CategoryOperation:
		return AutopostErrorNoPages
	default:
		return AutopostErrorInternal
	}
}

func autopostHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
