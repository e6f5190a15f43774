package httpapi

import (
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-autopost/core"
)

func badRequestError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.AutopostErrorBadInput)
}

func textCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

func isNotFound(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryNotFound
	}
	return false
}

func errorBody(err error) map[string]any {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return map[string]any{
			"message":   "An unexpected error occurred",
			"text_code": core.AutopostErrorInternal,
		}
	}
	return map[string]any{
		"message":   richErr.Message,
		"text_code": richErr.TextCode,
		"category":  string(richErr.Category),
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code > 0 {
		status = richErr.Code
	}
	writeJSON(w, status, map[string]any{"error": errorBody(err)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
