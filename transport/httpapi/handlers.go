package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-autopost/core"
)

const (
	RouteMetaCallback    = "/autopost/meta/callback"
	RouteUserToken       = "/autopost/user/token"
	RoutePublishFacebook = "/autopost/social/publish-facebook"
)

const maxRequestBodyBytes int64 = 1 << 20

// Service is the slice of the autopost service the HTTP surface exposes.
type Service interface {
	CompleteConnection(ctx context.Context, req core.CompleteConnectionRequest) (core.CompleteConnectionResponse, error)
	Credentials(ctx context.Context, email string) (core.CredentialBundle, error)
	PublishPhoto(ctx context.Context, req core.PublishRequest) (core.PublishResult, error)
}

type Handler struct {
	service          Service
	logger           core.Logger
	defaultReturnURL string
}

type HandlerOption func(*Handler)

func WithLogger(logger core.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithDefaultReturnURL sets where the callback redirects when the state
// record carries no return URL of its own.
func WithDefaultReturnURL(returnURL string) HandlerOption {
	return func(h *Handler) {
		h.defaultReturnURL = strings.TrimSpace(returnURL)
	}
}

func NewHandler(service Service, options ...HandlerOption) *Handler {
	h := &Handler{
		service: service,
		logger:  glog.Ensure(nil),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(h)
	}
	h.logger = glog.Ensure(h.logger)
	return h
}

// Register mounts the autopost routes on the host mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("GET "+RouteMetaCallback, h.MetaCallback)
	mux.HandleFunc("POST "+RouteUserToken, h.UserToken)
	mux.HandleFunc("POST "+RoutePublishFacebook, h.PublishFacebook)
}

// MetaCallback finishes the OAuth dialog from the browser redirect. The
// outcome travels back to the return URL as query params so the host app
// can render it; only requests with no return URL get a JSON body.
func (h *Handler) MetaCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if providerError := strings.TrimSpace(query.Get("error")); providerError != "" {
		h.logger.Info("meta callback rejected by provider",
			"error", providerError,
			"error_description", query.Get("error_description"),
		)
		h.redirectWithError(w, r, h.defaultReturnURL, "oauth_denied")
		return
	}

	response, err := h.service.CompleteConnection(r.Context(), core.CompleteConnectionRequest{
		Code:  query.Get("code"),
		State: query.Get("state"),
	})
	if err != nil {
		h.logger.Error("meta callback failed", "error", err)
		code := "connection_failed"
		if textCode(err) == core.AutopostErrorNoPages {
			code = "no_pages_found"
		}
		h.redirectWithError(w, r, h.defaultReturnURL, code)
		return
	}

	returnURL := response.ReturnURL
	if returnURL == "" {
		returnURL = h.defaultReturnURL
	}
	if returnURL == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"connected": true,
			"account":   accountView(response.Account),
		})
		return
	}

	target := returnURL
	params := url.Values{"meta_connected": {"true"}}
	if page, ok := response.Account.DefaultPage(); ok {
		params.Set("page", page.PageName)
	}
	http.Redirect(w, r, appendQuery(target, params), http.StatusFound)
}

type userTokenRequest struct {
	Email string `json:"email"`
}

// UserToken reports whether a valid stored token exists for one email
// and, when it does, returns the opened token plus the redacted account
// view.
func (h *Handler) UserToken(w http.ResponseWriter, r *http.Request) {
	var req userTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	bundle, err := h.service.Credentials(r.Context(), req.Email)
	if err != nil {
		if isNotFound(err) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"hasValidToken": false,
				"error":         errorBody(err),
			})
			return
		}
		writeError(w, err)
		return
	}

	var activePage any
	if bundle.ActivePage != nil {
		activePage = pageView(*bundle.ActivePage)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hasValidToken": true,
		"token":         bundle.AccessToken,
		"account":       accountView(bundle.Account),
		"activePage":    activePage,
	})
}

type publishFacebookRequest struct {
	UserEmail string `json:"userEmail"`
	ImageURL  string `json:"imageUrl"`
	Caption   string `json:"caption"`
}

// PublishFacebook posts one photo to the caller's resolved page. A
// missing or unusable credential record reads as unauthorized here, not
// as a plain 404: the caller is asking to act, not to look up.
func (h *Handler) PublishFacebook(w http.ResponseWriter, r *http.Request) {
	var req publishFacebookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.PublishPhoto(r.Context(), core.PublishRequest{
		Email:    req.UserEmail,
		ImageURL: req.ImageURL,
		Caption:  req.Caption,
	})
	if err != nil {
		if isNotFound(err) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error": errorBody(err),
			})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"postId":  result.PostID,
		"postUrl": result.PostURL,
		"pageId":  result.PageID,
	})
}

func (h *Handler) redirectWithError(w http.ResponseWriter, r *http.Request, returnURL string, code string) {
	if returnURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"connected": false,
			"error":     map[string]any{"text_code": code},
		})
		return
	}
	http.Redirect(w, r, appendQuery(returnURL, url.Values{"error": {code}}), http.StatusFound)
}

func accountView(account core.Account) map[string]any {
	pages := make([]map[string]any, 0, len(account.Pages))
	for _, page := range account.Pages {
		pages = append(pages, pageView(page))
	}
	return map[string]any{
		"email":        account.Email,
		"metaUserId":   account.MetaUserID,
		"userName":     account.UserName,
		"permissions":  account.Permissions,
		"pages":        pages,
		"activePageId": account.ActivePageID,
		"tokenExpiry":  account.TokenExpiry,
	}
}

func pageView(page core.Page) map[string]any {
	return map[string]any{
		"pageId":       page.PageID,
		"pageName":     page.PageName,
		"category":     page.Category,
		"igBusinessId": page.IGBusinessID,
		"igUsername":   page.IGUsername,
	}
}

func appendQuery(target string, params url.Values) string {
	separator := "?"
	if strings.Contains(target, "?") {
		separator = "&"
	}
	return target + separator + params.Encode()
}

func decodeJSON(r *http.Request, target any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		return badRequestError(fmt.Sprintf("httpapi: read request body: %v", err))
	}
	if len(body) == 0 {
		return badRequestError("httpapi: request body is required")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return badRequestError(fmt.Sprintf("httpapi: decode request body: %v", err))
	}
	return nil
}
