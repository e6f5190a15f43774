package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-autopost/core"
)

const (
	DefaultGraphBaseURL  = "https://graph.facebook.com"
	DefaultDialogBaseURL = "https://www.facebook.com"
	DefaultGraphVersion  = "v23.0"

	defaultRequestTimeout = 30 * time.Second
	maxResponseBodyBytes  = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	ClientID       string
	ClientSecret   string
	GraphVersion   string
	GraphBaseURL   string
	DialogBaseURL  string
	RequestTimeout time.Duration
	HTTPClient     HTTPDoer
}

// Client talks to the Meta Graph API: OAuth code exchange, long-lived
// token exchange, identity, page listing, and page photo publishing.
type Client struct {
	cfg        Config
	httpClient HTTPDoer
}

func NewClient(cfg Config) (*Client, error) {
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("meta: client id is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("meta: client secret is required")
	}

	cfg.GraphVersion = strings.TrimSpace(cfg.GraphVersion)
	if cfg.GraphVersion == "" {
		cfg.GraphVersion = DefaultGraphVersion
	}
	cfg.GraphBaseURL = strings.TrimRight(strings.TrimSpace(cfg.GraphBaseURL), "/")
	if cfg.GraphBaseURL == "" {
		cfg.GraphBaseURL = DefaultGraphBaseURL
	}
	cfg.DialogBaseURL = strings.TrimRight(strings.TrimSpace(cfg.DialogBaseURL), "/")
	if cfg.DialogBaseURL == "" {
		cfg.DialogBaseURL = DefaultDialogBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
	}, nil
}

func (c *Client) AuthorizationURL(redirectURI string, state string, scopes []string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("meta: client is nil")
	}
	redirectURI = strings.TrimSpace(redirectURI)
	if redirectURI == "" {
		return "", fmt.Errorf("meta: redirect uri is required")
	}
	if strings.TrimSpace(state) == "" {
		return "", fmt.Errorf("meta: state is required")
	}

	values := url.Values{}
	values.Set("client_id", c.cfg.ClientID)
	values.Set("redirect_uri", redirectURI)
	values.Set("state", state)
	values.Set("response_type", "code")
	if len(scopes) > 0 {
		values.Set("scope", strings.Join(scopes, ","))
	}
	return c.cfg.DialogBaseURL + "/" + c.cfg.GraphVersion + "/dialog/oauth?" + values.Encode(), nil
}

func (c *Client) ExchangeCode(ctx context.Context, code string, redirectURI string) (core.Token, error) {
	if strings.TrimSpace(code) == "" {
		return core.Token{}, fmt.Errorf("meta: authorization code is required")
	}

	values := url.Values{}
	values.Set("client_id", c.cfg.ClientID)
	values.Set("client_secret", c.cfg.ClientSecret)
	values.Set("redirect_uri", strings.TrimSpace(redirectURI))
	values.Set("code", strings.TrimSpace(code))

	var payload tokenPayload
	if err := c.getJSON(ctx, "/oauth/access_token", values, &payload); err != nil {
		return core.Token{}, err
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return core.Token{}, fmt.Errorf("meta: token response missing access token")
	}
	return core.Token{
		AccessToken: payload.AccessToken,
		TokenType:   payload.TokenType,
		ExpiresIn:   payload.ExpiresIn,
	}, nil
}

func (c *Client) ExchangeLongLived(ctx context.Context, accessToken string) (core.Token, error) {
	if strings.TrimSpace(accessToken) == "" {
		return core.Token{}, fmt.Errorf("meta: access token is required")
	}

	values := url.Values{}
	values.Set("grant_type", "fb_exchange_token")
	values.Set("client_id", c.cfg.ClientID)
	values.Set("client_secret", c.cfg.ClientSecret)
	values.Set("fb_exchange_token", strings.TrimSpace(accessToken))

	var payload tokenPayload
	if err := c.getJSON(ctx, "/oauth/access_token", values, &payload); err != nil {
		return core.Token{}, err
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return core.Token{}, fmt.Errorf("meta: token response missing access token")
	}
	return core.Token{
		AccessToken: payload.AccessToken,
		TokenType:   payload.TokenType,
		ExpiresIn:   payload.ExpiresIn,
	}, nil
}

func (c *Client) UserInfo(ctx context.Context, accessToken string) (core.UserInfo, error) {
	if strings.TrimSpace(accessToken) == "" {
		return core.UserInfo{}, fmt.Errorf("meta: access token is required")
	}

	values := url.Values{}
	values.Set("fields", "id,name")
	values.Set("access_token", accessToken)

	var identity struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.getJSON(ctx, "/me", values, &identity); err != nil {
		return core.UserInfo{}, err
	}
	if strings.TrimSpace(identity.ID) == "" {
		return core.UserInfo{}, fmt.Errorf("meta: identity response missing user id")
	}

	permissions, err := c.grantedPermissions(ctx, accessToken)
	if err != nil {
		return core.UserInfo{}, err
	}

	return core.UserInfo{
		ID:          identity.ID,
		Name:        identity.Name,
		Permissions: permissions,
	}, nil
}

func (c *Client) grantedPermissions(ctx context.Context, accessToken string) ([]string, error) {
	values := url.Values{}
	values.Set("access_token", accessToken)

	var payload struct {
		Data []struct {
			Permission string `json:"permission"`
			Status     string `json:"status"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, "/me/permissions", values, &payload); err != nil {
		return nil, err
	}

	granted := make([]string, 0, len(payload.Data))
	for _, entry := range payload.Data {
		if strings.EqualFold(strings.TrimSpace(entry.Status), "granted") {
			granted = append(granted, strings.TrimSpace(entry.Permission))
		}
	}
	return granted, nil
}

// Pages lists the manageable pages for the token, each with its page
// access token and linked Instagram business account when one exists.
// The provider's listing order is preserved.
func (c *Client) Pages(ctx context.Context, accessToken string) ([]core.PageInfo, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("meta: access token is required")
	}

	values := url.Values{}
	values.Set("fields", "id,name,access_token,category,instagram_business_account{id,username}")
	values.Set("access_token", accessToken)

	var payload struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			AccessToken string `json:"access_token"`
			Category    string `json:"category"`
			Instagram   *struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			} `json:"instagram_business_account"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, "/me/accounts", values, &payload); err != nil {
		return nil, err
	}

	pages := make([]core.PageInfo, 0, len(payload.Data))
	for _, entry := range payload.Data {
		page := core.PageInfo{
			ID:          entry.ID,
			Name:        entry.Name,
			AccessToken: entry.AccessToken,
			Category:    entry.Category,
		}
		if entry.Instagram != nil {
			page.IGBusinessID = entry.Instagram.ID
			page.IGUsername = entry.Instagram.Username
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (c *Client) PageAccessToken(ctx context.Context, pageID string, userToken string) (string, error) {
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return "", fmt.Errorf("meta: page id is required")
	}
	if strings.TrimSpace(userToken) == "" {
		return "", fmt.Errorf("meta: access token is required")
	}

	values := url.Values{}
	values.Set("fields", "access_token")
	values.Set("access_token", userToken)

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.getJSON(ctx, "/"+pageID, values, &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", fmt.Errorf("meta: page token response missing access token")
	}
	return payload.AccessToken, nil
}

// PublishPhoto posts a photo to a page feed. A URL publish goes out as a
// form post; raw bytes go out as a multipart upload.
func (c *Client) PublishPhoto(ctx context.Context, req core.PublishPhotoRequest) (core.PublishPhotoResult, error) {
	pageID := strings.TrimSpace(req.PageID)
	if pageID == "" {
		return core.PublishPhotoResult{}, fmt.Errorf("meta: page id is required")
	}
	if strings.TrimSpace(req.PageToken) == "" {
		return core.PublishPhotoResult{}, fmt.Errorf("meta: page token is required")
	}
	if strings.TrimSpace(req.ImageURL) == "" && len(req.ImageData) == 0 {
		return core.PublishPhotoResult{}, fmt.Errorf("meta: image url or image data is required")
	}

	var payload struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}

	path := "/" + pageID + "/photos"
	if strings.TrimSpace(req.ImageURL) != "" {
		form := url.Values{}
		form.Set("url", strings.TrimSpace(req.ImageURL))
		form.Set("access_token", req.PageToken)
		if strings.TrimSpace(req.Caption) != "" {
			form.Set("message", req.Caption)
		}
		if err := c.postForm(ctx, path, form, &payload); err != nil {
			return core.PublishPhotoResult{}, err
		}
	} else {
		if err := c.postMultipart(ctx, path, req, &payload); err != nil {
			return core.PublishPhotoResult{}, err
		}
	}

	postID := strings.TrimSpace(payload.PostID)
	if postID == "" {
		postID = strings.TrimSpace(payload.ID)
	}
	if postID == "" {
		return core.PublishPhotoResult{}, fmt.Errorf("meta: publish response missing post id")
	}
	return core.PublishPhotoResult{
		PostID:  postID,
		PostURL: c.cfg.DialogBaseURL + "/" + postID,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, values url.Values, out any) error {
	endpoint := c.graphURL(path) + "?" + values.Encode()
	httpReq, err := http.NewRequestWithContext(c.requestContext(ctx), http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")
	return c.doJSON(httpReq, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	httpReq, err := http.NewRequestWithContext(
		c.requestContext(ctx),
		http.MethodPost,
		c.graphURL(path),
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	return c.doJSON(httpReq, out)
}

func (c *Client) postMultipart(ctx context.Context, path string, req core.PublishPhotoRequest, out any) error {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)

	part, err := writer.CreateFormFile("source", "photo")
	if err != nil {
		return fmt.Errorf("meta: build multipart body: %w", err)
	}
	if _, err := part.Write(req.ImageData); err != nil {
		return fmt.Errorf("meta: build multipart body: %w", err)
	}
	if err := writer.WriteField("access_token", req.PageToken); err != nil {
		return fmt.Errorf("meta: build multipart body: %w", err)
	}
	if strings.TrimSpace(req.Caption) != "" {
		if err := writer.WriteField("message", req.Caption); err != nil {
			return fmt.Errorf("meta: build multipart body: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("meta: build multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		c.requestContext(ctx),
		http.MethodPost,
		c.graphURL(path),
		&buffer,
	)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")
	return c.doJSON(httpReq, out)
}

func (c *Client) doJSON(httpReq *http.Request, out any) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("meta: http client is not configured")
	}

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("meta: graph api request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return fmt.Errorf("meta: read graph api response: %w", readErr)
	}
	if int64(len(body)) > maxResponseBodyBytes {
		return fmt.Errorf("meta: graph api response exceeds %d bytes", maxResponseBodyBytes)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("meta: graph api error (%d): %s", response.StatusCode, describeGraphError(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("meta: decode graph api response: %w", err)
	}
	return nil
}

func (c *Client) graphURL(path string) string {
	return c.cfg.GraphBaseURL + "/" + c.cfg.GraphVersion + path
}

func (c *Client) requestContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

type tokenPayload struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type graphErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func describeGraphError(body []byte) string {
	var parsed graphErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		if message := strings.TrimSpace(parsed.Error.Message); message != "" {
			if parsed.Error.Code != 0 {
				return fmt.Sprintf("%s (code %d)", message, parsed.Error.Code)
			}
			return message
		}
	}
	return "unknown error"
}

var _ core.GraphClient = (*Client)(nil)
