package meta

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/goliatone/go-autopost/core"
)

func publishRequest(imageURL string, imageData []byte) core.PublishPhotoRequest {
	return core.PublishPhotoRequest{
		PageID:    "page-1",
		PageToken: "page-token",
		ImageURL:  imageURL,
		ImageData: imageData,
		Caption:   "New listing",
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		GraphVersion:  "v23.0",
		GraphBaseURL:  server.URL,
		DialogBaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, server
}

func TestClient_AuthorizationURL(t *testing.T) {
	client, err := NewClient(Config{ClientID: "client-id", ClientSecret: "client-secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	raw, err := client.AuthorizationURL("https://app.example.com/callback", "state-123", []string{"pages_show_list", "pages_manage_posts"})
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if parsed.Host != "www.facebook.com" {
		t.Fatalf("unexpected host %q", parsed.Host)
	}
	if parsed.Path != "/v23.0/dialog/oauth" {
		t.Fatalf("unexpected path %q", parsed.Path)
	}
	query := parsed.Query()
	if query.Get("client_id") != "client-id" {
		t.Fatalf("unexpected client_id %q", query.Get("client_id"))
	}
	if query.Get("state") != "state-123" {
		t.Fatalf("unexpected state %q", query.Get("state"))
	}
	if query.Get("scope") != "pages_show_list,pages_manage_posts" {
		t.Fatalf("unexpected scope %q", query.Get("scope"))
	}

	if _, err := client.AuthorizationURL("", "state", nil); err == nil {
		t.Fatalf("expected missing redirect uri error")
	}
	if _, err := client.AuthorizationURL("https://app.example.com/cb", "", nil); err == nil {
		t.Fatalf("expected missing state error")
	}
}

func TestClient_ExchangeCode(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v23.0/oauth/access_token" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("code") != "auth-code" {
			t.Errorf("unexpected code %q", query.Get("code"))
		}
		if query.Get("client_secret") != "client-secret" {
			t.Errorf("unexpected client_secret %q", query.Get("client_secret"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"short-token","token_type":"bearer","expires_in":5183944}`))
	}))

	token, err := client.ExchangeCode(context.Background(), "auth-code", "https://app.example.com/callback")
	if err != nil {
		t.Fatalf("exchange code: %v", err)
	}
	if token.AccessToken != "short-token" {
		t.Fatalf("unexpected token %q", token.AccessToken)
	}
	if token.ExpiresIn != 5183944 {
		t.Fatalf("unexpected expires_in %d", token.ExpiresIn)
	}
}

func TestClient_ExchangeLongLived(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("grant_type") != "fb_exchange_token" {
			t.Errorf("unexpected grant_type %q", query.Get("grant_type"))
		}
		if query.Get("fb_exchange_token") != "short-token" {
			t.Errorf("unexpected fb_exchange_token %q", query.Get("fb_exchange_token"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"long-token","token_type":"bearer","expires_in":5184000}`))
	}))

	token, err := client.ExchangeLongLived(context.Background(), "short-token")
	if err != nil {
		t.Fatalf("exchange long lived: %v", err)
	}
	if token.AccessToken != "long-token" {
		t.Fatalf("unexpected token %q", token.AccessToken)
	}
}

func TestClient_UserInfoCollectsGrantedPermissions(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v23.0/me":
			w.Write([]byte(`{"id":"user-1","name":"Dana Example"}`))
		case "/v23.0/me/permissions":
			w.Write([]byte(`{"data":[
				{"permission":"pages_show_list","status":"granted"},
				{"permission":"pages_manage_posts","status":"declined"},
				{"permission":"pages_read_engagement","status":"granted"}
			]}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))

	info, err := client.UserInfo(context.Background(), "token")
	if err != nil {
		t.Fatalf("user info: %v", err)
	}
	if info.ID != "user-1" || info.Name != "Dana Example" {
		t.Fatalf("unexpected identity %+v", info)
	}
	if len(info.Permissions) != 2 {
		t.Fatalf("expected 2 granted permissions; got %v", info.Permissions)
	}
	if info.Permissions[0] != "pages_show_list" || info.Permissions[1] != "pages_read_engagement" {
		t.Fatalf("unexpected permissions %v", info.Permissions)
	}
}

func TestClient_PagesKeepsListingOrderAndInstagram(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v23.0/me/accounts" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if !strings.Contains(r.URL.Query().Get("fields"), "instagram_business_account") {
			t.Errorf("expected instagram fields in %q", r.URL.Query().Get("fields"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"id":"page-1","name":"First Page","access_token":"page-token-1","category":"Real Estate"},
			{"id":"page-2","name":"Second Page","access_token":"page-token-2","category":"Business",
			 "instagram_business_account":{"id":"ig-9","username":"secondpage"}}
		]}`))
	}))

	pages, err := client.Pages(context.Background(), "token")
	if err != nil {
		t.Fatalf("pages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages; got %d", len(pages))
	}
	if pages[0].ID != "page-1" || pages[1].ID != "page-2" {
		t.Fatalf("listing order not preserved: %+v", pages)
	}
	if pages[0].IGBusinessID != "" {
		t.Fatalf("expected no instagram link on first page")
	}
	if pages[1].IGBusinessID != "ig-9" || pages[1].IGUsername != "secondpage" {
		t.Fatalf("unexpected instagram link %+v", pages[1])
	}
}

func TestClient_PageAccessToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v23.0/page-1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"page-token","id":"page-1"}`))
	}))

	token, err := client.PageAccessToken(context.Background(), "page-1", "user-token")
	if err != nil {
		t.Fatalf("page access token: %v", err)
	}
	if token != "page-token" {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestClient_PublishPhotoByURL(t *testing.T) {
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %q", r.Method)
		}
		if r.URL.Path != "/v23.0/page-1/photos" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("url") != "https://cdn.example.com/listing.jpg" {
			t.Errorf("unexpected url %q", r.PostForm.Get("url"))
		}
		if r.PostForm.Get("message") != "New listing" {
			t.Errorf("unexpected message %q", r.PostForm.Get("message"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"photo-1","post_id":"page-1_post-9"}`))
	}))

	result, err := client.PublishPhoto(context.Background(), publishRequest("https://cdn.example.com/listing.jpg", nil))
	if err != nil {
		t.Fatalf("publish photo: %v", err)
	}
	if result.PostID != "page-1_post-9" {
		t.Fatalf("unexpected post id %q", result.PostID)
	}
	if result.PostURL != server.URL+"/page-1_post-9" {
		t.Fatalf("unexpected post url %q", result.PostURL)
	}
}

func TestClient_PublishPhotoMultipart(t *testing.T) {
	imageData := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01, 0x02}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("expected multipart body; got %q", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("access_token") != "page-token" {
			t.Errorf("unexpected access_token %q", r.FormValue("access_token"))
		}
		file, _, err := r.FormFile("source")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			defer file.Close()
			buf := make([]byte, len(imageData)+1)
			n, _ := file.Read(buf)
			if string(buf[:n]) != string(imageData) {
				t.Errorf("unexpected image payload")
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"photo-2"}`))
	}))

	result, err := client.PublishPhoto(context.Background(), publishRequest("", imageData))
	if err != nil {
		t.Fatalf("publish photo: %v", err)
	}
	if result.PostID != "photo-2" {
		t.Fatalf("unexpected post id %q", result.PostID)
	}
}

func TestClient_GraphErrorSurfacesMessage(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190}}`))
	}))

	_, err := client.Pages(context.Background(), "stale-token")
	if err == nil {
		t.Fatalf("expected graph error")
	}
	if !strings.Contains(err.Error(), "Invalid OAuth access token") {
		t.Fatalf("expected graph message in error; got %v", err)
	}
	if !strings.Contains(err.Error(), "code 190") {
		t.Fatalf("expected graph code in error; got %v", err)
	}
}
