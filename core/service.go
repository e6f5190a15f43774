package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-autopost/security"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	tokenCipher       TokenCipher
	accountStore      AccountStore
	graphClient       GraphClient
	oauthStateStore   OAuthStateStore
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	persistenceClient any
	repositoryFactory any
	clock             func() time.Time
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	TokenCipher       TokenCipher
	AccountStore      AccountStore
	GraphClient       GraphClient
	OAuthStateStore   OAuthStateStore
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	PersistenceClient any
	RepositoryFactory any
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("autopost", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("autopost"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = time.Now
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.tokenCipher == nil {
		if err := finalConfig.ValidateSecrets(); err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		cipher, cipherErr := security.ResolveCipher(
			finalConfig.Encryption.Secret,
			finalConfig.Encryption.Mode,
			finalConfig.Encryption.KeyID,
		)
		if cipherErr != nil {
			return nil, mapBuildError(builder.errorMapper, cipherErr)
		}
		builder.tokenCipher = cipher
	}

	if builder.oauthStateStore == nil {
		ttl := finalConfig.OAuth.StateTTL
		if ttl <= 0 {
			ttl = defaultOAuthStateTTL
		}
		builder.oauthStateStore = NewMemoryOAuthStateStore(ttl)
	}

	if builder.accountStore == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				builder.accountStore = storeProvider.AccountStore()
			}
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.accountStore = storeProvider.AccountStore()
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		tokenCipher:       builder.tokenCipher,
		accountStore:      builder.accountStore,
		graphClient:       builder.graphClient,
		oauthStateStore:   builder.oauthStateStore,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		clock:             builder.clock,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		TokenCipher:       s.tokenCipher,
		AccountStore:      s.accountStore,
		GraphClient:       s.graphClient,
		OAuthStateStore:   s.oauthStateStore,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
	}
}

// BeginConnect builds the OAuth dialog URL for one email and persists a
// one-time state record so the callback can recover who started the
// dialog and where the browser should return to.
func (s *Service) BeginConnect(ctx context.Context, req BeginConnectRequest) (response BeginConnectResponse, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"email": req.Email,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "begin_connect", err, fields)
	}()

	email, err := NormalizeEmail(req.Email)
	if err != nil {
		err = s.mapError(err)
		return BeginConnectResponse{}, err
	}
	fields["email"] = email

	if s.graphClient == nil {
		err = s.mapError(fmt.Errorf("core: graph client is not configured"))
		return BeginConnectResponse{}, err
	}

	state := strings.TrimSpace(req.State)
	if state == "" {
		generated, generateErr := generateOAuthState()
		if generateErr != nil {
			err = s.mapError(generateErr)
			return BeginConnectResponse{}, err
		}
		state = generated
	}

	scopes := append([]string(nil), req.Scopes...)
	if len(scopes) == 0 {
		scopes = append([]string(nil), s.config.Meta.Scopes...)
	}

	url, err := s.graphClient.AuthorizationURL(req.RedirectURI, state, scopes)
	if err != nil {
		err = s.mapError(err)
		return BeginConnectResponse{}, err
	}

	now := s.now()
	saveErr := s.oauthStateStore.Save(ctx, OAuthStateRecord{
		State:       state,
		Email:       email,
		RedirectURI: req.RedirectURI,
		ReturnURL:   req.ReturnURL,
		Scopes:      scopes,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.stateTTL()),
	})
	if saveErr != nil {
		err = s.mapError(saveErr)
		return BeginConnectResponse{}, err
	}

	return BeginConnectResponse{
		URL:    url,
		State:  state,
		Scopes: scopes,
	}, nil
}

// CompleteConnection finishes the OAuth dialog: it consumes the state,
// exchanges the code for a long-lived token, fetches identity and pages,
// seals every token, and upserts the per-email record. A listing with
// zero pages writes nothing.
func (s *Service) CompleteConnection(ctx context.Context, req CompleteConnectionRequest) (response CompleteConnectionResponse, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"email": req.Email,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "complete_connection", err, fields)
	}()

	if s.graphClient == nil {
		err = s.mapError(fmt.Errorf("core: graph client is not configured"))
		return CompleteConnectionResponse{}, err
	}
	if s.accountStore == nil {
		err = s.mapError(fmt.Errorf("core: account store is not configured"))
		return CompleteConnectionResponse{}, err
	}
	if strings.TrimSpace(req.Code) == "" {
		err = s.mapError(fmt.Errorf("core: authorization code is required"))
		return CompleteConnectionResponse{}, err
	}

	record, err := s.oauthStateStore.Consume(ctx, req.State)
	if err != nil {
		err = s.mapError(err)
		return CompleteConnectionResponse{}, err
	}

	// The state record is authoritative for identity: a caller-supplied
	// email must agree with the one that started the dialog.
	email := record.Email
	if requested := strings.TrimSpace(strings.ToLower(req.Email)); requested != "" && requested != email {
		err = s.mapError(fmt.Errorf("core: oauth state email mismatch"))
		return CompleteConnectionResponse{}, err
	}
	fields["email"] = email

	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = record.RedirectURI
	}

	shortLived, err := s.graphClient.ExchangeCode(ctx, req.Code, redirectURI)
	if err != nil {
		err = s.mapError(err)
		return CompleteConnectionResponse{}, err
	}
	longLived, err := s.graphClient.ExchangeLongLived(ctx, shortLived.AccessToken)
	if err != nil {
		err = s.mapError(err)
		return CompleteConnectionResponse{}, err
	}

	userInfo, err := s.graphClient.UserInfo(ctx, longLived.AccessToken)
	if err != nil {
		err = s.mapError(err)
		return CompleteConnectionResponse{}, err
	}
	pages, err := s.graphClient.Pages(ctx, longLived.AccessToken)
	if err != nil {
		err = s.mapError(err)
		return CompleteConnectionResponse{}, err
	}
	if len(pages) == 0 {
		err = s.mapError(ErrNoPagesFound)
		return CompleteConnectionResponse{}, err
	}
	fields["page_count"] = len(pages)

	sealedToken, err := s.seal(ctx, longLived.AccessToken)
	if err != nil {
		err = s.mapError(err)
		return CompleteConnectionResponse{}, err
	}

	incoming := make([]Page, 0, len(pages))
	for _, page := range pages {
		sealedPageToken := ""
		if strings.TrimSpace(page.AccessToken) != "" {
			sealedPageToken, err = s.seal(ctx, page.AccessToken)
			if err != nil {
				err = s.mapError(err)
				return CompleteConnectionResponse{}, err
			}
		}
		incoming = append(incoming, Page{
			PageID:             page.ID,
			PageName:           page.Name,
			EncryptedPageToken: sealedPageToken,
			Category:           page.Category,
			IGBusinessID:       page.IGBusinessID,
			IGUsername:         page.IGUsername,
		})
	}

	now := s.now()
	expiry := now.Add(s.config.TokenTTL())
	if longLived.ExpiresIn > 0 {
		expiry = now.Add(time.Duration(longLived.ExpiresIn) * time.Second)
	}

	account, err := s.accountStore.Upsert(ctx, UpsertAccountInput{
		Email:                email,
		MetaUserID:           userInfo.ID,
		UserName:             userInfo.Name,
		EncryptedAccessToken: sealedToken,
		TokenExpiry:          expiry,
		TokenRefreshedAt:     now,
		Permissions:          append([]string(nil), userInfo.Permissions...),
		Pages:                incoming,
		LastActivity:         now,
	})
	if err != nil {
		err = s.mapError(err)
		return CompleteConnectionResponse{}, err
	}

	return CompleteConnectionResponse{
		Account:   redactAccount(account),
		ReturnURL: record.ReturnURL,
	}, nil
}

// Credentials opens the stored token material for one email. A record
// that is absent, deactivated, or past its validity window reports
// not-found; the caller's remedy is the same reconnect either way.
func (s *Service) Credentials(ctx context.Context, email string) (bundle CredentialBundle, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"email": email,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "credentials", err, fields)
	}()

	resolved, err := s.resolveCredentials(ctx, email)
	if err != nil {
		err = s.mapError(err)
		return CredentialBundle{}, err
	}
	fields["email"] = resolved.account.Email
	if resolved.activePage != nil {
		fields["page_id"] = resolved.activePage.PageID
	}

	accessToken := resolved.userToken
	if resolved.pageToken != "" {
		accessToken = resolved.pageToken
	}

	var activePage *Page
	if resolved.activePage != nil {
		redacted := redactPage(*resolved.activePage)
		activePage = &redacted
	}

	return CredentialBundle{
		AccessToken: accessToken,
		Account:     redactAccount(resolved.account),
		ActivePage:  activePage,
	}, nil
}

// SetActivePage selects the publish target for one email. The page must
// already be linked to the record.
func (s *Service) SetActivePage(ctx context.Context, email string, pageID string) (account Account, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"email":   email,
		"page_id": pageID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "set_active_page", err, fields)
	}()

	normalized, err := NormalizeEmail(email)
	if err != nil {
		err = s.mapError(err)
		return Account{}, err
	}
	fields["email"] = normalized
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		err = s.mapError(fmt.Errorf("%w: page id is required", ErrPageNotLinked))
		return Account{}, err
	}
	if s.accountStore == nil {
		err = s.mapError(fmt.Errorf("core: account store is not configured"))
		return Account{}, err
	}

	current, err := s.accountStore.GetByEmail(ctx, normalized, false)
	if err != nil {
		err = s.mapError(err)
		return Account{}, err
	}
	if _, ok := current.FindPage(pageID); !ok {
		err = s.mapError(fmt.Errorf("%w: %s", ErrPageNotLinked, pageID))
		return Account{}, err
	}

	if err = s.accountStore.SetActivePage(ctx, normalized, pageID); err != nil {
		err = s.mapError(err)
		return Account{}, err
	}

	updated, err := s.accountStore.GetByEmail(ctx, normalized, false)
	if err != nil {
		err = s.mapError(err)
		return Account{}, err
	}
	return redactAccount(updated), nil
}

// Deactivate turns the record off without deleting it. Lookups treat a
// deactivated record as absent.
func (s *Service) Deactivate(ctx context.Context, email string, reason string) (err error) {
	startedAt := s.now()
	fields := map[string]any{
		"email":  email,
		"reason": reason,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "deactivate", err, fields)
	}()

	normalized, err := NormalizeEmail(email)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	fields["email"] = normalized
	if s.accountStore == nil {
		err = s.mapError(fmt.Errorf("core: account store is not configured"))
		return err
	}

	if err = s.accountStore.SetActive(ctx, normalized, false, reason); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// PublishPhoto posts a photo to the resolved page for one email. When the
// stored material is user-scoped, the page access token is fetched from
// the provider first. Provider failures propagate; there is no local
// retry.
func (s *Service) PublishPhoto(ctx context.Context, req PublishRequest) (result PublishResult, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"email": req.Email,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "publish_photo", err, fields)
	}()

	if s.graphClient == nil {
		err = s.mapError(fmt.Errorf("core: graph client is not configured"))
		return PublishResult{}, err
	}
	if strings.TrimSpace(req.ImageURL) == "" && len(req.ImageData) == 0 {
		err = s.mapError(fmt.Errorf("core: image url or image data is required"))
		return PublishResult{}, err
	}

	resolved, err := s.resolveCredentials(ctx, req.Email)
	if err != nil {
		err = s.mapError(err)
		return PublishResult{}, err
	}
	fields["email"] = resolved.account.Email
	if resolved.activePage == nil {
		err = s.mapError(ErrNoPagesFound)
		return PublishResult{}, err
	}
	pageID := resolved.activePage.PageID
	fields["page_id"] = pageID

	pageToken := resolved.pageToken
	if pageToken == "" {
		pageToken, err = s.graphClient.PageAccessToken(ctx, pageID, resolved.userToken)
		if err != nil {
			err = s.mapError(err)
			return PublishResult{}, err
		}
	}

	published, err := s.graphClient.PublishPhoto(ctx, PublishPhotoRequest{
		PageID:    pageID,
		PageToken: pageToken,
		ImageURL:  req.ImageURL,
		ImageData: req.ImageData,
		Caption:   req.Caption,
	})
	if err != nil {
		err = s.mapError(err)
		return PublishResult{}, err
	}
	fields["post_id"] = published.PostID

	return PublishResult{
		PostID:  published.PostID,
		PostURL: published.PostURL,
		PageID:  pageID,
	}, nil
}

type resolvedCredentials struct {
	account    Account
	userToken  string
	activePage *Page
	pageToken  string
}

func (s *Service) resolveCredentials(ctx context.Context, email string) (resolvedCredentials, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return resolvedCredentials{}, err
	}
	if s.accountStore == nil {
		return resolvedCredentials{}, fmt.Errorf("core: account store is not configured")
	}

	account, err := s.accountStore.GetByEmail(ctx, normalized, true)
	if err != nil {
		return resolvedCredentials{}, err
	}
	if !account.IsActive {
		return resolvedCredentials{}, ErrAccountInactive
	}
	if account.TokenExpired(s.now()) {
		return resolvedCredentials{}, ErrTokenExpired
	}
	if strings.TrimSpace(account.EncryptedAccessToken) == "" {
		return resolvedCredentials{}, ErrAccountNotFound
	}

	userToken, err := s.open(ctx, account.EncryptedAccessToken)
	if err != nil {
		return resolvedCredentials{}, err
	}

	resolved := resolvedCredentials{
		account:   account,
		userToken: userToken,
	}
	if page, ok := account.DefaultPage(); ok {
		resolved.activePage = &page
		if strings.TrimSpace(page.EncryptedPageToken) != "" {
			pageToken, openErr := s.open(ctx, page.EncryptedPageToken)
			if openErr != nil {
				return resolvedCredentials{}, openErr
			}
			resolved.pageToken = pageToken
		}
	}
	return resolved, nil
}

func (s *Service) seal(ctx context.Context, plaintext string) (string, error) {
	if s.tokenCipher == nil {
		return "", fmt.Errorf("core: token cipher is not configured")
	}
	sealed, err := s.tokenCipher.Seal(ctx, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return string(sealed), nil
}

func (s *Service) open(ctx context.Context, blob string) (string, error) {
	if s.tokenCipher == nil {
		return "", fmt.Errorf("core: token cipher is not configured")
	}
	opened, err := s.tokenCipher.Open(ctx, []byte(blob))
	if err != nil {
		return "", err
	}
	return string(opened), nil
}

func (s *Service) now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Service) stateTTL() time.Duration {
	if s.config.OAuth.StateTTL > 0 {
		return s.config.OAuth.StateTTL
	}
	return defaultOAuthStateTTL
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func redactAccount(account Account) Account {
	account.EncryptedAccessToken = ""
	account.Permissions = cloneStrings(account.Permissions)
	pages := make([]Page, 0, len(account.Pages))
	for _, page := range account.Pages {
		pages = append(pages, redactPage(page))
	}
	account.Pages = pages
	return account
}

func redactPage(page Page) Page {
	page.EncryptedPageToken = ""
	return page
}
