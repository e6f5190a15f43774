package autopost

import (
	"fmt"

	autopostcommand "github.com/goliatone/go-autopost/command"
	"github.com/goliatone/go-autopost/core"
)

type Config = core.Config

type EncryptionConfig = core.EncryptionConfig
type MetaConfig = core.MetaConfig
type OAuthConfig = core.OAuthConfig
type ExpiryConfig = core.ExpiryConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type Account = core.Account
type Page = core.Page
type AccountStore = core.AccountStore
type TokenCipher = core.TokenCipher
type GraphClient = core.GraphClient
type OAuthStateStore = core.OAuthStateStore
type MetricsRecorder = core.MetricsRecorder

type BeginConnectRequest = core.BeginConnectRequest
type BeginConnectResponse = core.BeginConnectResponse
type CompleteConnectionRequest = core.CompleteConnectionRequest
type CompleteConnectionResponse = core.CompleteConnectionResponse
type CredentialBundle = core.CredentialBundle
type PublishRequest = core.PublishRequest
type PublishResult = core.PublishResult

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithTokenCipher       = core.WithTokenCipher
	WithAccountStore      = core.WithAccountStore
	WithGraphClient       = core.WithGraphClient
	WithOAuthStateStore   = core.WithOAuthStateStore
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}

// Commands bundles the go-command handlers over one service instance so
// hosts can register them on their bus in one call.
type Commands struct {
	BeginConnect       *autopostcommand.BeginConnectCommand
	CompleteConnection *autopostcommand.CompleteConnectionCommand
	SetActivePage      *autopostcommand.SetActivePageCommand
	Deactivate         *autopostcommand.DeactivateCommand
	PublishPhoto       *autopostcommand.PublishPhotoCommand
}

type Facade struct {
	service  autopostcommand.MutatingService
	commands Commands
}

func NewFacade(service autopostcommand.MutatingService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("autopost: service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			BeginConnect:       autopostcommand.NewBeginConnectCommand(service),
			CompleteConnection: autopostcommand.NewCompleteConnectionCommand(service),
			SetActivePage:      autopostcommand.NewSetActivePageCommand(service),
			Deactivate:         autopostcommand.NewDeactivateCommand(service),
			PublishPhoto:       autopostcommand.NewPublishPhotoCommand(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Service() autopostcommand.MutatingService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ autopostcommand.MutatingService = (*core.Service)(nil)
