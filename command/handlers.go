package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-autopost/core"
)

// MutatingService is the slice of the autopost service the command
// handlers dispatch into.
type MutatingService interface {
	BeginConnect(ctx context.Context, req core.BeginConnectRequest) (core.BeginConnectResponse, error)
	CompleteConnection(ctx context.Context, req core.CompleteConnectionRequest) (core.CompleteConnectionResponse, error)
	SetActivePage(ctx context.Context, email string, pageID string) (core.Account, error)
	Deactivate(ctx context.Context, email string, reason string) error
	PublishPhoto(ctx context.Context, req core.PublishRequest) (core.PublishResult, error)
}

type BeginConnectCommand struct {
	service MutatingService
}

func NewBeginConnectCommand(service MutatingService) *BeginConnectCommand {
	return &BeginConnectCommand{service: service}
}

func (c *BeginConnectCommand) Execute(ctx context.Context, msg BeginConnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connect service is required")
	}
	out, err := c.service.BeginConnect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteConnectionCommand struct {
	service MutatingService
}

func NewCompleteConnectionCommand(service MutatingService) *CompleteConnectionCommand {
	return &CompleteConnectionCommand{service: service}
}

func (c *CompleteConnectionCommand) Execute(ctx context.Context, msg CompleteConnectionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.CompleteConnection(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SetActivePageCommand struct {
	service MutatingService
}

func NewSetActivePageCommand(service MutatingService) *SetActivePageCommand {
	return &SetActivePageCommand{service: service}
}

func (c *SetActivePageCommand) Execute(ctx context.Context, msg SetActivePageMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: page selection service is required")
	}
	out, err := c.service.SetActivePage(ctx, msg.Email, msg.PageID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeactivateCommand struct {
	service MutatingService
}

func NewDeactivateCommand(service MutatingService) *DeactivateCommand {
	return &DeactivateCommand{service: service}
}

func (c *DeactivateCommand) Execute(ctx context.Context, msg DeactivateMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: deactivate service is required")
	}
	return c.service.Deactivate(ctx, msg.Email, msg.Reason)
}

type PublishPhotoCommand struct {
	service MutatingService
}

func NewPublishPhotoCommand(service MutatingService) *PublishPhotoCommand {
	return &PublishPhotoCommand{service: service}
}

func (c *PublishPhotoCommand) Execute(ctx context.Context, msg PublishPhotoMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: publish service is required")
	}
	out, err := c.service.PublishPhoto(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
