package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-autopost/core"
)

const (
	TypeBeginConnect       = "autopost.command.connect.begin"
	TypeCompleteConnection = "autopost.command.connect.complete"
	TypeSetActivePage      = "autopost.command.page.set_active"
	TypeDeactivate         = "autopost.command.deactivate"
	TypePublishPhoto       = "autopost.command.publish.photo"
)

type BeginConnectMessage struct {
	Request core.BeginConnectRequest
}

func (BeginConnectMessage) Type() string { return TypeBeginConnect }

func (m BeginConnectMessage) Validate() error {
	if err := validateEmail(m.Request.Email); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.RedirectURI) == "" {
		return fmt.Errorf("command: redirect uri is required")
	}
	return nil
}

type CompleteConnectionMessage struct {
	Request core.CompleteConnectionRequest
}

func (CompleteConnectionMessage) Type() string { return TypeCompleteConnection }

func (m CompleteConnectionMessage) Validate() error {
	if strings.TrimSpace(m.Request.Code) == "" {
		return fmt.Errorf("command: authorization code is required")
	}
	if strings.TrimSpace(m.Request.State) == "" {
		return fmt.Errorf("command: oauth state is required")
	}
	return nil
}

type SetActivePageMessage struct {
	Email  string
	PageID string
}

func (SetActivePageMessage) Type() string { return TypeSetActivePage }

func (m SetActivePageMessage) Validate() error {
	if err := validateEmail(m.Email); err != nil {
		return err
	}
	if strings.TrimSpace(m.PageID) == "" {
		return fmt.Errorf("command: page id is required")
	}
	return nil
}

type DeactivateMessage struct {
	Email  string
	Reason string
}

func (DeactivateMessage) Type() string { return TypeDeactivate }

func (m DeactivateMessage) Validate() error {
	return validateEmail(m.Email)
}

type PublishPhotoMessage struct {
	Request core.PublishRequest
}

func (PublishPhotoMessage) Type() string { return TypePublishPhoto }

func (m PublishPhotoMessage) Validate() error {
	if err := validateEmail(m.Request.Email); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.ImageURL) == "" && len(m.Request.ImageData) == 0 {
		return fmt.Errorf("command: image url or image data is required")
	}
	return nil
}

func validateEmail(email string) error {
	if _, err := core.NormalizeEmail(email); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	return nil
}
