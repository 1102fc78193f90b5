// Package errfmt turns errors into the one-line messages printed on stderr.
package errfmt

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/99designs/keyring"
	"github.com/alecthomas/kong"

	"github.com/bradenrollio/easycal-sub000/internal/config"
	"github.com/bradenrollio/easycal-sub000/internal/ghlapi"
	"github.com/bradenrollio/easycal-sub000/internal/ghlauth"
)

// UserFacingError carries a message meant for operators while keeping the
// underlying error for errors.Is/As.
type UserFacingError struct {
	Message string
	Cause   error
}

func (e *UserFacingError) Error() string { return e.Message }
func (e *UserFacingError) Unwrap() error { return e.Cause }

func NewUserFacingError(message string, cause error) error {
	return &UserFacingError{Message: message, Cause: cause}
}

func Format(err error) string {
	if err == nil {
		return ""
	}

	var ufe *UserFacingError
	if errors.As(err, &ufe) {
		return ufe.Message
	}

	var pe *kong.ParseError
	if errors.As(err, &pe) {
		return pe.Error() + " (see --help)"
	}

	var are *ghlauth.AuthRequiredError
	if errors.As(err, &are) {
		return fmt.Sprintf("Not authorized for location %s. Run: easycal auth add --location %s", are.LocationID, are.LocationID)
	}

	var cme *config.CredentialsMissingError
	if errors.As(err, &cme) {
		return cme.Error()
	}

	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "Secret not found in keyring"
	}

	var be *ghlapi.BackendError
	if errors.As(err, &be) {
		return formatBackendError(be)
	}

	return err.Error()
}

func formatBackendError(be *ghlapi.BackendError) string {
	msg := strings.TrimSpace(be.Message)

	switch {
	case ghlapi.IsNotFound(be):
		return fmt.Sprintf("Not found in GoHighLevel: %s (check the id and --location)", be.Path)
	case be.Status == http.StatusForbidden:
		return "Permission denied by GoHighLevel (check the app's scopes for this location): " + msg
	case be.Status == http.StatusTooManyRequests:
		return "Rate limited by GoHighLevel; retry later"
	case be.Status >= http.StatusInternalServerError:
		return fmt.Sprintf("GoHighLevel is unavailable (%d); retry later", be.Status)
	}

	if msg == "" {
		return be.Error()
	}

	return fmt.Sprintf("GoHighLevel rejected %s %s (%d): %s", be.Method, be.Path, be.Status, msg)
}
