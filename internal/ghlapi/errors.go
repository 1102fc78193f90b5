package ghlapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bradenrollio/easycal-sub000/internal/ghlauth"
)

const maxErrorBody = 300

var ErrDecode = errors.New("decode response")

// BackendError is a non-2xx answer from the platform.
type BackendError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	if e.Message != "" {
		msg += ": " + e.Message
	}

	return msg
}

// IsNotFound reports whether err is a 404 from the platform.
func IsNotFound(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Status == http.StatusNotFound
}

// IsAmbiguous reports whether a write may have been applied even though it
// failed: a 5xx, a transport failure after the request went out, or an
// unreadable success body. Callers verify with a re-read.
func IsAmbiguous(err error) bool {
	if err == nil {
		return false
	}

	if isAuthError(err) || errors.Is(err, context.Canceled) {
		return false
	}

	var be *BackendError
	if errors.As(err, &be) {
		return be.Status >= http.StatusInternalServerError
	}

	if errors.Is(err, ErrDecode) {
		return true
	}

	var ue *url.Error
	return errors.As(err, &ue)
}

func isAuthError(err error) bool {
	var are *ghlauth.AuthRequiredError
	return errors.As(err, &are)
}

type errorBody struct {
	Message json.RawMessage `json:"message"`
	Error   string          `json:"error"`
}

func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		var s string
		if json.Unmarshal(eb.Message, &s) == nil && s != "" {
			return s
		}

		var list []string
		if json.Unmarshal(eb.Message, &list) == nil && len(list) > 0 {
			return strings.Join(list, "; ")
		}

		if eb.Error != "" {
			return eb.Error
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}

	return msg
}
