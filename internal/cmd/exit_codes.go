package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"

	"github.com/99designs/keyring"

	"github.com/bradenrollio/easycal-sub000/internal/config"
	"github.com/bradenrollio/easycal-sub000/internal/ghlapi"
	"github.com/bradenrollio/easycal-sub000/internal/ghlauth"
	"github.com/bradenrollio/easycal-sub000/internal/outfmt"
	"github.com/bradenrollio/easycal-sub000/internal/store"
)

const (
	// Exit code 0 is success.
	// Exit code 1 is generic failure.
	exitCodeUsage = 2
	// Some rows or calendars failed; the run finished and was recorded.
	exitCodePartial = 3

	exitCodeAuthRequired     = 4
	exitCodeNotFound         = 5
	exitCodePermissionDenied = 6
	exitCodeRateLimited      = 7
	exitCodeRetryable        = 8
	exitCodeConfig           = 10

	// 130 is the conventional "interrupted" exit code (SIGINT / Ctrl-C).
	exitCodeCancelled = 130
)

// stableExitCode wraps common/expected failure modes in ExitError so callers can
// branch on exit status without needing to parse human-oriented stderr.
func stableExitCode(err error) error {
	if err == nil {
		return nil
	}

	var ee *ExitError
	if errors.As(err, &ee) {
		return err
	}

	if errors.Is(err, context.Canceled) {
		return &ExitError{Code: exitCodeCancelled, Err: err}
	}

	var authErr *ghlauth.AuthRequiredError
	if errors.As(err, &authErr) {
		return &ExitError{Code: exitCodeAuthRequired, Err: err}
	}

	var credErr *config.CredentialsMissingError
	if errors.As(err, &credErr) {
		return &ExitError{Code: exitCodeConfig, Err: err}
	}

	if errors.Is(err, keyring.ErrKeyNotFound) {
		return &ExitError{Code: exitCodeAuthRequired, Err: err}
	}

	if errors.Is(err, store.ErrNotFound) {
		return &ExitError{Code: exitCodeNotFound, Err: err}
	}

	var be *ghlapi.BackendError
	if errors.As(err, &be) {
		if code := backendExitCode(be.Status); code != 1 {
			return &ExitError{Code: code, Err: err}
		}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &ExitError{Code: exitCodeRetryable, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ExitError{Code: exitCodeRetryable, Err: err}
	}

	return err
}

func backendExitCode(status int) int {
	switch {
	case status == http.StatusUnauthorized:
		return exitCodeAuthRequired
	case status == http.StatusForbidden:
		return exitCodePermissionDenied
	case status == http.StatusNotFound:
		return exitCodeNotFound
	case status == http.StatusTooManyRequests:
		return exitCodeRateLimited
	case status >= http.StatusInternalServerError:
		return exitCodeRetryable
	default:
		return 1
	}
}

type ExitCodesCmd struct{}

func (c *ExitCodesCmd) Run(ctx context.Context) error {
	// Always emit untransformed JSON, even if the caller enabled global JSON transforms.
	ctx = outfmt.WithJSONTransform(ctx, outfmt.JSONTransform{})

	codes := map[string]int{
		"ok":                0,
		"error":             1,
		"usage":             exitCodeUsage,
		"partial":           exitCodePartial,
		"auth_required":     exitCodeAuthRequired,
		"not_found":         exitCodeNotFound,
		"permission_denied": exitCodePermissionDenied,
		"rate_limited":      exitCodeRateLimited,
		"retryable":         exitCodeRetryable,
		"config":            exitCodeConfig,
		"cancelled":         exitCodeCancelled,
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"exit_codes": codes})
	}

	keys := make([]string, 0, len(codes))
	for k := range codes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sep := ": "
	if outfmt.IsPlain(ctx) {
		sep = "\t"
	}
	for _, k := range keys {
		_, _ = os.Stdout.WriteString(k + sep + strconv.Itoa(codes[k]) + "\n")
	}
	return nil
}
