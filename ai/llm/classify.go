package llm

import (
	"context"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/internal/httpclient"
)

// maxBodyInError bounds how much of a service reply ends up in an error.
const maxBodyInError = 300

// ClassifyStatus turns a non-200 reply into an error marked with its
// taxonomy category. 429 and bodies mentioning a rate limit are
// ErrRateLimited. 401, 403 and 404 mean a bad key, a forbidden model or a
// wrong endpoint and are ErrConfig. Every other status is
// ErrTransientService, since a misbehaving gateway is indistinguishable
// from a transient outage.
func ClassifyStatus(provider string, status int, body []byte) error {
	text := strings.TrimSpace(string(body))
	if len(text) > maxBodyInError {
		text = text[:maxBodyInError] + "..."
	}
	err := errors.Newf("%s returned status %d: %s", provider, status, text)

	if status == http.StatusTooManyRequests || mentionsRateLimit(text) {
		return errors.Mark(err, errors.ErrRateLimited)
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return errors.Mark(err, errors.ErrConfig)
	}
	return errors.Mark(err, errors.ErrTransientService)
}

// ClassifyTransport marks an error from sending the request. Blocked
// destinations keep their config mark; everything else is transient,
// including timeouts.
func ClassifyTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, httpclient.ErrBlocked) {
		return errors.Wrapf(err, "%s request refused", provider)
	}
	wrapped := errors.Wrapf(err, "%s request failed", provider)
	if mentionsRateLimit(err.Error()) {
		return errors.Mark(wrapped, errors.ErrRateLimited)
	}
	return errors.Mark(wrapped, errors.ErrTransientService)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ETIMEDOUT)
}

func mentionsRateLimit(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "rate limit") || strings.Contains(s, "rate_limit") ||
		strings.Contains(s, "too many requests")
}
