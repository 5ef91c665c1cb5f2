package generation

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/makeasinger/quizgen/internal/client"
)

// ErrorType is the retry taxonomy for completion API failures
type ErrorType string

const (
	ErrorRateLimit      ErrorType = "rate_limit"
	ErrorQuotaExhausted ErrorType = "quota_exhausted"
	ErrorUnavailable    ErrorType = "unavailable"
	ErrorTimeout        ErrorType = "timeout"
	ErrorPermanent      ErrorType = "permanent"
	ErrorUnknown        ErrorType = "unknown"
)

// Retryable reports whether another attempt may succeed
func (t ErrorType) Retryable() bool {
	return t != ErrorPermanent
}

var (
	quotaMarkers       = []string{"quota", "resource_exhausted"}
	unavailableMarkers = []string{"unavailable", "overloaded", "connection refused", "connection reset"}
	timeoutMarkers     = []string{"timeout", "timed out", "deadline exceeded"}

	statusCodeRe = regexp.MustCompile(`\b(400|401|403|429|500|502|503|504)\b`)
)

// Classify maps a failure to an ErrorType. Checks run in priority order:
// quota, rate limit, unavailable, timeout, permanent, unknown.
func Classify(err error) (t ErrorType) {
	if err == nil {
		return ErrorUnknown
	}
	defer func() {
		// err.Error() on a foreign type can panic; classification must not
		if recover() != nil {
			t = ErrorUnknown
		}
	}()

	msg := strings.ToLower(err.Error())
	code := statusCode(err, msg)

	switch {
	case containsAny(msg, quotaMarkers):
		return ErrorQuotaExhausted
	case code == 429 || strings.Contains(msg, "too many requests"):
		return ErrorRateLimit
	case code == 500 || code == 502 || code == 503 || code == 504 || containsAny(msg, unavailableMarkers):
		return ErrorUnavailable
	case isTimeout(err) || containsAny(msg, timeoutMarkers):
		return ErrorTimeout
	case code == 400 || code == 401 || code == 403:
		return ErrorPermanent
	default:
		return ErrorUnknown
	}
}

func statusCode(err error, msg string) int {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	if m := statusCodeRe.FindString(msg); m != "" {
		code, _ := strconv.Atoi(m)
		return code
	}
	return 0
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
