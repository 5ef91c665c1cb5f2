package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/makeasinger/quizgen/internal/client"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o wait exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type panicErr struct{}

func (*panicErr) Error() string { panic("boom") }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorUnknown},
		{"quota message", errors.New("Resource_Exhausted: daily quota reached"), ErrorQuotaExhausted},
		{"quota beats 429", &client.APIError{StatusCode: 429, Message: "quota exceeded"}, ErrorQuotaExhausted},
		{"api 429", &client.APIError{StatusCode: 429, Message: "slow down"}, ErrorRateLimit},
		{"message 429", errors.New("HTTP 429 from upstream"), ErrorRateLimit},
		{"too many requests", errors.New("Too Many Requests"), ErrorRateLimit},
		{"api 503", &client.APIError{StatusCode: 503, Message: "try later"}, ErrorUnavailable},
		{"overloaded", errors.New("model is overloaded"), ErrorUnavailable},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorUnavailable},
		{"deadline", context.DeadlineExceeded, ErrorTimeout},
		{"wrapped deadline", fmt.Errorf("request: %w", context.DeadlineExceeded), ErrorTimeout},
		{"net timeout", timeoutErr{}, ErrorTimeout},
		{"timed out", errors.New("read timed out"), ErrorTimeout},
		{"api 400", &client.APIError{StatusCode: 400, Message: "bad request"}, ErrorPermanent},
		{"api 401", &client.APIError{StatusCode: 401, Message: "invalid key"}, ErrorPermanent},
		{"message 403", errors.New("status 403 forbidden"), ErrorPermanent},
		{"other", errors.New("something odd"), ErrorUnknown},
		{"panicking error", &panicErr{}, ErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
			if again := Classify(tt.err); again != got {
				t.Errorf("Classify() not deterministic: %s then %s", got, again)
			}
		})
	}
}

func TestErrorType_Retryable(t *testing.T) {
	if ErrorPermanent.Retryable() {
		t.Error("permanent errors must not be retryable")
	}
	for _, et := range []ErrorType{ErrorRateLimit, ErrorQuotaExhausted, ErrorUnavailable, ErrorTimeout, ErrorUnknown} {
		if !et.Retryable() {
			t.Errorf("%s should be retryable", et)
		}
	}
}
