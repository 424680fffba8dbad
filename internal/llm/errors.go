package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingCredential is returned by NewClient when no API key is configured.
var ErrMissingCredential = errors.New("LLM API key not configured")

// Kind classifies a failed completion call.
type Kind int

const (
	UpstreamError Kind = iota
	RateLimited
	BillingRequired
	MalformedResponse
)

func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case BillingRequired:
		return "billing_required"
	case MalformedResponse:
		return "malformed_response"
	default:
		return "upstream_error"
	}
}

// Error is returned by every Client call that reaches the service. Message is
// safe to show to end users.
type Error struct {
	Kind    Kind
	Status  int // upstream HTTP status, 0 for transport failures
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the kind to the status returned to API callers.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case RateLimited:
		return http.StatusTooManyRequests
	case BillingRequired:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// KindOf reports the kind of a Client error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// User-facing messages.
const (
	msgRateLimited   = "Превышен лимит запросов. Попробуйте позже."
	msgBilling       = "Необходимо пополнить баланс AI."
	msgUnavailable   = "AI-сервис недоступен"
	msgMalformed     = "Не удалось разобрать ответ AI"
	msgUpstreamCoded = "Ошибка AI-сервиса (HTTP %d)"
)

// classifyStatus turns a non-success status into an Error.
func classifyStatus(status int, err error) *Error {
	switch status {
	case http.StatusTooManyRequests:
		return &Error{Kind: RateLimited, Status: status, Message: msgRateLimited, Err: err}
	case http.StatusPaymentRequired:
		return &Error{Kind: BillingRequired, Status: status, Message: msgBilling, Err: err}
	default:
		return &Error{Kind: UpstreamError, Status: status, Message: fmt.Sprintf(msgUpstreamCoded, status), Err: err}
	}
}

func malformed(err error) *Error {
	return &Error{Kind: MalformedResponse, Message: msgMalformed, Err: err}
}
