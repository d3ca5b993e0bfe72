package taxhub

import (
	"context"
	"errors"
	"net/http"

	"github.com/ourstudio-se/taxhub-chat/agent"
	"github.com/ourstudio-se/taxhub-chat/history"
)

var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration indicates the application was misconfigured.
	ErrConfiguration = errors.New("invalid configuration")
)

// Error codes returned in API error bodies.
const (
	CodeInvalidInput         = "invalid_input"
	CodeNotFound             = "not_found"
	CodeConfirmationRequired = "confirmation_required"
	CodeBusy                 = "busy"
	CodeClosed               = "closed"
	CodeOrchestratorFailed   = "orchestrator_failed"
	CodeCorruptStore         = "corrupt_store"
	CodeTimeout              = "timeout"
	CodeRateLimited          = "rate_limited"
	CodeInternal             = "internal"
)

// Error is the JSON body of every API error.
type Error struct {
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewConfigurationError wraps ErrConfiguration with a message.
func NewConfigurationError(message string) error {
	return &configError{message: message}
}

type configError struct {
	message string
}

func (e *configError) Error() string { return "configuration: " + e.message }
func (e *configError) Unwrap() error { return ErrConfiguration }

// errorStatus maps a domain error to its HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, agent.ErrEmptyPrompt),
		errors.Is(err, agent.ErrMissingSession):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, history.ErrRecordNotFound),
		errors.Is(err, agent.ErrUnknownAgent):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, history.ErrConfirmationRequired):
		return http.StatusConflict, CodeConfirmationRequired
	case errors.Is(err, agent.ErrBusy):
		return http.StatusConflict, CodeBusy
	case errors.Is(err, agent.ErrClosed):
		return http.StatusGone, CodeClosed
	case errors.Is(err, agent.ErrResponder),
		errors.Is(err, agent.ErrNoRelay):
		return http.StatusBadGateway, CodeOrchestratorFailed
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, history.ErrCorruptStore):
		return http.StatusInternalServerError, CodeCorruptStore
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
