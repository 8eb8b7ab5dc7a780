package providers

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKey         = errors.New("invalid api key")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrRateLimited        = errors.New("rate limited")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrModelNotFound      = errors.New("model not found")
	ErrPayloadTooLarge    = errors.New("request too large")
	ErrBilling            = errors.New("billing problem")
	ErrEmptyResponse      = errors.New("empty response")
)

// APIError is an upstream failure. Kind, when set, is one of the sentinels
// above and is matched by errors.Is.
type APIError struct {
	Provider string
	Status   int
	Code     string
	Message  string
	Kind     error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s (code %s)", msg, e.Code)
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

func (e *APIError) Unwrap() error { return e.Kind }

// Describe renders err as a short message fit for showing to the owner.
func Describe(err error) string {
	switch {
	case errors.Is(err, ErrInvalidKey):
		return "The API key was rejected. Check it in the key settings."
	case errors.Is(err, ErrInsufficientCredit):
		return "The account has run out of credit."
	case errors.Is(err, ErrQuotaExceeded):
		return "The API quota is exhausted. Try again later."
	case errors.Is(err, ErrRateLimited):
		return "Too many requests. Try again later."
	case errors.Is(err, ErrBilling):
		return "The provider reported a billing problem on this account."
	case errors.Is(err, ErrPayloadTooLarge):
		return "The prompt or code is too large for this model."
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if errors.Is(err, ErrModelNotFound) {
			return "Model not found or unavailable: " + apiErr.Message
		}
		return apiErr.Error()
	}
	return err.Error()
}
