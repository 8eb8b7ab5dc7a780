package state

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrMissingCredential = errors.New("no active API key for provider")
)
