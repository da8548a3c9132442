package ai

import "errors"

var (
	// ErrNoCredentials is returned when a generator is requested without an API key.
	ErrNoCredentials = errors.New("language model credentials not configured")

	// ErrEmptyCompletion is returned when the model answers with no choices.
	ErrEmptyCompletion = errors.New("language model returned no completion")
)
