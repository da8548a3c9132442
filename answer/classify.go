package answer

import (
	"errors"
	"strings"
)

// GenerationErrorClass groups language model failures by what the user can do about them.
type GenerationErrorClass string

const (
	ClassRateLimit GenerationErrorClass = "rate_limit"
	ClassAuth      GenerationErrorClass = "auth"
	ClassOther     GenerationErrorClass = "other"
)

// statusCoder is implemented by client errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

var (
	rateLimitMarkers = []string{"429", "quota", "rate limit", "ratelimit", "resource exhausted", "resource_exhausted", "too many requests"}
	authMarkers      = []string{"401", "403", "api key", "api_key", "apikey", "unauthorized", "permission denied", "permission_denied", "invalid_api_key"}
)

// ClassifyGenerationError maps a generation error to its class.
// Status codes are used when the error exposes one; otherwise the message is matched.
func ClassifyGenerationError(err error) GenerationErrorClass {
	if err == nil {
		return ClassOther
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch sc.StatusCode() {
		case 429:
			return ClassRateLimit
		case 401, 403:
			return ClassAuth
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return ClassRateLimit
		}
	}
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return ClassAuth
		}
	}
	return ClassOther
}
