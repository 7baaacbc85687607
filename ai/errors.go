package ai

import "errors"

var (
	// ErrVisionUnavailable is returned when an image arrives but no vision
	// backend is configured.
	ErrVisionUnavailable = errors.New("vision analysis unavailable")

	// ErrEmptyResponse is returned when a model produces no choices.
	ErrEmptyResponse = errors.New("model returned no response")
)
