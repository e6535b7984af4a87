package llm

import (
	"errors"
	"fmt"
)

// CollaboratorError reports a failed AI pairing call: transport errors,
// provider errors and responses that do not parse or validate.
type CollaboratorError struct {
	Provider string
	// Content is the raw model output, when there was one.
	Content string
	Err     error
}

func (e *CollaboratorError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("AI collaborator: %v", e.Err)
	}
	return fmt.Sprintf("AI collaborator (%s): %v", e.Provider, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

func withProvider(err error, provider string) error {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		ce.Provider = provider
		return ce
	}
	return &CollaboratorError{Provider: provider, Err: err}
}
