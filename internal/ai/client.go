package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Schema describes the JSON object the model must return.
type Schema struct {
	Name       string
	Definition map[string]any
}

// Client is the interface for AI providers
type Client interface {
	// Complete sends prompt and returns the model's JSON object. Failures are
	// *ModelError values.
	Complete(ctx context.Context, prompt string, schema Schema) (json.RawMessage, error)

	// Model names the model that answers, recorded on every analysis.
	Model() string
}

type ErrorKind string

const (
	// KindTransient: timeouts, rate limits, 5xx. Worth retrying.
	KindTransient ErrorKind = "transient"
	// KindPermanent: bad key, unknown model, rejected request.
	KindPermanent ErrorKind = "permanent"
	// KindMalformed: the call succeeded but the answer is unusable.
	KindMalformed ErrorKind = "malformed"
)

type ModelError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ModelError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("model %s error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("model %s error: %v", e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a wrapped *ModelError; other errors count as permanent.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var me *ModelError
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindPermanent
}

func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

func Malformed(err error) *ModelError {
	return &ModelError{Kind: KindMalformed, Err: err}
}
