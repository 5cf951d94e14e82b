package scraper

import (
	"errors"
	"fmt"
	"time"

	"go-lead-radar/internal/models"
)

// Kind classifies a source failure.
type Kind string

const (
	// KindTransient covers network errors, timeouts and rate limits; retryable.
	KindTransient Kind = "transient"
	// KindPermanent covers missing auth, removed endpoints and bad requests.
	KindPermanent Kind = "permanent"
	// KindUnavailable means the adapter cannot run at all in this deployment.
	KindUnavailable Kind = "unavailable"
)

// ErrBlocked marks pages that answered with a login wall or challenge.
var ErrBlocked = errors.New("blocked by login wall or challenge")

type SourceError struct {
	Source models.Source
	Kind   Kind
	Err    error
	// RetryAfter is the wait the source asked for on a rate limit, if any.
	RetryAfter time.Duration
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func Transient(source models.Source, err error) *SourceError {
	return &SourceError{Source: source, Kind: KindTransient, Err: err}
}

func Permanent(source models.Source, err error) *SourceError {
	return &SourceError{Source: source, Kind: KindPermanent, Err: err}
}

func Unavailable(source models.Source, reason string) *SourceError {
	return &SourceError{Source: source, Kind: KindUnavailable, Err: errors.New(reason)}
}

// KindOf returns the kind of a wrapped *SourceError, or KindPermanent for
// any other non-nil error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindPermanent
}

func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

func IsUnavailable(err error) bool {
	return KindOf(err) == KindUnavailable
}
