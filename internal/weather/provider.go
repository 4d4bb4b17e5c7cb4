package weather

import (
	"context"
	"errors"
	"time"

	"github.com/i474232898/always-on-dashboard/internal/location"
)

var (
	// ErrPermissionDenied is returned by Refresh when location permission is absent.
	ErrPermissionDenied = errors.New("location permission not granted")

	// ErrCredentialMissing is reported before any request when no API key is available.
	ErrCredentialMissing = errors.New("missing weather API key")
)

// FetchErrorKind classifies fetch failures.
type FetchErrorKind int

const (
	KindNetwork FetchErrorKind = iota
	KindDecode
	KindMissingCredential
)

func (k FetchErrorKind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindMissingCredential:
		return "missing_credential"
	default:
		return "network"
	}
}

// FetchError is returned by Fetcher implementations.
type FetchError struct {
	Kind FetchErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps err with the given kind.
func NewFetchError(kind FetchErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

// Fetcher abstracts a remote weather service. A fetch has no partial
// results: it either returns a full snapshot in the requested units or fails.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, lat, lon float64, units UnitSystem, credential string) (Snapshot, error)
}

// LocationAcquirer produces the coordinates a refresh fetches weather for.
type LocationAcquirer interface {
	Acquire(ctx context.Context, highAccuracy bool) (location.GeoFix, error)
}

// Scheduler re-arms a single periodic task. Every replaces any previously armed task.
type Scheduler interface {
	Every(interval time.Duration, task func()) error
	Cancel()
}
