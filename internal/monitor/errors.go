package monitor

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrNoNotifier is returned when a cycle has changes to report but no notifier is configured.
var ErrNoNotifier = errors.New("no notifier configured")

// ErrArchiveExists is returned by archive sinks when the target name is already taken.
var ErrArchiveExists = errors.New("archive entry already exists")

// FetchErrorKind classifies why a fetch failed.
type FetchErrorKind int

// Fetch failure classes.
const (
	FetchErrorNetwork FetchErrorKind = iota
	FetchErrorTimeout
	FetchErrorHTTPStatus
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchErrorTimeout:
		return "Timeout"
	case FetchErrorHTTPStatus:
		return "HTTP"
	default:
		return "Network"
	}
}

// FetchError is the classified failure returned by Fetcher implementations.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchErrorTimeout:
		return "Timeout"
	case FetchErrorHTTPStatus:
		return "HTTP " + strconv.Itoa(e.StatusCode)
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "network error"
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewTimeoutError wraps err as a timeout failure.
func NewTimeoutError(err error) *FetchError {
	return &FetchError{Kind: FetchErrorTimeout, Err: err}
}

// NewHTTPStatusError reports a non-success HTTP status.
func NewHTTPStatusError(code int) *FetchError {
	return &FetchError{Kind: FetchErrorHTTPStatus, StatusCode: code, Err: fmt.Errorf("unexpected status %d", code)}
}

// NewNetworkError wraps err as a generic network failure.
func NewNetworkError(err error) *FetchError {
	return &FetchError{Kind: FetchErrorNetwork, Err: err}
}

// ClassifyFetchError turns any error into a Failure for the given target.
// Errors that are not a *FetchError are treated as network failures.
func ClassifyFetchError(target WatchTarget, err error) Failure {
	var fe *FetchError
	if errors.As(err, &fe) {
		return Failure{Target: target, Kind: fe.Kind, Detail: fe.Error()}
	}
	return Failure{Target: target, Kind: FetchErrorNetwork, Detail: err.Error()}
}
