package bilifetch

import (
	"errors"
	"fmt"
)

// Authentication errors.
var (
	ErrLoginTimeout        = errors.New("login challenge expired before confirmation")
	ErrInvalidCookieFormat = errors.New("cookie string is missing required keys")
	ErrAuthExpired         = errors.New("authentication rejected by the platform")
)

// Resolution errors.
var (
	ErrInvalidIdentifier  = errors.New("not a recognisable video identifier")
	ErrNotFound           = errors.New("no such video")
	ErrGeoOrAgeRestricted = errors.New("video is geo- or age-restricted")
	ErrTransientFetch     = errors.New("transient fetch error")
)

// Negotiation errors.
var (
	ErrQualityUnavailable = errors.New("requested quality not available")
	ErrNoEligibleStream   = errors.New("no eligible stream at current tier")
	ErrEmptyCatalog       = errors.New("part has no stream options")
)

// Transfer errors.
var (
	ErrDownloadExhausted = errors.New("download attempts exhausted")
	ErrMuxFailed         = errors.New("muxer exited with an error")
	ErrMuxerNotFound     = errors.New("muxer executable not found")
)

// NoEligibleStreamError reports which stream kind was left with no options
// after tier filtering, as opposed to ErrEmptyCatalog where the platform
// supplied none to begin with.
type NoEligibleStreamError struct {
	Kind FormatKind
}

func (e *NoEligibleStreamError) Error() string {
	return fmt.Sprintf("no eligible %s stream at current tier", e.Kind)
}

func (e *NoEligibleStreamError) Unwrap() error { return ErrNoEligibleStream }

// DownloadExhaustedError carries the last underlying cause once the retry
// budget is spent.
type DownloadExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *DownloadExhaustedError) Error() string {
	return fmt.Sprintf("download failed after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *DownloadExhaustedError) Unwrap() error { return ErrDownloadExhausted }

// APIError is a non-zero return code from the platform API that doesn't map
// to a more specific error.
type APIError struct {
	Code    int64
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}
