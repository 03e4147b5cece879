package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnrecognizedUnit is returned when a unit token is outside the known vocabulary
	ErrUnrecognizedUnit = errors.New("unrecognized unit")

	// ErrInvalidListing is returned when a listing violates price, quantity or unit invariants
	ErrInvalidListing = errors.New("invalid listing")

	// ErrNotFound is returned by collaborators when nothing matched.
	// The comparison engine itself reports this as Comparison.Found == false.
	ErrNotFound = errors.New("not found")

	// ErrCanceled is returned when a comparison was canceled before completion
	ErrCanceled = errors.New("comparison canceled")

	// ErrInvalidQuery is returned when a query names neither or both of listing and text
	ErrInvalidQuery = errors.New("invalid query")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")

	// ErrCatalogUnavailable is returned when the catalog provider cannot supply a snapshot
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")
)

// UnrecognizedUnitError carries the offending unit token
type UnrecognizedUnitError struct {
	Unit string
}

func (e *UnrecognizedUnitError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnrecognizedUnit, e.Unit)
}

func (e *UnrecognizedUnitError) Unwrap() error {
	return ErrUnrecognizedUnit
}

// InvalidListingError names the listing and the broken invariant
type InvalidListingError struct {
	ListingID ListingID
	Reason    string
}

func (e *InvalidListingError) Error() string {
	if e.ListingID == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidListing, e.Reason)
	}
	return fmt.Sprintf("%s %s: %s", ErrInvalidListing, e.ListingID, e.Reason)
}

func (e *InvalidListingError) Unwrap() error {
	return ErrInvalidListing
}

// canceledError satisfies errors.Is for both ErrCanceled and the context cause
type canceledError struct {
	cause error
}

// NewCanceledError wraps a context error so callers can match either sentinel
func NewCanceledError(cause error) error {
	return &canceledError{cause: cause}
}

func (e *canceledError) Error() string {
	return fmt.Sprintf("%s: %v", ErrCanceled, e.cause)
}

func (e *canceledError) Unwrap() []error {
	return []error{ErrCanceled, e.cause}
}
