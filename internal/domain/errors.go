package domain

import "errors"

var (
	// ErrProfileNotFound is returned by the profile store when a customer has
	// no health profile. The matching service treats this as an empty result,
	// not a failure.
	ErrProfileNotFound = errors.New("health profile not found")

	// ErrCacheMiss is returned when a cache tier has no entry for a key
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when a cache tier cannot be reached;
	// callers treat it the same as a miss
	ErrCacheUnavailable = errors.New("cache tier unavailable")

	// ErrStoreUnavailable is returned when a backing store read fails; it
	// propagates to the caller for standard HTTP error mapping
	ErrStoreUnavailable = errors.New("backing store unavailable")

	// ErrVendorNotFound is returned when a vendor has no catalog version row
	ErrVendorNotFound = errors.New("vendor not found")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrScorerUnavailable is returned by the remote scoring delegate when it
	// is disabled or unreachable; the in-process scorer is the fallback
	ErrScorerUnavailable = errors.New("remote scorer unavailable")
)
