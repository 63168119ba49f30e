package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound     = errors.New("resource not found")
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Monitoring pipeline errors. None of these may abort a caller's request.
	ErrStoreUnavailable = errors.New("counter store unavailable")
	ErrChannelDelivery  = errors.New("notification channel delivery failed")
	ErrProbeTimeout     = errors.New("health probe timed out")
	ErrUnknownMetric    = errors.New("unknown metric")
)
