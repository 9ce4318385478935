package convert

import "errors"

// Coercion failures surfaced to GraphQL clients.
var (
	ErrInvalidJSON           = errors.New("invalid json value")
	ErrInvalidEnum           = errors.New("invalid enum value")
	ErrInvalidNetworkAddress = errors.New("invalid network address")
	ErrInvalidUUID           = errors.New("invalid uuid")
	ErrInvalidTimestamp      = errors.New("invalid timestamp")
)
