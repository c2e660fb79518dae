package ledger

import "errors"

var (
	// ErrUnknownDriver is returned when the configured ledger driver is not supported
	ErrUnknownDriver = errors.New("ledger: unknown driver")

	// ErrEmptyCartToken is returned when upserting a checkout without a cart token
	ErrEmptyCartToken = errors.New("ledger: checkout has no cart token")

	// ErrEmptyID is returned for empty processed IDs or lock resource IDs
	ErrEmptyID = errors.New("ledger: empty id")

	// ErrEmptyOwner is returned when acquiring a lock without an owner token
	ErrEmptyOwner = errors.New("ledger: empty lock owner")
)
