package recovery

import "errors"

var (
	// ErrCheckoutIncomplete is returned when a checkout lacks the data needed to act on it
	ErrCheckoutIncomplete = errors.New("recovery: checkout is incomplete")

	// ErrIncompleteEvent is returned when an order or fulfillment event lacks its ID
	ErrIncompleteEvent = errors.New("recovery: event is missing required fields")

	// ErrMissingContact is returned when a checkout has neither a usable phone nor an email
	ErrMissingContact = errors.New("recovery: checkout has no contact information")

	// ErrCollaboratorUnavailable is returned when an external service cannot be reached
	ErrCollaboratorUnavailable = errors.New("recovery: collaborator unavailable")

	// ErrCollaboratorRequestFailed is returned when an external service rejects a request
	ErrCollaboratorRequestFailed = errors.New("recovery: collaborator request failed")

	// ErrInvalidResponse is returned when an external service answers with an unexpected payload
	ErrInvalidResponse = errors.New("recovery: invalid collaborator response")

	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("recovery: not found")

	// ErrNoLocation is returned when the store has no inventory location
	ErrNoLocation = errors.New("recovery: no inventory location configured")

	// ErrUnknownNotification is returned for notification jobs of an unknown kind
	ErrUnknownNotification = errors.New("recovery: unknown notification kind")
)
