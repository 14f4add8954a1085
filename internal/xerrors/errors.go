// Package xerrors carries the error taxonomy every request-servicing
// path maps onto: validation, auth, and the few specific conditions a
// user-facing response distinguishes. Wrap with fmt.Errorf("%w: ...")
// for context and unwrap with errors.Is at the request boundary.
package xerrors

import "errors"

var (
	// ErrValidation marks a malformed request or an out-of-range field.
	ErrValidation = errors.New("validation error")

	// ErrAuth marks bad credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrUnknownMarket marks a symbol absent from the registry.
	ErrUnknownMarket = errors.New("unknown market")

	// ErrNotPending marks a cancel target that is not resting
	// (never existed, already COMPLETE, or already CANCELLED).
	ErrNotPending = errors.New("order not pending")

	// ErrNotOwner marks a cancel attempted by a non-owning user.
	ErrNotOwner = errors.New("not the order owner")

	// ErrUsernameTaken marks account creation for an existing username.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrServiceUnavailable marks a persistence-fatal halt: the buffer
	// stopped accepting new events after exhausting its retry budget.
	ErrServiceUnavailable = errors.New("service unavailable")
)
