package policy

import "errors"

var (
	// ErrPolicyNotFound is returned when a named policy is resolved during
	// configuration (Combine, MustGet) and does not exist. This is a fatal
	// configuration error; an unknown name passed to the authorization
	// service at request time is an ordinary deny instead.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrPolicyExists is returned when registering a policy under a name
	// that is already taken.
	ErrPolicyExists = errors.New("policy already registered")

	// ErrEmptyPolicyName is returned when registering a policy without a name.
	ErrEmptyPolicyName = errors.New("policy name is required")
)
