package accountmodel

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRow reports a row index that is out of range, or of the
	// wrong kind (draft vs real) for the requested operation.
	ErrInvalidRow = errors.New("invalid row")

	// ErrUnknownIdentity reports a lookup for an identity the cache
	// does not hold.
	ErrUnknownIdentity = errors.New("unknown account identity")

	// ErrValueType reports a value whose type does not match the field
	// being written.
	ErrValueType = errors.New("wrong value type for field")

	// ErrReadOnlyField reports a write to a field the service does not
	// accept mutations for.
	ErrReadOnlyField = errors.New("field is read-only")
)

// RemoteError wraps a failed call against the accounts service. Local
// state is left unchanged when one occurs.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("accounts service: %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRemoteError reports whether err originated from a remote call
// rather than local validation or row addressing.
func IsRemoteError(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr)
}
