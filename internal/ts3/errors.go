package ts3

import (
	"errors"
	"fmt"
)

// ErrTimeout reports that no event arrived within the wait bound. It is the
// expected idle outcome, not a failure.
var ErrTimeout = errors.New("timeout waiting for event")

// ErrClosed reports use of a client whose connection has been closed locally.
var ErrClosed = errors.New("query connection closed")

// Query error ids the bridge cares about distinguishing.
const (
	errIDInvalidClientID  = 512
	errIDInvalidChannelID = 768
)

// QueryError is a non-ok result line from the server, or a transport failure
// wrapped into the same taxonomy (ID -1 with a message, since the server
// reserves 0 for ok).
type QueryError struct {
	ID  int
	Msg string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query error %d: %s", e.ID, e.Msg)
}

// IsNotFound reports whether err means the referenced client or channel no
// longer exists on the server. This is an expected race when resolving an
// event after its subject already left.
func IsNotFound(err error) bool {
	var qe *QueryError
	if !errors.As(err, &qe) {
		return false
	}
	return qe.ID == errIDInvalidClientID || qe.ID == errIDInvalidChannelID
}

func transportError(op string, err error) *QueryError {
	return &QueryError{ID: -1, Msg: fmt.Sprintf("%s: %v", op, err)}
}
