package link

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyOpen is returned by a second Open on the same Manager.
	ErrAlreadyOpen = errors.New("link: already open")
	// ErrNoCharacteristics means the peripheral exposes nothing to subscribe to.
	ErrNoCharacteristics = errors.New("link: no notify characteristics")
)

// ConnectError reports that the initial connection could not be established
// within the connect timeout.
type ConnectError struct {
	Address  string
	Attempts int
	Err      error // last transport error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s failed after %d attempt(s): %v", e.Address, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
