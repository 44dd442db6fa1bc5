package comm

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrDropped indicates the outbound ring has no room for the packet.
	ErrDropped = errors.New("packet dropped")
	// ErrClosed indicates the Conn is closed. It matches io.EOF, as a closed
	// Conn is the end of the packet source.
	ErrClosed error = closedError{}
)

type closedError struct{}

func (closedError) Error() string { return "closed" }

func (closedError) Is(target error) bool {
	return target == io.EOF
}

// TooLargeError is returned for a packet which never fits the ring.
type TooLargeError struct {
	Size int
	Max  int
}

// Error implements error.
func (e *TooLargeError) Error() string {
	return fmt.Sprintf("packet of %d bytes exceeds %d", e.Size, e.Max)
}
