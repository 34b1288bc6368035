// Package status defines the uniform status taxonomy shared by every
// transport: the terminal codes carried on the wire in a reply envelope,
// and the structured error type surfaced to callers on the client side.
package status

import "fmt"

// Code is the terminal status enum carried in a reply envelope's status
// byte. Values 5-7 are reserved for long-lived server states reported by a
// CRM; call replies only ever use 1-4, and occasionally 5 for backpressure.
type Code uint8

const (
	Unknown         Code = 0
	Success         Code = 1
	ErrorInvalid    Code = 2
	ErrorTimeout    Code = 3
	ErrorUnavailable Code = 4
	Busy            Code = 5
	Idle            Code = 6
	Pending         Code = 7
)

func (c Code) String() string {
	switch c {
	case Unknown:
		return "UNKNOWN"
	case Success:
		return "SUCCESS"
	case ErrorInvalid:
		return "ERROR_INVALID"
	case ErrorTimeout:
		return "ERROR_TIMEOUT"
	case ErrorUnavailable:
		return "ERROR_UNAVAILABLE"
	case Busy:
		return "BUSY"
	case Idle:
		return "IDLE"
	case Pending:
		return "PENDING"
	default:
		return fmt.Sprintf("CODE(%d)", uint8(c))
	}
}

// Error is the structured failure every client-side call returns on a
// non-success status. It is never constructed with Success.
type Error struct {
	Status     Code
	Message    string
	Address    string
	MethodName string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ccrpc: %s calling %s@%s: %s", e.Status, e.MethodName, e.Address, e.Message)
}

// New builds a structured error for the given status.
func New(code Code, address, method, message string) *Error {
	return &Error{Status: code, Message: message, Address: address, MethodName: method}
}

// Invalid is a convenience constructor for the most common failure kind.
func Invalid(address, method, message string) *Error {
	return New(ErrorInvalid, address, method, message)
}
