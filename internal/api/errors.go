package api

import "fmt"

// ErrorKind classifies every failure surfaced over the signalling channel
// and the recording endpoints. Kinds are part of the wire contract.
type ErrorKind string

const (
	KindInvalidArgument    = ErrorKind("invalid-argument")
	KindNotFound           = ErrorKind("not-found")
	KindStateViolation     = ErrorKind("state-violation")
	KindModeratorForbidden = ErrorKind("moderator-forbidden")
	KindUnauthorized       = ErrorKind("unauthorized")
	KindLocked             = ErrorKind("locked")
	KindLobbyPending       = ErrorKind("lobby-pending")
	KindBanned             = ErrorKind("banned")
	KindRoomFull           = ErrorKind("room-full")
	KindWorkerUnavailable  = ErrorKind("worker-unavailable")
	KindQuotaExceeded      = ErrorKind("quota-exceeded")
	KindIOError            = ErrorKind("io-error")
)

type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsError coerces any error into the wire taxonomy. Unclassified errors are
// reported as worker-unavailable since they originate from the media plane
// or IO below us.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if typed, ok := err.(*Error); ok {
		return typed
	}
	return &Error{Kind: KindWorkerUnavailable, Message: err.Error()}
}
