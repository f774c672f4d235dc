package auth

import "fmt"

// Kind classifies why a handshake was rejected.
type Kind int

const (
	KindMissingToken Kind = iota + 1
	KindInvalidToken
	KindUnknownUser
)

// Websocket close codes sent when authentication fails.
const (
	CloseMissingToken = 4001
	CloseInvalidToken = 4002
	CloseUnknownUser  = 4003
)

func (k Kind) String() string {
	switch k {
	case KindMissingToken:
		return "missing_token"
	case KindInvalidToken:
		return "invalid_token"
	case KindUnknownUser:
		return "unknown_user"
	default:
		return "unknown"
	}
}

func (k Kind) CloseCode() int {
	switch k {
	case KindMissingToken:
		return CloseMissingToken
	case KindUnknownUser:
		return CloseUnknownUser
	default:
		return CloseInvalidToken
	}
}

// Error is an authentication failure. Compare with errors.Is against the sentinels.
type Error struct {
	Kind  Kind
	Cause error
}

var (
	ErrMissingToken = &Error{Kind: KindMissingToken}
	ErrInvalidToken = &Error{Kind: KindInvalidToken}
	ErrUnknownUser  = &Error{Kind: KindUnknownUser}
)

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth: %s: %v", e.Kind, e.Cause)
	}
	return "auth: " + e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
