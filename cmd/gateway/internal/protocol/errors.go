package protocol

import "fmt"

const (
	CodeUnknownAction  = "unknown_action"
	CodeInvalidMessage = "invalid_message"
	CodeRateLimited    = "rate_limited"
)

// Error is a recoverable protocol violation reported back to the client.
type Error struct {
	Code  string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol error %s: %v", e.Code, e.Cause)
	}
	return "protocol error " + e.Code
}

func (e *Error) Unwrap() error { return e.Cause }

// Reply renders the error as the payload sent to the client.
func (e *Error) Reply() ErrorReply {
	return ErrorReply{Error: e.Code}
}
