package protocol

import (
	"encoding/json"
	"sort"
)

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

const (
	StatusSubscribed   = "subscribed"
	StatusUnsubscribed = "unsubscribed"
)

// Request is a client → server message.
type Request struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// Ack echoes the session's full subscription set after a change.
type Ack struct {
	Status  string   `json:"status"`
	Symbols []string `json:"symbols"`
}

// ErrorReply is sent for non-fatal protocol errors; the connection stays open.
type ErrorReply struct {
	Error string `json:"error"`
}

// DecodeRequest parses an inbound text frame.
func DecodeRequest(b []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(b, &req); err != nil {
		return Request{}, &Error{Code: CodeInvalidMessage, Cause: err}
	}
	return req, nil
}

// NewAck builds an ack with the set rendered as a sorted, never-null list.
func NewAck(status string, set map[string]struct{}) Ack {
	symbols := make([]string, 0, len(set))
	for s := range set {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return Ack{Status: status, Symbols: symbols}
}
