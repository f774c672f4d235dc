package feed

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned by RunOnce while another run holds the producer.
var ErrRunInProgress = errors.New("feed: run already in progress")

// UpstreamFetchError aborts a run: nothing is upserted, published or persisted.
type UpstreamFetchError struct {
	Cause error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("feed: upstream fetch failed: %v", e.Cause)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Cause }
