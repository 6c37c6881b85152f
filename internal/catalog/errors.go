package catalog

import "fmt"

// FetchError reports a failed catalog read. It is fatal to the job: a bad or
// revoked token will not recover across redeliveries.
type FetchError struct {
	StatusCode int // 0 when no HTTP response was received
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FetchError) Unwrap() error { return e.Err }
