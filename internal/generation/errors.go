package generation

import "fmt"

// InvokeError reports a failed generation call. It is fatal to the job.
type InvokeError struct {
	StatusCode int // 0 when no HTTP response was received
	Message    string
	Err        error
}

func (e *InvokeError) Error() string {
	prefix := "generation failed"
	if e.StatusCode != 0 {
		prefix = fmt.Sprintf("generation failed with HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *InvokeError) Unwrap() error { return e.Err }
