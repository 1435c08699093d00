package llm

import "errors"

var (
	ErrUnauthorized  = errors.New("llm unauthorized")
	ErrUnavailable   = errors.New("llm unavailable")
	ErrEgressBlocked = errors.New("egress blocked")
	ErrRateLimited   = errors.New("llm rate limited")

	// ErrTransport marks network and non-2xx HTTP failures. Only these are retried.
	ErrTransport = errors.New("llm transport failure")
	// ErrRetriesExhausted wraps the last transport failure after the final attempt.
	ErrRetriesExhausted = errors.New("llm retries exhausted")
	// ErrUnexpectedShape is returned when a 2xx body lacks candidates[0].content.parts[0].text.
	ErrUnexpectedShape = errors.New("unexpected response structure")
	// ErrMalformedPayload is returned when the generated text is not valid JSON.
	ErrMalformedPayload = errors.New("malformed generation payload")
)

// StatusError records a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
	Kind       error
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "HTTP error! status: " + e.Status
	}
	return "HTTP error! status: " + e.Status + ", message: " + e.Body
}

func (e *StatusError) Unwrap() []error {
	if e.Kind == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Kind}
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEgressBlocked) || errors.Is(err, ErrUnexpectedShape) || errors.Is(err, ErrMalformedPayload) {
		return false
	}
	return errors.Is(err, ErrTransport)
}
