package api

import (
	"errors"
	"fmt"
	"net/url"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: HTTP error! status: %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: HTTP error! status: %d", e.Op, e.StatusCode)
}

// TransportError represents a failure to reach the backend at all (DNS,
// refused connection, timeout).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func redactURLUserInfo(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}
