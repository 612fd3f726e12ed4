package enasolar

import (
	"fmt"
)

// ConnectError is returned when the inverter could not be reached at all
// (DNS, refused connection, timeout).
type ConnectError struct {
	Host string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("enasolar: cannot connect to %s: %v", e.Host, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ResponseError is returned when the inverter answered but the answer was
// not usable: unexpected status code or a page that could not be parsed.
type ResponseError struct {
	URL        string
	StatusCode int
	Reason     string
}

func (e *ResponseError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("enasolar: unexpected response from %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("enasolar: unexpected response from %s: %s", e.URL, e.Reason)
}
