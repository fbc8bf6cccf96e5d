package delivery

import "fmt"

/* ErrorType classifies why an attempt failed. Classification drives
 * retry decisions and shows up verbatim in the delivery log.
 */
type ErrorType int

const (
	ErrTimeout ErrorType = iota + 1
	ErrConnection
	ErrDNS
	ErrHTTP
	ErrRateLimit
	ErrServer
	ErrClient
)

// String returns the string representation of the error type
func (e ErrorType) String() string {
	switch e {
	case ErrTimeout:
		return "timeout"
	case ErrConnection:
		return "connection_error"
	case ErrDNS:
		return "dns_error"
	case ErrHTTP:
		return "http_error"
	case ErrRateLimit:
		return "rate_limit_error"
	case ErrServer:
		return "server_error"
	case ErrClient:
		return "client_error"
	default:
		return "unknown"
	}
}

// NewErrorType creates an ErrorType from a string
func NewErrorType(s string) ErrorType {
	switch s {
	case "timeout":
		return ErrTimeout
	case "connection_error":
		return ErrConnection
	case "dns_error":
		return ErrDNS
	case "http_error":
		return ErrHTTP
	case "rate_limit_error":
		return ErrRateLimit
	case "server_error":
		return ErrServer
	case "client_error":
		return ErrClient
	default:
		return ErrHTTP
	}
}

// ErrorDetail is the recorded failure information for one attempt
type ErrorDetail struct {
	Message string    `json:"message"`
	Type    ErrorType `json:"type"`
}

// MarshalText makes ErrorType serialize as its string form
func (e ErrorType) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText parses the string form of an ErrorType
func (e *ErrorType) UnmarshalText(text []byte) error {
	*e = NewErrorType(string(text))
	return nil
}

// Error implements the error interface for log-friendly formatting
func (d ErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", d.Type, d.Message)
}
