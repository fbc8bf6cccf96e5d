package delivery

import "fmt"

/* Status represents the current state of a delivery
 * Follows the lifecycle: Pending -> Delivering -> Success, or
 * Pending -> Delivering -> Retry -> Pending -> ... -> Abandoned
 */
type Status int

const (
	Pending Status = iota + 1
	Delivering
	Success
	Retry
	Abandoned
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Delivering:
		return "delivering"
	case Success:
		return "success"
	case Retry:
		return "retry"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string
func NewStatus(str string) Status {
	switch str {
	case "pending":
		return Pending
	case "delivering":
		return Delivering
	case "success":
		return Success
	case "retry":
		return Retry
	case "abandoned":
		return Abandoned
	default:
		return Pending
	}
}

// MarshalText makes Status serialize as its string form
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the string form of a Status
func (s *Status) UnmarshalText(text []byte) error {
	*s = NewStatus(string(text))
	return nil
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Pending || s > Abandoned {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s Status) IsFinal() bool {
	return s == Success || s == Abandoned
}
