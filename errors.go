package cwstatsd

import (
	"fmt"
	"strings"
)

// DecodeError is returned for a single line of a datagram which could not be decoded.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("error decoding line %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// TypeMismatchError is returned when a metric arrives with a different type to the
// bucket already established for its name.
type TypeMismatchError struct {
	Name     string
	Existing MetricType
	Received MetricType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("metric %s previously type %s, now type %s", e.Name, e.Existing, e.Received)
}

// PublishError collects the errors from publishing a single snapshot.
type PublishError struct {
	Publisher string
	Errs      []error
}

func (e *PublishError) Error() string {
	errs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		errs = append(errs, err.Error())
	}
	return fmt.Sprintf("[%s] %d errors occurred: %s", e.Publisher, len(e.Errs), strings.Join(errs, ", "))
}

// NewPublishError returns a *PublishError containing the non-nil errors, or nil if there are none.
func NewPublishError(publisher string, errs []error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	return &PublishError{
		Publisher: publisher,
		Errs:      nonNil,
	}
}
