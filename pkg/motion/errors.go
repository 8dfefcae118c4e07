package motion

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ConfigurationError is returned when a drivetrain cannot be built. It is
// only ever produced at construction time.
type ConfigurationError struct {
	Reason string
}

func (err ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", err.Reason)
}

func (err ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// InvalidArgumentError is returned synchronously to a caller that passed a
// value the chassis or pilot cannot act on.
type InvalidArgumentError struct {
	Arg    string
	Value  float64
	Reason string
}

func (err InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s=%v: %s", err.Arg, err.Value, err.Reason)
}

func (err InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

func Configuration(format string, args ...interface{}) error {
	return errors.WithStack(ConfigurationError{Reason: fmt.Sprintf(format, args...)})
}

func InvalidArgument(arg string, value float64, reason string) error {
	return errors.WithStack(InvalidArgumentError{Arg: arg, Value: value, Reason: reason})
}
