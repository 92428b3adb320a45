package contract

import (
	"errors"
	"fmt"
)

// ErrUsage marks invalid command-line input. It is always detected before
// any store access.
var ErrUsage = errors.New("usage error")

// UsageErrorf returns an error wrapping ErrUsage.
func UsageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// IsUsage reports whether err is a usage error.
func IsUsage(err error) bool {
	return errors.Is(err, ErrUsage)
}
