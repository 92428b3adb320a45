package collector

import (
	"errors"
	"fmt"

	"github.com/huangsam/codeaudit/schema"
)

// ErrorKind separates bad local setup from upstream failures.
type ErrorKind string

// Collector error kinds.
const (
	KindConfig   ErrorKind = "config"
	KindUpstream ErrorKind = "upstream"
)

// CollectorError is a tolerated failure of one collector. The audit logs it
// and continues with the next source.
type CollectorError struct {
	Source schema.Source
	Kind   ErrorKind
	Err    error
}

func (e *CollectorError) Error() string {
	return fmt.Sprintf("%s collector %s error: %v", e.Source, e.Kind, e.Err)
}

func (e *CollectorError) Unwrap() error {
	return e.Err
}

// AsCollectorError reports whether err carries a CollectorError.
func AsCollectorError(err error) (*CollectorError, bool) {
	var ce *CollectorError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func configError(source schema.Source, format string, args ...any) error {
	return &CollectorError{Source: source, Kind: KindConfig, Err: fmt.Errorf(format, args...)}
}

func upstreamError(source schema.Source, err error) error {
	return &CollectorError{Source: source, Kind: KindUpstream, Err: err}
}
