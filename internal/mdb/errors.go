package mdb

import (
	"errors"
	"fmt"
)

// ErrSchemaInconsistency is reported when a schema cannot be turned into a
// Database. It is never returned while decoding.
var ErrSchemaInconsistency = errors.New("schema inconsistency")

// InconsistencyError names the schema item at fault.
type InconsistencyError struct {
	Subject string
	Reason  string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrSchemaInconsistency, e.Subject, e.Reason)
}

func (e *InconsistencyError) Unwrap() error { return ErrSchemaInconsistency }

type problems []error

func (p *problems) add(subject, format string, args ...any) {
	*p = append(*p, &InconsistencyError{Subject: subject, Reason: fmt.Sprintf(format, args...)})
}

func (p problems) err() error { return errors.Join(p...) }
