package table

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks failures caused by required columns that cannot
	// be resolved. Callers must not write anything when they see it.
	ErrConfiguration = errors.New("configuration error")

	// ErrMissingSource marks a named table that does not exist.
	ErrMissingSource = errors.New("missing source table")

	// ErrAmbiguousColumn is wrapped when a column name matches more than one
	// header under case-insensitive lookup.
	ErrAmbiguousColumn = errors.New("ambiguous column")
)

// ConfigurationError reports required columns absent from a table's header.
type ConfigurationError struct {
	Table   string
	Missing []string
	Reason  error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Table != "" {
		fmt.Fprintf(&b, ": table %q", e.Table)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing columns [%s]", strings.Join(e.Missing, ", "))
	}
	if e.Reason != nil {
		fmt.Fprintf(&b, ": %v", e.Reason)
	}
	return b.String()
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func (e *ConfigurationError) Unwrap() error { return e.Reason }

// MissingSourceError reports a table that does not exist in the store.
type MissingSourceError struct {
	Name string
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("missing source table %q", e.Name)
}

func (e *MissingSourceError) Is(target error) bool { return target == ErrMissingSource }

// IsUserError reports whether err belongs to the "fix your config or data"
// class (ConfigurationError or MissingSourceError).
func IsUserError(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrMissingSource)
}
