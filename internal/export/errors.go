package export

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode is matched by every *DecodeError.
	ErrDecode = errors.New("invalid export document")
	// ErrIO is matched by every *IOError.
	ErrIO = errors.New("export I/O failure")
)

// DecodeError reports a document that does not match the expected schema.
type DecodeError struct {
	Name  string // file name, if the document came from a Store
	Field string // offending field, if known
	Err   error
}

func (e *DecodeError) Error() string {
	msg := ErrDecode.Error()
	if e.Name != "" {
		msg += " " + e.Name
	}
	if e.Field != "" {
		msg += fmt.Sprintf(": field %q", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
func (e *DecodeError) Unwrap() error        { return e.Err }

// IOError reports a failed directory or file operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Is(target error) bool { return target == ErrIO }
func (e *IOError) Unwrap() error        { return e.Err }
