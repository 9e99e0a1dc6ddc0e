package pngstream

import (
	"errors"
	"io"

	"github.com/mixcode/pngstream/internal/oops"
)

// Error classes. Every error returned by a Reader or Writer matches exactly one
// of them with errors.Is.
var (
	ErrFormat    = errors.New("png: format error")
	ErrIntegrity = errors.New("png: integrity error")
	ErrCapacity  = errors.New("png: capacity exceeded")
	ErrSequence  = errors.New("png: sequence error")
	ErrIO        = errors.New("png: i/o error")
)

// IOError is a failure of the underlying byte source or sink.
// It matches ErrIO and unwraps to the original cause.
type IOError struct {
	Err error
}

func (e *IOError) Error() string {
	return ErrIO.Error() + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

func formatErr(format string, args ...interface{}) error {
	return oops.New(ErrFormat, format, args...)
}

func integrityErr(format string, args ...interface{}) error {
	return oops.New(ErrIntegrity, format, args...)
}

func capacityErr(format string, args ...interface{}) error {
	return oops.New(ErrCapacity, format, args...)
}

func sequenceErr(format string, args ...interface{}) error {
	return oops.New(ErrSequence, format, args...)
}

// ioErr classifies err as an I/O failure. A clean EOF where data was required
// becomes io.ErrUnexpectedEOF. Errors that already carry a class pass through.
func ioErr(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if isClassified(err) {
		return err
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return oops.New(&IOError{Err: err}, format, args...)
}

func isClassified(err error) bool {
	return errors.Is(err, ErrFormat) ||
		errors.Is(err, ErrIntegrity) ||
		errors.Is(err, ErrCapacity) ||
		errors.Is(err, ErrSequence) ||
		errors.Is(err, ErrIO)
}
