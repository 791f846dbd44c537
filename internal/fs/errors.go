package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
)

// Code categorizes a filesystem failure.
type Code int

const (
	CodeOK Code = iota
	CodeIO
	CodeNotFound
	CodePermissionDenied
	CodeAlreadyExists
	CodeCrossDevice
	CodeCancelled
	CodeTooManyConflicts
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeNotFound:
		return "not found"
	case CodePermissionDenied:
		return "permission denied"
	case CodeAlreadyExists:
		return "already exists"
	case CodeCrossDevice:
		return "cross-device"
	case CodeCancelled:
		return "cancelled"
	case CodeTooManyConflicts:
		return "too many conflicts"
	default:
		return "i/o error"
	}
}

// Sentinels matched by errors.Is against any categorized error.
var (
	ErrIO               = errors.New("i/o error")
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrAlreadyExists    = errors.New("already exists")
	ErrCrossDevice      = errors.New("cross-device operation")
	ErrCancelled        = errors.New("cancelled")
	ErrTooManyConflicts = errors.New("too many conflicts")
)

var sentinels = map[Code]error{
	CodeIO:               ErrIO,
	CodeNotFound:         ErrNotFound,
	CodePermissionDenied: ErrPermissionDenied,
	CodeAlreadyExists:    ErrAlreadyExists,
	CodeCrossDevice:      ErrCrossDevice,
	CodeCancelled:        ErrCancelled,
	CodeTooManyConflicts: ErrTooManyConflicts,
}

// PathError is a categorized failure of one operation on one path.
type PathError struct {
	Op   string
	Path string
	Code Code
	Err  error
}

func (e *PathError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, fs.ErrNotFound) work regardless of the wrapped cause.
func (e *PathError) Is(target error) bool {
	return sentinels[e.Code] == target
}

// Categorize wraps err in a PathError carrying its Code. A nil err stays nil
// and an already categorized error is returned unchanged.
func Categorize(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PathError
	if errors.As(err, &pe) {
		return err
	}
	return &PathError{Op: op, Path: path, Code: classify(err), Err: err}
}

// CodeOf returns the Code of err, CodeOK for nil.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var pe *PathError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return classify(err)
}

func classify(err error) Code {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrCancelled):
		return CodeCancelled
	case errors.Is(err, ErrTooManyConflicts):
		return CodeTooManyConflicts
	case isCrossDevice(err), errors.Is(err, ErrCrossDevice):
		return CodeCrossDevice
	case errors.Is(err, iofs.ErrNotExist), errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, iofs.ErrPermission), errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, iofs.ErrExist), errors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	default:
		return CodeIO
	}
}
