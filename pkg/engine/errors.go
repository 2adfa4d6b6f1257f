package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a move failure. Kinds are strings so they read well
// in logs and JSON output.
type ErrorKind string

const (
	// KindSourceMissing means the source vanished before or during a transfer.
	KindSourceMissing ErrorKind = "SOURCE_MISSING"
	// KindIO wraps any read, write, seek, metadata, create or remove failure.
	KindIO ErrorKind = "IO_ERROR"
	// KindSyntax means the invocation or configuration was invalid.
	KindSyntax ErrorKind = "SYNTAX_ERROR"
	// KindEnumeration means walking the source tree failed.
	KindEnumeration ErrorKind = "ENUMERATION_ERROR"
)

// Sentinels for errors.Is checks against a *MoveError kind.
var (
	ErrSourceMissing = &MoveError{Kind: KindSourceMissing}
	ErrIO            = &MoveError{Kind: KindIO}
	ErrSyntax        = &MoveError{Kind: KindSyntax}
	ErrEnumeration   = &MoveError{Kind: KindEnumeration}

	// ErrIncomplete is returned by Engine.Run when one or more files failed.
	ErrIncomplete = errors.New("an error occurred when moving one or more files")
)

// MoveError carries the kind of failure, the offending path and the cause.
type MoveError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *MoveError) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s: %q: %v", kindText(e.Kind), e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", kindText(e.Kind), e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %q", kindText(e.Kind), e.Path)
	}
	return kindText(e.Kind)
}

func (e *MoveError) Unwrap() error {
	return e.Err
}

// Is matches any *MoveError of the same kind, so errors.Is(err, ErrIO) works
// regardless of path or cause.
func (e *MoveError) Is(target error) bool {
	t, ok := target.(*MoveError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func kindText(k ErrorKind) string {
	switch k {
	case KindSourceMissing:
		return "source file does not exist"
	case KindIO:
		return "i/o error"
	case KindSyntax:
		return "incorrect syntax"
	case KindEnumeration:
		return "failed to enumerate source"
	}
	return string(k)
}

// SyntaxError builds a KindSyntax error with a formatted message.
func SyntaxError(format string, args ...any) error {
	return &MoveError{Kind: KindSyntax, Err: fmt.Errorf(format, args...)}
}

func ioError(path string, err error) error {
	var me *MoveError
	if errors.As(err, &me) {
		return err
	}
	return &MoveError{Kind: KindIO, Path: path, Err: err}
}

func sourceMissing(path string) error {
	return &MoveError{Kind: KindSourceMissing, Path: path}
}

func enumerationError(path string, err error) error {
	return &MoveError{Kind: KindEnumeration, Path: path, Err: err}
}
