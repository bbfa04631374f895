package errdef

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnknown    Code = "unknown"
	CodeHTTP       Code = "http"
	CodeParse      Code = "parse"
	CodeStorage    Code = "storage"
	CodeHistory    Code = "history"
	CodeValidation Code = "validation"
	CodeFilesystem Code = "filesystem"
)

type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %v", e.Msg, e.Err)
		}
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf walks the chain and returns the first attached code.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeUnknown
}

// Message returns the outermost annotation without the wrapped cause.
func Message(err error) string {
	var coded *Error
	if errors.As(err, &coded) && coded.Msg != "" {
		return coded.Msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
