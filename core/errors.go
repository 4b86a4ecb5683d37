package core

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	if len(err.Fields) > 0 {
		msg := "invalid input:"
		for _, f := range err.Fields {
			msg += fmt.Sprintf(" %s: %s;", f.Field, f.Error)
		}
		return msg[:len(msg)-1]
	}
	return err.Err.Error()
}

func fieldErrors(err error) []FieldError {
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	flds := make([]FieldError, 0, len(vErrs))
	for _, vErr := range vErrs {
		msg := vErr.Error()
		if Translator != nil {
			msg = vErr.Translate(Translator)
		}
		flds = append(flds, FieldError{Field: vErr.Field(), Error: msg})
	}
	return flds
}

// QueryError is the single failure kind of a backend request.
// It carries whatever message the backend returned.
type QueryError struct {
	Op    string // select, count, delete
	Table string
	Err   error
}

func NewQueryError(op, table string, err error) error {
	return &QueryError{Op: op, Table: table, Err: err}
}

func (err *QueryError) Error() string {
	return fmt.Sprintf("query failed: %s %s: %v", err.Op, err.Table, err.Err)
}

func (err *QueryError) Unwrap() error { return err.Err }

// IsQueryError reports whether a QueryError sits anywhere in err's chain.
func IsQueryError(err error) bool {
	var qErr *QueryError
	return errors.As(err, &qErr)
}

type ArgumentError struct {
	msg string
}

func NewArgumentError(format string, args ...interface{}) *ArgumentError {
	return &ArgumentError{fmt.Sprintf(format, args...)}
}

func (err *ArgumentError) Error() string {
	return err.msg
}
