package service

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a failed question.
type ErrorKind string

const (
	KindDatasetNotFound       ErrorKind = "DatasetNotFound"
	KindTranslatorUnavailable ErrorKind = "TranslatorUnavailable"
	KindExecutionError        ErrorKind = "ExecutionError"
	KindNoResultProduced      ErrorKind = "NoResultProduced"
)

// QueryError is the error surfaced to callers of the pipeline.
type QueryError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *QueryError) Unwrap() error {
	return e.cause
}

// IsExecution reports whether the error came from running candidate code.
// NoResultProduced counts as an execution error.
func (e *QueryError) IsExecution() bool {
	return e.Kind == KindExecutionError || e.Kind == KindNoResultProduced
}

func newQueryError(kind ErrorKind, cause error, format string, args ...any) *QueryError {
	return &QueryError{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf returns the kind of a QueryError anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return "", false
}
