package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"
)

// PanicError is a panic recovered at an estimator entry point. gonum reports
// shape and factorisation misuse by panicking with mat.Error values; those
// stay reachable through errors.Is, e.g. errors.Is(err, mat.ErrShape).
type PanicError struct {
	Operation  string
	PanicValue interface{}
	StackTrace string
}

func (e *PanicError) Error() string {
	if e.FromLinearAlgebra() {
		return fmt.Sprintf("panic in %s: linear algebra: %v", e.Operation, e.PanicValue)
	}
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// String is Error followed by the stack captured at recovery.
func (e *PanicError) String() string {
	return e.Error() + "\nStack trace:\n" + e.StackTrace
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.PanicValue.(error); ok {
		return err
	}
	return nil
}

// FromLinearAlgebra reports whether the panic came from gonum/mat.
func (e *PanicError) FromLinearAlgebra() bool {
	switch e.PanicValue.(type) {
	case mat.Error, *mat.Error, mat.ErrorStack, *mat.ErrorStack:
		return true
	}
	return false
}

// NewPanicError captures the current stack for a recovered value.
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		Operation:  operation,
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
	}
}

// Recover is deferred with a pointer to the named error result:
//
//	func (k *ConditionalKDE) Fit(X mat.Matrix, features []string) (err error) {
//	    defer errors.Recover(&err, "ConditionalKDE.Fit")
//	    ...
//	}
//
// An error already assigned to *err is kept as the cause.
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	if *err != nil {
		*err = errors.Wrapf(*err, "panic in %s: %v", operation, r)
		return
	}
	*err = NewPanicError(operation, r)
}

// SafeExecute runs fn, turning a panic into a *PanicError.
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
