// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


// Package errs defines the error kinds raised by the projection pipeline.
// Each pipeline stage raises its own kind; wrapping keeps the original cause
// reachable via errors.Unwrap and github.com/pkg/errors.Cause.
package errs

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind of failure, identifying the pipeline stage which raised it
type Kind int

const (
	Configuration  Kind = iota // invalid or missing configuration attribute
	GridGeneration             // invalid direction, or non-finite lattice bounds
	Processing                 // projection math failure or shape mismatch
	Transformation             // coordinate to pixel conversion failure
	Interpolation              // resampling failure
)

var kindNames = []string{
	"configuration",
	"grid generation",
	"processing",
	"transformation",
	"interpolation",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// An error of a given kind, with an optional cause
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s error: %s", e.Kind, e.msg)
	}
	return fmt.Sprintf("%s error: %s: %s", e.Kind, e.msg, e.cause.Error())
}

// Returns the wrapped cause, for github.com/pkg/errors.Cause
func (e *Error) Cause() error { return e.cause }

// Returns the wrapped cause, for errors.Is and errors.As
func (e *Error) Unwrap() error { return e.cause }

// Creates a new error of the given kind, annotated with a stack trace
func New(kind Kind, format string, args ...interface{}) error {
	return errors.WithStack(&Error{Kind: kind, msg: fmt.Sprintf(format, args...)})
}

// Wraps the cause into an error of the given kind. Returns nil if cause is nil
func Wrap(kind Kind, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return errors.WithStack(&Error{Kind: kind, msg: fmt.Sprintf(format, args...), cause: cause})
}

// Returns the kind of the outermost typed error in the chain
func KindOf(err error) (k Kind, ok bool) {
	var e *Error
	if !stderrors.As(err, &e) {
		return 0, false
	}
	return e.Kind, true
}

// Returns true if the outermost typed error in the chain is of the given kind
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Returns true if any typed error in the chain is of the given kind
func Has(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// Returns the innermost cause of the error. Unlike errors.Cause, stops at
// a typed error without cause instead of returning nil
func Root(err error) error {
	for {
		c, ok := err.(interface{ Cause() error })
		if !ok {
			return err
		}
		next := c.Cause()
		if next == nil {
			return err
		}
		err = next
	}
}
