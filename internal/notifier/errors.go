package notifier

import (
	"errors"
	"fmt"
)

var ErrNoRepostChannel = errors.New("repost channel not registered")

// Class tells callers what a failure means for retries and reporting.
type Class int

const (
	// ClassTransient failures abort the unit of work without marking
	// anything seen. The next natural trigger retries it.
	ClassTransient Class = iota
	// ClassPermanent failures are bound to the item. It is marked seen.
	ClassPermanent
	// ClassUser failures are reported back to the requesting user.
	ClassUser
	// ClassInvariant failures mean expected data was missing.
	ClassInvariant
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassUser:
		return "user"
	case ClassInvariant:
		return "invariant"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

type Error struct {
	Class  Class
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Reason
	}

	return fmt.Sprintf("%s: %s", e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(class Class, reason string, err error) *Error {
	return &Error{Class: class, Reason: reason, Err: err}
}

// ClassOf returns the class of err, ClassPermanent when it carries none.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}

	return ClassPermanent
}

// UserError is a failure caused by the request itself. reason is shown to
// the user as is.
func UserError(reason string, err error) error {
	return newError(ClassUser, reason, err)
}
