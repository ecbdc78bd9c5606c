// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package errors defines the error type used throughout calcgraph.
// An error carries a kind, the operation that failed together with
// its arguments, and optionally an underlying cause. Chains of errors
// annotate failures as they travel from a calculator, through the
// scheduler, to the graph's final status.
//
// Errors round-trip through JSON so that a run's final status can be
// persisted or reported by a host.
//
// Errorf and New are provided so that callers need import only this
// package.
package errors

import (
	"bytes"
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"os"
	"runtime"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/calcgraph/log"
)

// Separator is inserted between chained errors while rendering.
var Separator = ":\n\t"

// Kind classifies an error.
type Kind int

const (
	// Other denotes an unclassified error.
	Other Kind = iota
	// Canceled denotes a run that was aborted by its host.
	Canceled
	// Timeout denotes an operation that did not complete in time.
	Timeout
	// Temporary denotes a transient error.
	Temporary
	// Invalid denotes invalid configuration, arguments or state.
	Invalid
	// NotExist denotes a reference to an unknown node, stream,
	// calculator type or side packet.
	NotExist
	// OrderViolation denotes a stream append or bound advance that
	// would break timestamp monotonicity.
	OrderViolation
	// OutOfOrder denotes a request to schedule a node at a timestamp
	// that is not greater than one it was already scheduled at.
	OutOfOrder
	// DuplicateOutput denotes a second write to one output slot
	// within a single invocation.
	DuplicateOutput
	// Invocation denotes a failure reported by a calculator's own
	// logic.
	Invocation
	// Stop is returned by a source calculator to indicate that it
	// has no more packets to produce. It is never a graph status.
	Stop
	// Fatal denotes an unrecoverable error.
	Fatal

	maxKind
)

var kinds = [maxKind]struct{ name, message string }{
	Other:           {"Other", "unknown error"},
	Canceled:        {"Canceled", "canceled"},
	Timeout:         {"Timeout", "timeout"},
	Temporary:       {"Temporary", "temporary"},
	Invalid:         {"Invalid", "invalid"},
	NotExist:        {"NotExist", "does not exist"},
	OrderViolation:  {"OrderViolation", "timestamp order violation"},
	OutOfOrder:      {"OutOfOrder", "timestamp scheduled out of order"},
	DuplicateOutput: {"DuplicateOutput", "duplicate output"},
	Invocation:      {"Invocation", "calculator invocation failed"},
	Stop:            {"Stop", "stop"},
	Fatal:           {"Fatal", "fatal"},
}

// String renders a human-readable description of kind k.
func (k Kind) String() string {
	if k < 0 || k >= maxKind {
		return kinds[Other].message
	}
	return kinds[k].message
}

// Name returns the identifier of kind k, as used in JSON.
func (k Kind) Name() string {
	if k < 0 || k >= maxKind {
		return kinds[Other].name
	}
	return kinds[k].name
}

func kindOf(name string) Kind {
	for k := Other; k < maxKind; k++ {
		if kinds[k].name == name {
			return k
		}
	}
	return Other
}

// Error is a calcgraph error. It records the operation (with
// arguments) that failed, and may wrap an underlying error.
//
// Errors should be constructed by errors.E.
type Error struct {
	// Kind is the error's class.
	Kind Kind
	// Op names the failed operation, e.g., "append" or "process".
	Op string
	// Arg holds the operation's arguments, e.g., a stream name and
	// a timestamp.
	Arg []string
	// Err is the cause of this error, if any.
	Err error
}

// E constructs an error from its arguments, each of which must be
// one of:
//
//	string
//		The first string is the error's Op; the remaining strings
//		are appended to Arg.
//	fmt.Stringer
//		Rendered and appended to Arg. Timestamps and digests are
//		passed this way.
//	Kind
//		The error's Kind.
//	error
//		The error's cause.
//
// When no Kind is given, the kind is inherited from a cause of type
// *Error, or inferred from the cause: errors with a Timeout method
// returning true, and context.DeadlineExceeded, become Timeout;
// errors with a Temporary method returning true become Temporary;
// context.Canceled becomes Canceled; and os.IsNotExist errors become
// NotExist.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("errors.E: no args")
	}
	e := new(Error)
	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			if e.Op == "" {
				e.Op = arg
			} else {
				e.Arg = append(e.Arg, arg)
			}
		case Kind:
			e.Kind = arg
		case digest.Digest:
			e.Arg = append(e.Arg, arg.Short())
		case *Error:
			copy := *arg
			e.Err = &copy
		case error:
			e.Err = arg
		case fmt.Stringer:
			e.Arg = append(e.Arg, arg.String())
		default:
			_, file, line, _ := runtime.Caller(1)
			log.Printf("errors.E: bad call (type %T) from %s:%d: %v", arg, file, line, args)
			e.Arg = append(e.Arg, fmt.Sprintf("illegal (%T %v)", arg, arg))
		}
	}
	if e.Err == nil {
		return e
	}
	switch prev := e.Err.(type) {
	case *Error:
		if e.Kind == Other || prev.Kind == e.Kind {
			e.Kind = prev.Kind
			prev.Kind = Other
		}
		if prev.Op == "" && prev.Kind == Other {
			e.Err = prev.Err
		}
	default:
		if e.Kind == Other {
			e.Kind = infer(e.Err)
		}
	}
	return e
}

func infer(err error) Kind {
	switch {
	case err == context.Canceled:
		return Canceled
	case err == context.DeadlineExceeded:
		return Timeout
	case os.IsNotExist(err):
		return NotExist
	}
	if t, ok := err.(interface{ Timeout() bool }); ok && t.Timeout() {
		return Timeout
	}
	if t, ok := err.(interface{ Temporary() bool }); ok && t.Temporary() {
		return Temporary
	}
	return Other
}

func pad(b *bytes.Buffer, s string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(s)
}

// Error renders this error and its chain of causes, separated by
// Separator.
func (e *Error) Error() string {
	return e.ErrorSeparator(Separator)
}

// ErrorSeparator renders this error and its chain of causes,
// separated by sep.
func (e *Error) ErrorSeparator(sep string) string {
	if e == nil {
		return "<nil>"
	}
	b := new(bytes.Buffer)
	if e.Op != "" {
		b.WriteString(e.Op)
		for _, arg := range e.Arg {
			b.WriteString(" " + arg)
		}
	}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		if err, ok := e.Err.(*Error); ok {
			pad(b, sep)
			b.WriteString(err.ErrorSeparator(sep))
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	return b.String()
}

// Unwrap returns the cause of e.
func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout tells whether e is a timeout error.
func (e *Error) Timeout() bool {
	return e.Kind == Timeout
}

// Temporary tells whether e is a temporary error.
func (e *Error) Temporary() bool {
	return e.Kind == Temporary
}

// Copy returns a shallow copy of e.
func (e *Error) Copy() *Error {
	f := new(Error)
	*f = *e
	return f
}

// Errorf is an alternate spelling of fmt.Errorf.
var Errorf = fmt.Errorf

// New is an alternate spelling of errors.New.
var New = goerrors.New

// Recover returns err as an *Error, wrapping it if it is not one
// already.
func Recover(err error) *Error {
	if err == nil {
		return nil
	}
	if err, ok := err.(*Error); ok {
		return err
	}
	return E(err).(*Error)
}

// Is tells whether err is of kind. Errors that are not of type
// *Error are classified as by E.
func Is(kind Kind, err error) bool {
	if err == nil {
		return false
	}
	return Recover(err).Kind == kind
}

// Match compares err1 with err2. If err1 is a Kind, Match reports
// whether err2 is of that kind. If err1 is an *Error, every nonempty
// field of err1 must equal the corresponding field of err2, and Match
// recurs down the chain of causes.
func Match(err1 interface{}, err2 error) bool {
	if err2 == nil {
		return false
	}
	e2 := Recover(err2)
	switch e1 := err1.(type) {
	default:
		return false
	case Kind:
		return e1 == e2.Kind
	case *Error:
		if e1.Op != "" && e2.Op != e1.Op {
			return false
		}
		if len(e1.Arg) != len(e2.Arg) {
			return false
		}
		for i := range e1.Arg {
			if e1.Arg[i] != e2.Arg[i] {
				return false
			}
		}
		if e1.Kind != Other && e2.Kind != e1.Kind {
			return false
		}
		if e1.Err != nil {
			if _, ok := e1.Err.(*Error); ok {
				return Match(e1.Err, e2.Err)
			}
			if e2.Err == nil || e2.Err.Error() != e1.Err.Error() {
				return false
			}
		}
		return true
	}
}

// Transient tells whether err is likely transient, and thus an
// invocation failing with it may be usefully retried.
func Transient(err error) bool {
	e := Recover(err)
	if e == nil {
		return false
	}
	switch e.Kind {
	case Timeout, Temporary:
		return true
	case Invocation:
		// Invocation errors inherit transience from their cause.
		if e.Err != nil {
			return Transient(e.Err)
		}
	}
	return false
}

// Structural tells whether err reports a broken engine contract:
// an order violation, an out of order schedule or a duplicate output.
func Structural(err error) bool {
	switch Recover(err).Kind {
	case OrderViolation, OutOfOrder, DuplicateOutput:
		return true
	}
	return false
}

type jsonError struct {
	Op    string     `json:",omitempty"`
	Arg   []string   `json:",omitempty"`
	Kind  string     `json:",omitempty"`
	Cause *jsonError `json:",omitempty"`
	Error string     `json:",omitempty"`
}

func (j *jsonError) toError() error {
	if j == nil {
		return nil
	}
	if j.Error != "" {
		return New(j.Error)
	}
	e := &Error{Op: j.Op, Arg: j.Arg, Kind: kindOf(j.Kind)}
	if j.Cause != nil {
		e.Err = j.Cause.toError()
	}
	return e
}

func toJSON(err error) *jsonError {
	e, ok := err.(*Error)
	if !ok {
		return &jsonError{Error: err.Error()}
	}
	j := &jsonError{Op: e.Op, Arg: e.Arg, Kind: e.Kind.Name()}
	if e.Err != nil {
		j.Cause = toJSON(e.Err)
	}
	return j
}

// MarshalJSON implements JSON marshalling for Error.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(toJSON(e))
}

// UnmarshalJSON implements JSON unmarshalling for Error.
func (e *Error) UnmarshalJSON(b []byte) error {
	var j jsonError
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	e2, ok := j.toError().(*Error)
	if !ok {
		return Errorf("expected *Error, got %q", j.Error)
	}
	*e = *e2
	return nil
}
