// Package xerrors builds errors that remember where they came from. New and
// Newf capture a full stack at the origin; Wrap and Wrapf record the single
// call site of each annotation. The logging layer reads both back through
// the PC()/StackPCs() accessors.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// stacked carries a full stack captured where the error was created.
type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }

// annotated carries a message prefix and the program counter of the Wrap
// call, enough to resolve one frame without the cost of a full stack.
type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (a *annotated) Error() string { return a.msg + ": " + a.err.Error() }
func (a *annotated) Unwrap() error { return a.err }
func (a *annotated) PC() uintptr   { return a.pc }

func New(msg string) error {
	return &stacked{err: errors.New(msg), pcs: originStack()}
}

func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: originStack()}
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: msg, pc: wrapSite()}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: fmt.Sprintf(format, args...), pc: wrapSite()}
}

// WithStack attaches the current stack to err without changing its message.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: originStack()}
}

// EnsureTrace attaches a stack only when the chain does not already carry
// one, so wrapping at multiple layers stays cheap.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var sc interface{ StackPCs() []uintptr }
	if errors.As(err, &sc) && sc != nil && len(sc.StackPCs()) > 0 {
		return err
	}
	return &stacked{err: err, pcs: originStack()}
}

// originStack captures the caller's stack, skipping runtime.Callers,
// originStack itself and the exported constructor.
func originStack() []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}

// wrapSite resolves the single frame of the Wrap/Wrapf caller.
func wrapSite() uintptr {
	var pcs [1]uintptr
	if runtime.Callers(3, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}
