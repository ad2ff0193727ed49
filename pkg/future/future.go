// Package future implements the Cb Future Cell: a
// type-tagged, one-shot asynchronous result container produced by an
// async function call and consumed by await.
//
// The cell follows a one tagged payload, set once, read many shape,
// generalized with a readiness bit and a FutureNotReady error so a read
// before the value is set fails instead of returning a zero value.
package future

import (
	"github.com/shadowlink0122/cb/pkg/cberrors"
	"github.com/shadowlink0122/cb/pkg/value"
)

// Cell is a single-assignment box for an async call's eventual result.
type Cell struct {
	tag    value.TypeTag
	ready  bool
	result value.Value
	err    error
}

// New creates a not-yet-ready cell expected to resolve to tag.
func New(tag value.TypeTag) *Cell {
	return &Cell{tag: tag}
}

// Tag reports the declared result type.
func (c *Cell) Tag() value.TypeTag { return c.tag }

// Ready reports whether Set (or Fail) has been called.
func (c *Cell) Ready() bool { return c.ready }

// Set resolves the cell to v. v.Tag must match the cell's declared tag;
// a mismatch is a TypeMismatch error and the cell is left unresolved.
func (c *Cell) Set(v value.Value) error {
	if c.ready {
		return cberrors.New(cberrors.RuntimeError, "future already resolved")
	}
	if v.Tag != c.tag {
		return cberrors.Newf(cberrors.TypeMismatch, "future expected %s result, got %s", c.tag, v.Tag)
	}
	c.result = v
	c.ready = true
	return nil
}

// Fail resolves the cell to a propagated error instead of a value; await
// re-raises it.
func (c *Cell) Fail(err error) {
	if c.ready {
		return
	}
	c.err = err
	c.ready = true
}

// Get implements await's read step: it never blocks, and returns a
// FutureNotReady error at once if the cell is not Ready. Since the event
// loop is cooperative and single-threaded, callers drive the loop to
// readiness first (pkg/eventloop.RunUntil(cell.Ready)).
func (c *Cell) Get() (value.Value, error) {
	if !c.ready {
		return value.Value{}, cberrors.New(cberrors.FutureNotReady, "await on a future that has not resolved")
	}
	if c.err != nil {
		return value.Value{}, c.err
	}
	return c.result, nil
}
