/* Copyright 2021, Arkadiusz Zarychta, arkadiusz.zarychta@h-brs.de */

package parbend

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection reports that a remote worker could not be reached or
	// started. Fatal to the whole run: a decomposition cannot proceed with
	// a missing worker.
	ErrConnection = errors.New("cannot connect remote solver")

	// ErrRejectedModel reports that a model violates a restriction of the
	// target solver or of the dualization transform.
	ErrRejectedModel = errors.New("model rejected")

	// ErrMalformedDecomposition reports a row whose nonzeros span two
	// distinct sub-blocks. Raised at decomposition time, before any remote
	// connection is made.
	ErrMalformedDecomposition = errors.New("malformed decomposition")
)

// ModelError reports a row coefficient referencing a column outside the
// owning model.
type ModelError struct {
	Model string
	Row   int
	Col   int
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s: row %d references invalid column %d", e.Model, e.Row, e.Col)
}

// SolveError identifies which block or race job failed mid-run. Sibling
// solves are killed and joined before a SolveError propagates; it is
// never silently swallowed.
type SolveError struct {
	Block int
	Err   error
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("block %d: solve failed: %v", e.Block, e.Err)
}

func (e *SolveError) Unwrap() error { return e.Err }
