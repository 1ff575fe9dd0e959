// Package txn implements the per-connection MULTI/EXEC transaction state
// machine described in spec.md §4.6. It mirrors the teacher's pipeline
// Stage/Result shape (internal/pipeline/pipeline.go): a queued sequence of
// operations run under a shared context, each producing its own Result.
package txn

import "errors"

var (
	// ErrNestedMulti is returned by Begin when a transaction is already active.
	ErrNestedMulti = errors.New("ERR MULTI calls can not be nested")
	// ErrDiscardWithoutMulti is returned by Discard outside a transaction.
	ErrDiscardWithoutMulti = errors.New("ERR DISCARD without MULTI")
	// ErrExecWithoutMulti is returned by Exec outside a transaction.
	ErrExecWithoutMulti = errors.New("ERR EXEC without MULTI")
	// ErrExecAbort is returned by Exec when a queueing-time error occurred.
	ErrExecAbort = errors.New("EXECABORT Transaction discarded because of previous errors.")
)

// QueuedCommand is one raw command captured between MULTI and EXEC.
type QueuedCommand struct {
	Args [][]byte
}

// State is the per-connection transaction state described in spec.md §3.
type State struct {
	Active       bool
	ErrorSticky  bool
	Queued       []QueuedCommand
}

// Begin starts a transaction.
func (s *State) Begin() error {
	if s.Active {
		return ErrNestedMulti
	}
	s.Active = true
	s.ErrorSticky = false
	s.Queued = nil
	return nil
}

// Queue appends a command to the pending batch. Callers queue while
// Active is true and the command is not itself MULTI/EXEC/DISCARD.
func (s *State) Queue(args [][]byte) {
	s.Queued = append(s.Queued, QueuedCommand{Args: args})
}

// MarkError records that a queued command failed syntax validation before
// being queued; EXEC will abort the whole batch.
func (s *State) MarkError() { s.ErrorSticky = true }

// Discard clears transaction state, returning an error if none was active.
func (s *State) Discard() error {
	if !s.Active {
		return ErrDiscardWithoutMulti
	}
	s.reset()
	return nil
}

// BeginExec validates that EXEC may proceed, returning the queued batch
// and resetting state either way (EXEC always ends the transaction,
// whether it runs the batch or aborts it).
func (s *State) BeginExec() ([]QueuedCommand, error) {
	if !s.Active {
		return nil, ErrExecWithoutMulti
	}
	if s.ErrorSticky {
		s.reset()
		return nil, ErrExecAbort
	}
	batch := s.Queued
	s.reset()
	return batch, nil
}

func (s *State) reset() {
	s.Active = false
	s.ErrorSticky = false
	s.Queued = nil
}
