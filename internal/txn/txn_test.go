package txn

import "testing"

func TestNestedMultiRejected(t *testing.T) {
	var s State
	if err := s.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := s.Begin(); err != ErrNestedMulti {
		t.Fatalf("got %v", err)
	}
}

func TestExecAbortOnStickyError(t *testing.T) {
	var s State
	s.Begin()
	s.Queue([][]byte{[]byte("INCR"), []byte("n")})
	s.MarkError()
	if _, err := s.BeginExec(); err != ErrExecAbort {
		t.Fatalf("got %v", err)
	}
	if s.Active {
		t.Fatal("expected state reset after EXECABORT")
	}
}

func TestExecReturnsQueuedBatch(t *testing.T) {
	var s State
	s.Begin()
	s.Queue([][]byte{[]byte("INCR"), []byte("n")})
	s.Queue([][]byte{[]byte("INCR"), []byte("n")})
	batch, err := s.BeginExec()
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Fatalf("got %d", len(batch))
	}
	if s.Active {
		t.Fatal("expected state reset after EXEC")
	}
}

func TestDiscardWithoutMulti(t *testing.T) {
	var s State
	if err := s.Discard(); err != ErrDiscardWithoutMulti {
		t.Fatalf("got %v", err)
	}
}
