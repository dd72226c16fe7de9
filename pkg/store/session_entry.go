package store

import (
	"fmt"
	"io"
)

// entryWriter streams the bytes of one entry into the session's zip.
//
// Close finalizes the entry from the session's point of view and is
// idempotent. Writing after Close fails with ErrEntryClosed; writing after the
// session itself was discarded fails with ErrSessionClosed.
type entryWriter struct {
	session *Session
	w       io.Writer
	written int64
	closed  bool
}

func (e *entryWriter) Write(p []byte) (int, error) {
	if e.closed {
		return 0, ErrEntryClosed
	}
	if e.session.state != stateInEntry || e.session.entry != e {
		return 0, fmt.Errorf("write entry: %w", ErrSessionClosed)
	}
	n, err := e.w.Write(p)
	e.written += int64(n)
	return n, err
}

func (e *entryWriter) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.session.entry == e {
		e.session.entry = nil
		if e.session.state == stateInEntry {
			e.session.state = stateOpen
		}
	}
	return nil
}
