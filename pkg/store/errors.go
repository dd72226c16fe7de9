package store

import "errors"

// ============================================================================
// Standard Store Errors
// ============================================================================

// These errors let callers tell programming misuse apart from I/O failures
// and from the expected cancellation of a blocking wait. Implementations wrap
// them with context:
//
//	return fmt.Errorf("store id %d: %w", id, store.ErrNotFound)
//
// and callers match with errors.Is.

var (
	// ErrSessionClosed is returned by any session operation other than
	// Close/CloseDelete once the session has been committed or discarded.
	ErrSessionClosed = errors.New("session closed")

	// ErrEntryOpen is returned when a second entry is requested (or the
	// session committed) while the previous entry is still being written.
	// The packaging format does not support interleaved entries.
	ErrEntryOpen = errors.New("entry still open")

	// ErrEntryClosed is returned when writing to an entry that has already
	// been closed.
	ErrEntryClosed = errors.New("entry closed")

	// ErrDuplicateEntry is returned when an entry name is reused within one
	// session.
	ErrDuplicateEntry = errors.New("duplicate entry name")

	// ErrInterrupted is returned by blocking waits whose context was
	// cancelled. The context error is wrapped alongside it.
	ErrInterrupted = errors.New("wait interrupted")

	// ErrRetriesExhausted is returned when a directory kept disappearing
	// between being recreated and being used.
	ErrRetriesExhausted = errors.New("directory retries exhausted")

	// ErrCrossDevice is returned when a commit rename would cross volumes.
	// Temp and store roots must live on the same file system.
	ErrCrossDevice = errors.New("temp and store roots are on different volumes")

	// ErrNotFound indicates that no complete unit exists for a store id.
	// Burned ids (allocated by a commit that later failed) and consumed ids
	// both report this.
	ErrNotFound = errors.New("unit not found")

	// ErrAlreadyPublished indicates a store id was published twice.
	ErrAlreadyPublished = errors.New("store id already published")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("store closed")

	// ErrLocked is returned by Open when another Store already owns the
	// roots. Two owners would hand out the same store ids.
	ErrLocked = errors.New("store root is locked by another owner")
)

// IsMisuse reports whether err signals a programming error rather than an
// I/O failure. Misuse errors are never retryable.
func IsMisuse(err error) bool {
	return errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, ErrEntryOpen) ||
		errors.Is(err, ErrEntryClosed) ||
		errors.Is(err, ErrDuplicateEntry) ||
		errors.Is(err, ErrAlreadyPublished)
}
