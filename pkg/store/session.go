package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"github.com/marmos91/seqstore/internal/logger"
	"github.com/marmos91/seqstore/internal/retry"
)

// placeholderEntry is written into sessions that are closed without any
// entry, so the temp container is a well-formed zip before it is discarded.
const placeholderEntry = ".empty"

type sessionState int

const (
	stateOpen sessionState = iota
	stateInEntry
	stateCommitting
	stateDiscarding
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateInEntry:
		return "in-entry"
	case stateCommitting:
		return "committing"
	case stateDiscarding:
		return "discarding"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session writes one unit: a set of named entries packaged into a single zip
// plus the attribute map given to NewSession.
//
// Lifecycle:
//
//	Open -> InEntry -> Open ... -> Committing -> Closed   (Commit / Close)
//	Open -> Discarding -> Closed                          (CloseDelete)
//
// A Session is owned by one goroutine and must not be used concurrently.
// Close and CloseDelete are no-ops once the session is closed; every other
// method then fails with ErrSessionClosed.
type Session struct {
	store *Store
	id    string
	temp  FileSet

	file *os.File
	buf  *bufio.Writer
	zw   *zip.Writer

	attrs   *AttributeMap
	state   sessionState
	names   map[string]struct{}
	entry   *entryWriter
	storeID uint64
	started time.Time
}

func newSession(s *Store, temp FileSet, file *os.File, attrs *AttributeMap) *Session {
	buf := bufio.NewWriterSize(file, 64*1024)
	ss := &Session{
		store:   s,
		id:      uuid.NewString(),
		temp:    temp,
		file:    file,
		buf:     buf,
		zw:      zip.NewWriter(buf),
		attrs:   attrs,
		state:   stateOpen,
		names:   make(map[string]struct{}),
		started: time.Now(),
	}
	logger.Debug("Session %s opened: temp_id=%d", ss.id, temp.ID)
	return ss
}

// ID returns the session's unique identifier, used in logs and by sinks.
func (ss *Session) ID() string { return ss.id }

// TempID returns the temp id the session is being written under.
func (ss *Session) TempID() uint64 { return ss.temp.ID }

// StoreID returns the store id assigned by a commit, or 0 when the session
// has not been committed (or was empty).
func (ss *Session) StoreID() uint64 { return ss.storeID }

// Attributes returns a copy of the session's attribute map.
func (ss *Session) Attributes() *AttributeMap { return ss.attrs.Clone() }

// AddEntry starts a new named entry and returns its writer.
//
// The previous entry must be closed first: the packaging format cannot
// interleave entries. Names must be unique within the session.
//
// Parameters:
//   - name: Entry name inside the zip (non-empty)
//
// Returns:
//   - io.WriteCloser: Entry writer; Close returns the session to Open
//   - error: ErrEntryOpen, ErrDuplicateEntry, ErrSessionClosed, or an I/O error
func (ss *Session) AddEntry(name string) (io.WriteCloser, error) {
	switch ss.state {
	case stateInEntry:
		return nil, fmt.Errorf("add entry %q: %w", name, ErrEntryOpen)
	case stateOpen:
	default:
		return nil, fmt.Errorf("add entry %q: %w", name, ErrSessionClosed)
	}
	if name == "" {
		return nil, fmt.Errorf("add entry: name must not be empty")
	}
	if _, dup := ss.names[name]; dup {
		return nil, fmt.Errorf("add entry %q: %w", name, ErrDuplicateEntry)
	}

	w, err := ss.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create entry %q: %w", name, err)
	}

	ss.names[name] = struct{}{}
	ss.state = stateInEntry
	ss.entry = &entryWriter{session: ss, w: w}
	return ss.entry, nil
}

// Close commits the session like Commit but drops the assigned store id.
func (ss *Session) Close() error {
	if ss.state == stateClosed {
		return nil
	}
	_, err := ss.Commit()
	return err
}

// Commit makes the session's unit durable and visible to consumers.
//
// A session without entries is discarded instead and (0, nil) is returned.
//
// Otherwise the zip is finalized and synced, the attributes are written to
// the temp .meta file, the next store id is allocated and both files are
// renamed into the sharded store path (.zip first). The id is then published
// once every smaller id has been published.
//
// If anything fails after the store id was allocated, the temp and partially
// installed files are removed and the id is still published, so later ids
// are not held back. Consumers see such a burned id as ErrNotFound.
// The session is closed whether or not the commit succeeded.
//
// Returns:
//   - uint64: The assigned store id (also on a failed commit that burned it)
//   - error: ErrEntryOpen, ErrSessionClosed, ErrRetriesExhausted,
//     ErrCrossDevice, or an I/O error
func (ss *Session) Commit() (uint64, error) {
	switch ss.state {
	case stateInEntry:
		return 0, fmt.Errorf("commit session %s: %w", ss.id, ErrEntryOpen)
	case stateOpen:
	default:
		return 0, fmt.Errorf("commit session %s: %w", ss.id, ErrSessionClosed)
	}

	if len(ss.names) == 0 {
		return 0, ss.discardEmpty()
	}

	ss.state = stateCommitting
	defer func() { ss.state = stateClosed }()

	s := ss.store
	start := time.Now()

	// ========================================================================
	// Step 1: Finalize the payload and write the attributes
	// ========================================================================

	size, err := ss.finalize()
	if err == nil {
		err = writeAttributesFile(ss.temp.Meta, ss.attrs)
		if err != nil {
			err = fmt.Errorf("failed to write attributes: %w", err)
		}
	}
	if err != nil {
		_ = ss.removeTemp()
		s.metrics.ObserveCommit(0, time.Since(start), false)
		logger.Error("Session %s commit failed before id allocation: %v", ss.id, err)
		return 0, err
	}

	// ========================================================================
	// Step 2: Allocate the store id and install the files
	// ========================================================================
	//
	// From here on the id must be published whatever happens.

	id := s.storeSeq.Next()
	ss.storeID = id
	dst := Resolve(s.storeRoot, id, true)

	err = s.install(ss.temp.Zip, dst.Zip, dst.SubDirs)
	zipInstalled := err == nil
	if zipInstalled {
		err = s.install(ss.temp.Meta, dst.Meta, dst.SubDirs)
	}
	if err != nil {
		_ = ss.removeTemp()
		// Only files this commit renamed into place are removed.
		if zipInstalled {
			_ = os.Remove(dst.Zip)
		}
		pruneDirs(dst.SubDirs)
		logger.Error("Session %s commit of store id %d failed: %v", ss.id, id, err)
		logger.Warn("Store id %d burned: publishing without a unit", id)
	}

	// ========================================================================
	// Step 3: Publish in order
	// ========================================================================

	if pubErr := s.publisher.Publish(id); pubErr != nil {
		err = errors.Join(err, pubErr)
	}

	s.metrics.ObserveCommit(size, time.Since(start), err == nil)
	if err != nil {
		return id, fmt.Errorf("commit of store id %d: %w", id, err)
	}

	logger.Debug("Session %s committed: store_id=%d, entries=%d, bytes=%d",
		ss.id, id, len(ss.names), size)
	return id, nil
}

// CloseDelete discards the session and removes its temp files. Calling it
// again, or after a failed commit, is a no-op.
func (ss *Session) CloseDelete() error {
	if ss.state == stateClosed {
		return nil
	}
	ss.state = stateDiscarding
	defer func() { ss.state = stateClosed }()

	// The zip trailer is irrelevant for a discarded unit; only release the
	// descriptor.
	closeErr := ss.file.Close()
	if errors.Is(closeErr, os.ErrClosed) {
		closeErr = nil
	}

	err := ss.removeTemp()
	ss.store.metrics.ObserveDiscard()
	logger.Debug("Session %s discarded: temp_id=%d", ss.id, ss.temp.ID)

	if err != nil {
		return err
	}
	return closeErr
}

// discardEmpty writes the placeholder entry so the container is valid, then
// discards the session.
func (ss *Session) discardEmpty() error {
	if _, err := ss.zw.Create(placeholderEntry); err != nil {
		_ = ss.CloseDelete()
		return fmt.Errorf("failed to write placeholder entry: %w", err)
	}
	if _, err := ss.finalize(); err != nil {
		_ = ss.CloseDelete()
		return err
	}
	return ss.CloseDelete()
}

// finalize writes the zip trailer, flushes and syncs the temp file and closes
// it. It returns the payload size.
func (ss *Session) finalize() (int64, error) {
	err := ss.zw.Close()
	if err == nil {
		err = ss.buf.Flush()
	}
	if err == nil {
		err = ss.file.Sync()
	}

	var size int64
	if err == nil {
		var info os.FileInfo
		if info, err = ss.file.Stat(); err == nil {
			size = info.Size()
		}
	}

	if closeErr := ss.file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to finalize %s: %w", ss.temp.Zip, err)
	}
	return size, nil
}

// removeTemp deletes the session's temp files, ignoring missing ones.
func (ss *Session) removeTemp() error {
	var errs []error
	for _, path := range []string{ss.temp.Zip, ss.temp.Meta} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// install renames src to dst, recreating dst's shard directories when a
// concurrent Delete pruned them.
func (s *Store) install(src, dst string, dirs []string) error {
	return s.withDirs(dirs, func() error {
		err := os.Rename(src, dst)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, syscall.EXDEV):
			return retry.Permanent(fmt.Errorf("rename %s: %w", src, ErrCrossDevice))
		case errors.Is(err, os.ErrNotExist):
			// Only a missing destination directory is worth retrying.
			if _, statErr := os.Stat(src); statErr != nil {
				return retry.Permanent(fmt.Errorf("rename source %s vanished: %w", src, err))
			}
		}
		return err
	})
}
