// Package store implements a sequential, crash-recoverable file store.
//
// Producers write units (a zip of named entries plus an attribute map) through
// a Session. Committing a session moves its files from the temp root into a
// sharded store tree with two renames and assigns the next store id.
// Consumers learn about new ids in strict id order through AwaitNext, read
// them with OpenPayload and ReadAttributes, and remove them with Delete.
//
// Basic usage:
//
//	s, err := store.Open(ctx, store.Config{TempRoot: "data/temp", StoreRoot: "data/store"})
//	sess, err := s.NewSession(store.NewAttributeMap("Feed", "TEST"))
//	w, err := sess.AddEntry("data.dat")
//	w.Write([]byte("hello"))
//	w.Close()
//	id, err := sess.Commit()
//
//	next, err := s.AwaitNext(ctx, 0) // 1
//
// A store id, once allocated, is always published, even when its commit
// failed. Readers treat such ids as ErrNotFound and move on.
package store
