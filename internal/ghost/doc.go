// Package ghost implements ghost text: virtual, not-yet-committed
// insertions anchored at document positions that the user types through.
//
// # Components
//
//   - [Shift]: pure anchor arithmetic for a single edit
//   - [Merge]: folds a new insertion into adjacent entries
//   - [Store]: owns the entries of one document, keeps anchors correct as
//     the document changes, consumes entries once they are fully typed and
//     answers inline-suggestion queries with the untyped remainder
//
// # Lifecycle
//
// A Store is created when an editor view mounts and closed when it
// unmounts:
//
//	store := ghost.NewStore(doc, host)
//	defer store.Close()
//
//	store.Create("fmt.Println(x)", editor.Range{Start: cursor})
//
// Every entry registers one inline source with the host; the registration
// is disposed exactly once when the entry is consumed, cleared, merged into
// a neighbour, or the store is closed. Saving the document clears all
// entries.
//
// # Failure semantics
//
// Operations on a closed store, or a store without a document, are no-ops.
// Nothing in this package panics into the edit pipeline.
package ghost
