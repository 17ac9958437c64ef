// Package coldtier implements the optional cold-tier cache collaborator
// (C11) from spec.md §4.11: a local write-back cache directory over a
// pluggable remote object store, with an asynchronous storer worker and an
// LRU-evicting cache-updater worker.
//
// The Backend interface mirrors the narrow Save/Load contract every one of
// restic's storage backends (internal/backend/{s3,azure,gs,sftp}) exposes
// underneath its richer restic.Backend API — spec.md §1 explicitly scopes
// this collaborator down to "an opaque append(name)/open(name) -> stream
// interface", so coldtier.Backend keeps only that much surface and lets
// each concrete backend below own its own SDK client and retry policy.
package coldtier

import (
	"context"
	"io"
)

// Backend is the opaque remote object store contract spec.md §4.11/§1
// describes: append a named blob, or open a stream to read one back.
type Backend interface {
	// Upload writes the full contents of r under name, creating or
	// overwriting it.
	Upload(ctx context.Context, name string, r io.Reader) error
	// Download opens a stream over name's current contents. The caller
	// must close it.
	Download(ctx context.Context, name string) (io.ReadCloser, error)
}
