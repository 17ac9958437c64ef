package dedup

import (
	"bytes"
	"time"
)

// MaxBufferWaitSecs is the idle timeout after which a per-user buffer is
// flushed and evicted (spec.md §3/§5): 1800 seconds.
const MaxBufferWaitSecs = 1800

// RecipeBufferSize and ContainerBufferSize are the per-user buffer
// capacities from spec.md §6's client/server defaults.
const (
	RecipeBufferSize    = 4 * 1024 * 1024
	ContainerBufferSize = 4 * 1024 * 1024
)

// recipeHeadLoc records where a file's fileRecipeHead currently lives: the
// archive name it was written into and its byte offset within that
// archive's logical contents. A later round on the same file (spec.md
// §4.9's "append to an old recipe file" case) uses this to patch
// ShareCount in place, whether that archive is still sitting in the live
// buffer or has already been sealed to disk.
type recipeHeadLoc struct {
	file [16]byte
	pos  int64
}

// userBuffer is the transient, per-user write-combining buffer described in
// spec.md §3: a recipe buffer, a container buffer, the current archive
// names, the locations of any still-open files' recipe heads, and a
// last-used timestamp.
type userBuffer struct {
	userID int32

	recipeBuf    bytes.Buffer
	containerBuf bytes.Buffer

	recipeFileName    [16]byte
	containerFileName [16]byte

	// recipeFileOnDiskLen is how many bytes of recipeFileName already
	// exist on disk (0 for a brand new file); recipeBuf holds only the
	// bytes not yet sealed.
	recipeFileOnDiskLen int64
	containerOnDiskLen  int64

	// pendingHeads tracks, per file inode fingerprint (string-keyed since
	// the fingerprint size depends on the security level), the head
	// location of every file that has started but not yet completed —
	// a batch can interleave entries from more than one such file.
	pendingHeads map[string]recipeHeadLoc

	lastUsed time.Time
}

func newUserBuffer(userID int32, recipeName, containerName [16]byte) *userBuffer {
	return &userBuffer{
		userID:            userID,
		recipeFileName:    recipeName,
		containerFileName: containerName,
		pendingHeads:      make(map[string]recipeHeadLoc),
		lastUsed:          timeNow(),
	}
}

func (b *userBuffer) touch() { b.lastUsed = timeNow() }

func (b *userBuffer) idleFor(now time.Time) time.Duration {
	return now.Sub(b.lastUsed)
}

// timeNow is a seam so tests can control buffer aging deterministically.
var timeNow = time.Now
