// Package dedup implements the server-side deduplication engine (C9) from
// spec.md §4.9: two-stage (metadata-only, then data) intra- and inter-user
// dedup against internal/kvindex's persistent index, buffered per-user
// recipe/container writers, and the file-recipe bookkeeping that
// internal/restore later walks.
//
// The buffer-aging-and-eviction shape (a transient per-user object, opportunistically
// flushed on a timeout found during unrelated lookups) is grounded on
// restic's internal/cache package, which keeps exactly this kind of
// write-combining local cache with its own eviction sweep.
package dedup

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
	"github.com/chintran27/cdstore-go/internal/kvindex"
	"github.com/chintran27/cdstore-go/internal/primitive"
	"github.com/chintran27/cdstore-go/internal/wire"
)

// Engine is the server-side dedup engine. One Engine instance is shared by
// every connection handler goroutine.
type Engine struct {
	db             *kvindex.DB
	recipeDir      string
	containerDir   string
	recipeNames    *kvindex.NameAllocator
	containerNames *kvindex.NameAllocator
	prim           *primitive.Primitive

	bufMu   sync.Mutex // bufferLock (spec.md §4.9/§5)
	buffers map[int32]*userBuffer

	// onSealRecipe/onSealContainer notify an optional cold-tier cache
	// (C11) once an archive file is sealed and therefore immutable — the
	// point at which it becomes safe to migrate to remote object storage
	// (spec.md §1's "backend storer" collaborator).
	onSealRecipe    func(name [16]byte)
	onSealContainer func(name [16]byte)
}

// Config configures a new Engine; directories are created if absent.
type Config struct {
	IndexDir     string
	RecipeDir    string
	ContainerDir string
	Sec          primitive.Security

	// OnSealRecipe/OnSealContainer are optional hooks invoked with a
	// freshly sealed archive's name, wiring the optional cold-tier cache
	// (internal/coldtier) without the dedup engine depending on it
	// directly.
	OnSealRecipe    func(name [16]byte)
	OnSealContainer func(name [16]byte)
}

// NewEngine opens (or creates) the index and recovers the name allocators
// per DESIGN.md decision D1.
func NewEngine(cfg Config) (*Engine, error) {
	for _, dir := range []string{cfg.IndexDir, cfg.RecipeDir, cfg.ContainerDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, cdserrors.Wrap(cdserrors.KindIO, err, "dedup: creating data directory")
		}
	}

	db, err := kvindex.Open(cfg.IndexDir)
	if err != nil {
		return nil, err
	}

	recipeNames := kvindex.NewNameAllocator(kvindex.RecipeExt)
	if err := recipeNames.Recover(cfg.RecipeDir); err != nil {
		return nil, err
	}
	containerNames := kvindex.NewNameAllocator(kvindex.ContainerExt)
	if err := containerNames.Recover(cfg.ContainerDir); err != nil {
		return nil, err
	}

	return &Engine{
		db:              db,
		recipeDir:       cfg.RecipeDir,
		containerDir:    cfg.ContainerDir,
		recipeNames:     recipeNames,
		containerNames:  containerNames,
		prim:            primitive.New(cfg.Sec),
		buffers:         make(map[int32]*userBuffer),
		onSealRecipe:    cfg.OnSealRecipe,
		onSealContainer: cfg.OnSealContainer,
	}, nil
}

// DB returns the underlying index, shared with internal/restore so both
// engines operate on the same open goleveldb handle instead of contending
// over the data directory's file lock.
func (e *Engine) DB() *kvindex.DB { return e.db }

// LiveRecipeBytes returns the not-yet-sealed bytes of a recipe archive, if
// some user's live buffer currently holds that name. internal/restore
// checks this before falling back to disk (spec.md §4.10): a DOWNLOAD can
// legitimately race an UPLOAD still sitting in memory on the same server
// process, before the archive file has ever been created.
func (e *Engine) LiveRecipeBytes(name [16]byte) ([]byte, bool) {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()
	for _, b := range e.buffers {
		if b.recipeFileName == name {
			return append([]byte(nil), b.recipeBuf.Bytes()...), true
		}
	}
	return nil, false
}

// LiveContainerBytes is LiveRecipeBytes's container-archive counterpart.
// Containers can be shared across users (inter-user dedup), so the name may
// belong to a buffer other than the one the requesting user owns.
func (e *Engine) LiveContainerBytes(name [16]byte) ([]byte, bool) {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()
	for _, b := range e.buffers {
		if b.containerFileName == name {
			return append([]byte(nil), b.containerBuf.Bytes()...), true
		}
	}
	return nil, false
}

// Close flushes every live buffer and closes the index.
func (e *Engine) Close() error {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()
	for _, b := range e.buffers {
		if err := e.sealRecipeBuffer(b); err != nil {
			return err
		}
		if err := e.sealContainerBuffer(b); err != nil {
			return err
		}
	}
	e.buffers = make(map[int32]*userBuffer)
	return e.db.Close()
}

// bufferFor returns userID's live buffer, creating one if needed, and
// opportunistically evicts any other idle buffer found along the way
// (spec.md §4.9's buffer lifecycle).
func (e *Engine) bufferFor(userID int32) (*userBuffer, error) {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()

	now := timeNow()
	for uid, b := range e.buffers {
		if uid == userID {
			continue
		}
		if b.idleFor(now) > time.Duration(MaxBufferWaitSecs)*time.Second {
			if err := e.sealRecipeBuffer(b); err != nil {
				return nil, err
			}
			if err := e.sealContainerBuffer(b); err != nil {
				return nil, err
			}
			delete(e.buffers, uid)
		}
	}

	b, ok := e.buffers[userID]
	if !ok {
		b = newUserBuffer(userID, e.recipeNames.Next(), e.containerNames.Next())
		e.buffers[userID] = b
	}
	b.touch()
	return b, nil
}

// FirstStage implements spec.md §4.9's metadata-only dedup: for each share
// entry, an intra-user duplicate (the user already holds a ref on that
// fingerprint) sets bit=true and bumps the ref count in place; otherwise
// bit=false. No data is consumed.
func (e *Engine) FirstStage(files []wire.FileShareMD, userID int32) ([]bool, error) {
	var bits []bool
	for _, f := range files {
		for _, entry := range f.Entries {
			fp := entry.ShareFP[:e.prim.HashSize()]
			_, wasDuplicate, err := e.db.BumpShareRefIfAlreadyUser(fp, userID)
			if err != nil {
				return nil, err
			}
			bits = append(bits, wasDuplicate)
		}
	}
	return bits, nil
}

// SecondStage implements spec.md §4.9's data-stage dedup. duplicate is the
// bitmap FirstStage returned for the same files slice; bodies holds only
// the bytes for entries whose bit is false, concatenated in order.
func (e *Engine) SecondStage(files []wire.FileShareMD, duplicate []bool, bodies []byte, userID int32) error {
	buf, err := e.bufferFor(userID)
	if err != nil {
		return err
	}

	bitIdx := 0
	bodyOff := 0

	for _, f := range files {
		if err := validateNameShare(f.NameShare); err != nil {
			return err
		}

		if f.Head.NumPastSecrets == 0 {
			if err := e.startNewFile(buf, f, userID); err != nil {
				return err
			}
		} else {
			if err := e.continueFile(buf, f, userID); err != nil {
				return err
			}
		}

		for _, entry := range f.Entries {
			isDup := duplicate[bitIdx]
			bitIdx++

			fp := append([]byte{}, entry.ShareFP[:e.prim.HashSize()]...)

			if !isDup {
				size := int(entry.ShareSize)
				if bodyOff+size > len(bodies) {
					return cdserrors.New(cdserrors.KindBadInput, "dedup: DATA frame shorter than metadata claims")
				}
				body := bodies[bodyOff : bodyOff+size]
				bodyOff += size

				if !bytes.Equal(e.prim.Hash(body), fp) {
					return cdserrors.New(cdserrors.KindBadInput, "dedup: received share hash does not match claimed fingerprint")
				}

				if err := e.ingestNewShare(buf, fp, body, userID); err != nil {
					return err
				}
			}

			if err := e.appendRecipeEntry(buf, fp, entry); err != nil {
				return err
			}
		}

		if err := e.maybeSealOnCompletion(buf, f, userID); err != nil {
			return err
		}
	}

	return nil
}

func validateNameShare(name []byte) error {
	if len(name) == 0 {
		return cdserrors.New(cdserrors.KindBadInput, "dedup: empty name share")
	}
	return nil
}

// ingestNewShare performs the inter-user index update from spec.md §4.9
// step 4b: if the share key already exists, bump the ref (possibly
// appending a new user); otherwise allocate container space and create a
// fresh share-index entry.
func (e *Engine) ingestNewShare(buf *userBuffer, fp, body []byte, userID int32) error {
	existed, _, err := e.db.BumpShareRef(fp, userID)
	if err != nil {
		return err
	}
	if existed {
		return nil
	}

	if buf.containerBuf.Len()+len(body) > ContainerBufferSize {
		if err := e.sealContainerBuffer(buf); err != nil {
			return err
		}
	}

	offset := buf.containerOnDiskLen + int64(buf.containerBuf.Len())
	buf.containerBuf.Write(body)

	return e.db.CreateShare(fp, buf.containerFileName, offset, int32(len(body)), userID)
}

// appendRecipeEntry appends one fileRecipeEntry{shareFP, secretID,
// secretSize} to the recipe buffer, sealing first if it would overflow.
func (e *Engine) appendRecipeEntry(buf *userBuffer, fp []byte, entry wire.ShareMDEntry) error {
	rec := struct {
		SecretID   int32
		SecretSize int32
	}{entry.SecretID, entry.SecretSize}

	size := e.prim.HashSize() + 8
	if buf.recipeBuf.Len()+size > RecipeBufferSize {
		if err := e.sealRecipeBuffer(buf); err != nil {
			return err
		}
	}
	buf.recipeBuf.Write(fp)
	return binary.Write(&buf.recipeBuf, binary.LittleEndian, rec)
}

// sealRecipeBuffer and sealContainerBuffer are defined in persist.go.

// recipePath and containerPath return the on-disk path for an archive name.
func (e *Engine) recipePath(name [16]byte) string    { return filepath.Join(e.recipeDir, trimZero(name[:])) }
func (e *Engine) containerPath(name [16]byte) string { return filepath.Join(e.containerDir, trimZero(name[:])) }

func trimZero(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
