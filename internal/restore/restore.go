// Package restore implements the restore engine (C10) from spec.md §4.10:
// walking a file's recipe, gathering share bodies through a container LRU
// cache, and streaming them back as -5 frames.
//
// The LRU-cache-over-append-only-archives shape is grounded on restic's
// internal/bloblru (a generic, size-bounded LRU used to cache decoded
// blobs) — the Engine's containers LRU below is the same idea applied to
// whole container files instead of individual blobs.
package restore

import (
	"encoding/binary"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
	"github.com/chintran27/cdstore-go/internal/kvindex"
	"github.com/chintran27/cdstore-go/internal/primitive"
	"github.com/chintran27/cdstore-go/internal/wire"
)

// ContainerCacheSize is the number of whole containers kept resident
// (spec.md §4.10: "an LRU of up to 4 container caches (each 4 MiB)").
const ContainerCacheSize = 4

// SendBufferSize is the accumulation buffer flushed as one -5 frame once it
// would overflow (spec.md §4.10).
const SendBufferSize = 4 * 1024 * 1024

// LiveArchiveSource is implemented by *dedup.Engine. A DOWNLOAD can
// legitimately race an UPLOAD still sitting in a per-user write buffer on
// the same server process (spec.md §4.10's literal "fetch either from the
// live per-user buffer (if the name matches) or from disk" rule), so Engine
// checks one of these before ever touching the archive directories. A nil
// source means always read from disk, which is fine for an Engine opened
// against a fully sealed, already-closed dedup engine (as in tests).
type LiveArchiveSource interface {
	LiveRecipeBytes(name [16]byte) ([]byte, bool)
	LiveContainerBytes(name [16]byte) ([]byte, bool)
}

// Engine answers DOWNLOAD requests by walking a file's recipe and its
// share-index entries.
type Engine struct {
	db           *kvindex.DB
	recipeDir    string
	containerDir string
	prim         *primitive.Primitive
	containers   *lru.Cache[[16]byte, []byte]
	live         LiveArchiveSource
}

// NewEngine constructs a restore Engine backed by the given index and
// archive directories. live may be nil if there is no concurrently running
// dedup engine to race against.
func NewEngine(db *kvindex.DB, recipeDir, containerDir string, sec primitive.Security, live LiveArchiveSource) (*Engine, error) {
	cache, err := lru.New[[16]byte, []byte](ContainerCacheSize)
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindFatal, err, "restore: creating container cache")
	}
	return &Engine{
		db:           db,
		recipeDir:    recipeDir,
		containerDir: containerDir,
		prim:         primitive.New(sec),
		containers:   cache,
		live:         live,
	}, nil
}

// fileInodeFP mirrors internal/dedup's fileInodeFP (decision D2: the
// per-cloud name-share is the opaque identity key).
func (e *Engine) fileInodeFP(nameShare []byte, userID int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(userID))
	return e.prim.Hash(append(append([]byte{}, nameShare...), b...))
}

// recipeRecord is one decoded fileRecipeEntry (spec.md §3): a share
// fingerprint plus its secret's identity and size.
type recipeRecord struct {
	ShareFP    []byte
	SecretID   int32
	SecretSize int32
}

// Restore walks the requested file's newest (or selected) version's recipe
// and returns the sequence of wire frames to send back to the client
// (spec.md §4.10). version 0 selects the newest.
func (e *Engine) Restore(nameShare []byte, userID int32, version int) ([][]byte, error) {
	fileFP := e.fileInodeFP(nameShare, userID)
	inode, found, err := e.db.GetInode(fileFP)
	if err != nil {
		return nil, err
	}
	if !found || inode.Kind != kvindex.KindFile {
		return nil, cdserrors.New(cdserrors.KindNotFound, "restore: no such file for user")
	}
	if version < 0 || version >= len(inode.Versions) {
		return nil, cdserrors.New(cdserrors.KindNotFound, "restore: no such version")
	}
	fv := inode.Versions[version]

	records, fileSize, err := e.readRecipe(fv.RecipeFileName, fv.RecipeFileOffset, userID)
	if err != nil {
		return nil, err
	}

	var frames [][]byte
	var entries []wire.ShareEntry
	var bodies [][]byte
	pending := 0
	head := &wire.ShareFileHead{NumOfShares: int32(len(records)), FileSize: fileSize}

	flush := func() error {
		if len(entries) == 0 {
			return nil
		}
		frame, err := wire.EncodeRestoreFrame(head, entries, bodies)
		if err != nil {
			return err
		}
		head = nil
		frames = append(frames, frame)
		entries, bodies, pending = nil, nil, 0
		return nil
	}

	for _, rec := range records {
		share, found, err := e.db.GetShare(rec.ShareFP)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, cdserrors.New(cdserrors.KindNotFound, "restore: share index entry missing")
		}

		body, err := e.fetchShare(share.ContainerName, share.ContainerOffset, int(share.ShareSize))
		if err != nil {
			return nil, err
		}

		if pending+int(share.ShareSize) > SendBufferSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		entries = append(entries, wire.ShareEntry{SecretID: rec.SecretID, SecretSize: rec.SecretSize, ShareSize: share.ShareSize})
		bodies = append(bodies, body)
		pending += int(share.ShareSize)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return frames, nil
}

// fetchShare returns shareSize bytes at offset within the named container:
// the live write buffer first (never cached, since it keeps changing),
// falling back to the container LRU and then disk for sealed containers.
func (e *Engine) fetchShare(name [16]byte, offset int64, shareSize int) ([]byte, error) {
	if e.live != nil {
		if data, ok := e.live.LiveContainerBytes(name); ok {
			return sliceShare(data, offset, shareSize, "restore: share range out of live container bounds")
		}
	}

	data, ok := e.containers.Get(name)
	if !ok {
		raw, err := os.ReadFile(filepath.Join(e.containerDir, trimZero(name[:])))
		if err != nil {
			return nil, cdserrors.Wrap(cdserrors.KindIO, err, "restore: reading container")
		}
		data = raw
		e.containers.Add(name, data)
	}
	return sliceShare(data, offset, shareSize, "restore: share range out of container bounds")
}

func sliceShare(data []byte, offset int64, shareSize int, outOfBoundsMsg string) ([]byte, error) {
	if offset < 0 || int(offset)+shareSize > len(data) {
		return nil, cdserrors.New(cdserrors.KindIO, outOfBoundsMsg)
	}
	out := make([]byte, shareSize)
	copy(out, data[offset:int(offset)+shareSize])
	return out, nil
}

func trimZero(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
