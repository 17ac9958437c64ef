// Package kvindex implements the persistent ordered key-value index from
// spec.md §3/§4.9: two logical namespaces ('0'+inode_fp, '1'+share_fp)
// inside one ordered store, with a single DBLock serializing every
// read-modify-write the way spec.md §5 requires ("no read-modify-write
// executes without holding it").
//
// The store itself is goleveldb, the same embedded LSM key-value engine
// restic's local cache layer and dolt's storage layer both build on in the
// retrieval pack — an ordered KV store is exactly what spec.md's one-byte-
// prefixed namespace scheme needs (lexicographic key ordering, no schema).
package kvindex

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
)

const (
	prefixInode = '0'
	prefixShare = '1'
)

// DB is the server's persistent index. All reads and writes are serialized
// by mu (spec.md §5: "strictly serialized by DBLock").
type DB struct {
	mu  sync.Mutex
	ldb *leveldb.DB
}

// Open opens (or creates) the LevelDB-backed index at path.
func Open(path string) (*DB, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: opening index")
	}
	return &DB{ldb: ldb}, nil
}

// Close releases the underlying store.
func (db *DB) Close() error {
	return db.ldb.Close()
}

func inodeKey(fp []byte) []byte {
	return append([]byte{prefixInode}, fp...)
}

func shareKey(fp []byte) []byte {
	return append([]byte{prefixShare}, fp...)
}

// GetInode looks up the inode keyed by fp. found is false if absent.
func (db *DB) GetInode(fp []byte) (v *InodeValue, found bool, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.getInodeLocked(fp)
}

func (db *DB) getInodeLocked(fp []byte) (*InodeValue, bool, error) {
	raw, err := db.ldb.Get(inodeKey(fp), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: get inode")
	}
	v, err := DecodeInodeValue(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// PutInode writes (overwrites) the inode keyed by fp.
func (db *DB) PutInode(fp []byte, v *InodeValue) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.putInodeLocked(fp, v)
}

func (db *DB) putInodeLocked(fp []byte, v *InodeValue) error {
	raw, err := v.Encode()
	if err != nil {
		return err
	}
	if err := db.ldb.Put(inodeKey(fp), raw, nil); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: put inode")
	}
	return nil
}

// GetShare looks up the share-index entry keyed by fp.
func (db *DB) GetShare(fp []byte) (v *ShareValue, found bool, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.getShareLocked(fp)
}

func (db *DB) getShareLocked(fp []byte) (*ShareValue, bool, error) {
	raw, err := db.ldb.Get(shareKey(fp), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: get share")
	}
	v, err := DecodeShareValue(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// PutShare writes (overwrites) the share-index entry keyed by fp.
func (db *DB) PutShare(fp []byte, v *ShareValue) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.putShareLocked(fp, v)
}

func (db *DB) putShareLocked(fp []byte, v *ShareValue) error {
	raw, err := v.Encode()
	if err != nil {
		return err
	}
	if err := db.ldb.Put(shareKey(fp), raw, nil); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: put share")
	}
	return nil
}

// BatchDeletePut atomically deletes oldKey (if non-nil) and writes newKey =
// newValue in one LevelDB batch. This is the "batched delete old entry +
// put new entry together" write restic-style index rewrites use, as a real
// batch primitive instead of the source project's non-atomic combined write
// (spec.md §9).
func (db *DB) BatchDeletePut(oldKey, newKey, newValue []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	batch := new(leveldb.Batch)
	if oldKey != nil {
		batch.Delete(oldKey)
	}
	batch.Put(newKey, newValue)
	if err := db.ldb.Write(batch, nil); err != nil {
		return cdserrors.Wrap(cdserrors.KindFatal, err, "kvindex: batched write")
	}
	return nil
}

// BumpShareRef increments userID's ref count on the share keyed by fp if
// the share already exists, appending a new ref entry if userID wasn't yet
// present. existed reports whether the share was found at all; alreadyUser
// reports whether userID already held a ref before this call. The
// first-stage check uses BumpShareRefIfAlreadyUser instead.
func (db *DB) BumpShareRef(fp []byte, userID int32) (existed, alreadyUser bool, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	v, found, err := db.getShareLocked(fp)
	if err != nil || !found {
		return false, false, err
	}
	_, alreadyUser = v.UserRefCount(userID)
	v.BumpUser(userID)
	if err := db.putShareLocked(fp, v); err != nil {
		return true, alreadyUser, err
	}
	return true, alreadyUser, nil
}

// BumpShareRefIfAlreadyUser implements the first-stage, metadata-only
// dedup check from spec.md §4.9: it bumps userID's ref count only when
// userID already holds one (the intra-user duplicate case); a share that
// exists but is new to userID is left untouched (the caller's second
// stage handles that inter-user case once the body arrives).
func (db *DB) BumpShareRefIfAlreadyUser(fp []byte, userID int32) (existed, wasDuplicate bool, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	v, found, err := db.getShareLocked(fp)
	if err != nil || !found {
		return found, false, err
	}
	_, already := v.UserRefCount(userID)
	if !already {
		return true, false, nil
	}
	v.BumpUser(userID)
	if err := db.putShareLocked(fp, v); err != nil {
		return true, true, err
	}
	return true, true, nil
}

// CreateShare writes a brand-new share-index entry with a single ref for
// userID. It does not fail if one already exists: it overwrites it, so
// callers must already know that fp is absent (internal/dedup learns this
// from BumpShareRef's existed result).
func (db *DB) CreateShare(fp []byte, containerName [16]byte, containerOffset int64, shareSize int32, userID int32) error {
	v := &ShareValue{ContainerName: containerName, ContainerOffset: containerOffset, ShareSize: shareSize}
	v.BumpUser(userID)
	return db.PutShare(fp, v)
}

// InodeKey and ShareKey expose the namespaced key encoding for callers
// that need to build BatchDeletePut arguments.
func InodeKey(fp []byte) []byte { return inodeKey(fp) }
func ShareKey(fp []byte) []byte { return shareKey(fp) }
