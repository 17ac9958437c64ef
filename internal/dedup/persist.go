package dedup

import (
	"encoding/binary"
	"os"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
	"github.com/chintran27/cdstore-go/internal/kvindex"
	"github.com/chintran27/cdstore-go/internal/wire"
)

// fileRecipeHead is the per-file head record written at the start of a
// file's entries within a recipe file (spec.md §3): {userID, fileSize,
// shareCount}, followed by shareCount x fileRecipeEntry.
type fileRecipeHead struct {
	UserID     int32
	FileSize   int64
	ShareCount int32
}

// rootInodeFP returns the fixed per-user root directory fingerprint.
// DESIGN.md decision D2 treats the per-cloud name-share as an opaque
// lookup key rather than a real path, so there is no multi-component
// directory hierarchy to walk (spec.md §9's open question): every file
// inode hangs directly off its user's single root directory inode.
func (e *Engine) rootInodeFP(userID int32) []byte {
	return e.prim.Hash(append([]byte("root/"), int32Bytes(userID)...))
}

func (e *Engine) fileInodeFP(nameShare []byte, userID int32) []byte {
	return e.prim.Hash(append(append([]byte{}, nameShare...), int32Bytes(userID)...))
}

func int32Bytes(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

// ensureRoot creates userID's root DIR inode if absent, returning its fp.
func (e *Engine) ensureRoot(userID int32) ([]byte, error) {
	fp := e.rootInodeFP(userID)
	_, found, err := e.db.GetInode(fp)
	if err != nil {
		return nil, err
	}
	if !found {
		root := &kvindex.InodeValue{UserID: userID, Kind: kvindex.KindDir, ShortName: "/"}
		if err := e.db.PutInode(fp, root); err != nil {
			return nil, err
		}
	}
	return fp, nil
}

// startNewFile implements spec.md §4.9 step 3: on a file's first round
// (NumPastSecrets == 0), insert/extend the FILE inode with a new version
// head prepended, ensure the root directory references it, and write a
// fresh fileRecipeHead into the recipe buffer.
func (e *Engine) startNewFile(buf *userBuffer, f wire.FileShareMD, userID int32) error {
	rootFP, err := e.ensureRoot(userID)
	if err != nil {
		return err
	}

	fileFP := e.fileInodeFP(f.NameShare, userID)
	inode, found, err := e.db.GetInode(fileFP)
	if err != nil {
		return err
	}
	if !found {
		inode = &kvindex.InodeValue{UserID: userID, Kind: kvindex.KindFile, ShortName: string(f.NameShare)}

		root, _, err := e.db.GetInode(rootFP)
		if err != nil {
			return err
		}
		var asFP [32]byte
		copy(asFP[:], fileFP)
		root.Children = append(root.Children, asFP)
		if err := e.db.PutInode(rootFP, root); err != nil {
			return err
		}
	}

	// The new recipe head lands at the current end of this user's recipe
	// buffer's logical file (on-disk bytes already sealed plus what's
	// pending in the buffer).
	headPos := buf.recipeFileOnDiskLen + int64(buf.recipeBuf.Len())
	inode.Versions = append([]kvindex.FileVersion{{
		RecipeFileName:   buf.recipeFileName,
		RecipeFileOffset: headPos,
	}}, inode.Versions...)
	if err := e.db.PutInode(fileFP, inode); err != nil {
		return err
	}

	buf.pendingHeads[string(fileFP)] = recipeHeadLoc{file: buf.recipeFileName, pos: headPos}

	head := fileRecipeHead{UserID: userID, FileSize: f.Head.FileSize, ShareCount: int32(len(f.Entries))}
	return binary.Write(&buf.recipeBuf, binary.LittleEndian, head)
}

// continueFile implements spec.md §4.9's "append to an old recipe file"
// case: a later round of an already-started file (NumPastSecrets != 0)
// must add this round's entry count to the fileRecipeHead.ShareCount
// written on an earlier round, or restore's recipe walk (which reads
// exactly head.ShareCount entries) silently truncates the file (spec.md §8
// property 9, recipe append invariance).
func (e *Engine) continueFile(buf *userBuffer, f wire.FileShareMD, userID int32) error {
	fileFP := e.fileInodeFP(f.NameShare, userID)
	loc, ok := buf.pendingHeads[string(fileFP)]
	if !ok {
		return cdserrors.New(cdserrors.KindIntegrity, "dedup: continuation round for a file with no known recipe head")
	}
	return e.addToRecipeHeadShareCount(buf, loc, int32(len(f.Entries)))
}

// recipeHeadShareCountOffset is fileRecipeHead.ShareCount's byte offset
// within its encoding: UserID (int32, 4 bytes) + FileSize (int64, 8 bytes).
const recipeHeadShareCountOffset = 12

// addToRecipeHeadShareCount patches a previously written fileRecipeHead's
// ShareCount in place, in the live buffer if its archive hasn't sealed yet,
// or directly on disk (a random-access patch, not an append) if it has.
func (e *Engine) addToRecipeHeadShareCount(buf *userBuffer, loc recipeHeadLoc, delta int32) error {
	countPos := loc.pos + recipeHeadShareCountOffset

	if loc.file == buf.recipeFileName {
		b := buf.recipeBuf.Bytes()
		if countPos < 0 || countPos+4 > int64(len(b)) {
			return cdserrors.New(cdserrors.KindIntegrity, "dedup: recipe head position out of range")
		}
		cur := binary.LittleEndian.Uint32(b[countPos : countPos+4])
		binary.LittleEndian.PutUint32(b[countPos:countPos+4], cur+uint32(delta))
		return nil
	}

	f, err := os.OpenFile(e.recipePath(loc.file), os.O_RDWR, 0o644)
	if err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "dedup: opening sealed recipe file to patch head")
	}
	defer f.Close()

	var raw [4]byte
	if _, err := f.ReadAt(raw[:], countPos); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "dedup: reading sealed recipe head")
	}
	cur := binary.LittleEndian.Uint32(raw[:])
	binary.LittleEndian.PutUint32(raw[:], cur+uint32(delta))
	if _, err := f.WriteAt(raw[:], countPos); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "dedup: patching sealed recipe head")
	}
	return nil
}

// maybeSealOnCompletion implements spec.md §4.9 step 5: once a file's
// cumulative uploaded size reaches its declared fileSize, seal the recipe
// buffer (which also rotates the buffer onto a fresh recipe file name).
func (e *Engine) maybeSealOnCompletion(buf *userBuffer, f wire.FileShareMD, userID int32) error {
	cumulative := f.Head.SizePastSecrets + f.Head.SizeComingSecrets
	if cumulative < f.Head.FileSize {
		return nil
	}
	delete(buf.pendingHeads, string(e.fileInodeFP(f.NameShare, userID)))
	return e.sealRecipeBuffer(buf)
}

// sealRecipeBuffer flushes the pending recipe bytes to buf.recipeFileName
// (append-only) and rotates the buffer onto a freshly allocated name
// (spec.md §4.9: "Sealing a recipe buffer ... After either, rotate the
// buffer's name and reset offsets").
func (e *Engine) sealRecipeBuffer(buf *userBuffer) error {
	if buf.recipeBuf.Len() == 0 {
		return nil
	}
	if err := appendFile(e.recipePath(buf.recipeFileName), buf.recipeBuf.Bytes()); err != nil {
		return err
	}
	if e.onSealRecipe != nil {
		e.onSealRecipe(buf.recipeFileName)
	}
	buf.recipeBuf.Reset()
	buf.recipeFileOnDiskLen = 0
	buf.recipeFileName = e.recipeNames.Next()
	return nil
}

// sealContainerBuffer flushes pending share bodies to
// buf.containerFileName and rotates the buffer onto a fresh name.
func (e *Engine) sealContainerBuffer(buf *userBuffer) error {
	if buf.containerBuf.Len() == 0 {
		return nil
	}
	if err := appendFile(e.containerPath(buf.containerFileName), buf.containerBuf.Bytes()); err != nil {
		return err
	}
	if e.onSealContainer != nil {
		e.onSealContainer(buf.containerFileName)
	}
	buf.containerBuf.Reset()
	buf.containerOnDiskLen = 0
	buf.containerFileName = e.containerNames.Next()
	return nil
}

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "dedup: opening archive file for append")
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "dedup: appending to archive file")
	}
	return nil
}
