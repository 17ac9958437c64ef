package restore

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
)

// fileRecipeHead mirrors internal/dedup's fileRecipeHead: {userID, fileSize,
// shareCount}, written once at the start of a file's entries within a
// recipe file.
type fileRecipeHead struct {
	UserID     int32
	FileSize   int64
	ShareCount int32
}

// recipeEntryTail mirrors the {secretID, secretSize} pair internal/dedup's
// appendRecipeEntry writes after each share fingerprint.
type recipeEntryTail struct {
	SecretID   int32
	SecretSize int32
}

// readRecipe reads a file's fileRecipeHead and its shareCount entries
// starting at offset within the named recipe archive: the live write
// buffer first (if name hasn't sealed to disk yet), falling back to disk.
func (e *Engine) readRecipe(name [16]byte, offset int64, userID int32) ([]recipeRecord, int64, error) {
	raw, err := e.loadRecipeArchive(name)
	if err != nil {
		return nil, 0, err
	}
	if offset < 0 || offset > int64(len(raw)) {
		return nil, 0, cdserrors.New(cdserrors.KindIO, "restore: recipe offset out of bounds")
	}

	r := bytes.NewReader(raw[offset:])
	var head fileRecipeHead
	if err := binary.Read(r, binary.LittleEndian, &head); err != nil {
		return nil, 0, cdserrors.Wrap(cdserrors.KindIO, err, "restore: decoding recipe head")
	}
	if head.UserID != userID {
		return nil, 0, cdserrors.New(cdserrors.KindIntegrity, "restore: recipe head belongs to a different user")
	}

	fpSize := e.prim.HashSize()
	records := make([]recipeRecord, 0, head.ShareCount)
	for i := int32(0); i < head.ShareCount; i++ {
		fp := make([]byte, fpSize)
		if _, err := io.ReadFull(r, fp); err != nil {
			return nil, 0, cdserrors.Wrap(cdserrors.KindIO, err, "restore: reading recipe entry fingerprint")
		}
		var tail recipeEntryTail
		if err := binary.Read(r, binary.LittleEndian, &tail); err != nil {
			return nil, 0, cdserrors.Wrap(cdserrors.KindIO, err, "restore: decoding recipe entry tail")
		}
		records = append(records, recipeRecord{ShareFP: fp, SecretID: tail.SecretID, SecretSize: tail.SecretSize})
	}

	return records, head.FileSize, nil
}

// loadRecipeArchive returns the full contents of a recipe archive by name,
// preferring a live, not-yet-sealed buffer over the archive directory.
func (e *Engine) loadRecipeArchive(name [16]byte) ([]byte, error) {
	if e.live != nil {
		if data, ok := e.live.LiveRecipeBytes(name); ok {
			return data, nil
		}
	}
	raw, err := os.ReadFile(filepath.Join(e.recipeDir, trimZero(name[:])))
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "restore: reading recipe archive")
	}
	return raw, nil
}
