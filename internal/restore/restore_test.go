package restore

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/chintran27/cdstore-go/internal/dedup"
	"github.com/chintran27/cdstore-go/internal/kvindex"
	"github.com/chintran27/cdstore-go/internal/primitive"
	"github.com/chintran27/cdstore-go/internal/wire"
)

func TestRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	indexDir := filepath.Join(dir, "index")
	recipeDir := filepath.Join(dir, "recipes")
	containerDir := filepath.Join(dir, "containers")

	eng, err := dedup.NewEngine(dedup.Config{
		IndexDir:     indexDir,
		RecipeDir:    recipeDir,
		ContainerDir: containerDir,
		Sec:          primitive.High,
	})
	if err != nil {
		t.Fatal(err)
	}

	prim := primitive.New(primitive.High)
	body := bytes.Repeat([]byte{0x11, 0x22}, 2048)
	var fp [32]byte
	copy(fp[:], prim.Hash(body))

	md := wire.FileShareMD{
		Head: wire.FileShareMDHead{
			FileSize:          int64(len(body)),
			SizeComingSecrets: int64(len(body)),
		},
		NameShare: []byte("cloud0-name-share-userA"),
		Entries: []wire.ShareMDEntry{
			{ShareFP: fp, SecretID: 0, SecretSize: int32(len(body)), ShareSize: int32(len(body))},
		},
	}

	dup, err := eng.FirstStage([]wire.FileShareMD{md}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.SecondStage([]wire.FileShareMD{md}, dup, body, 1); err != nil {
		t.Fatal(err)
	}
	if err := eng.Close(); err != nil {
		t.Fatal(err)
	}

	db, err := kvindex.Open(indexDir)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	restoreEng, err := NewEngine(db, recipeDir, containerDir, primitive.High, nil)
	if err != nil {
		t.Fatal(err)
	}

	frames, err := restoreEng.Restore([]byte("cloud0-name-share-userA"), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) == 0 {
		t.Fatal("expected at least one restore frame")
	}
}
