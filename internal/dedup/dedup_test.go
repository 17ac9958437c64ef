package dedup

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/chintran27/cdstore-go/internal/primitive"
	"github.com/chintran27/cdstore-go/internal/wire"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := NewEngine(Config{
		IndexDir:     filepath.Join(dir, "index"),
		RecipeDir:    filepath.Join(dir, "recipes"),
		ContainerDir: filepath.Join(dir, "containers"),
		Sec:          primitive.High,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func shareMD(prim *primitive.Primitive, nameShare string, body []byte, fileSize int64) wire.FileShareMD {
	var fp [32]byte
	copy(fp[:], prim.Hash(body))
	return wire.FileShareMD{
		Head: wire.FileShareMDHead{
			FileSize:          fileSize,
			SizeComingSecrets: int64(len(body)),
		},
		NameShare: []byte(nameShare),
		Entries: []wire.ShareMDEntry{
			{ShareFP: fp, SecretID: 0, SecretSize: int32(len(body)), ShareSize: int32(len(body))},
		},
	}
}

// Grounded on spec.md §8 property 7 / scenario S5: re-uploading the same
// file as the same user carries zero new bytes on the second round. A
// second user uploading the identical content gets first-stage bit=false
// (the share is new to that user) and so sends the body again; the second
// stage then finds the existing share and bumps its userCount to 2.
func TestDedupAcrossUsers(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()
	prim := primitive.New(primitive.High)
	body := bytes.Repeat([]byte{0xAB}, 4096)

	md1 := shareMD(prim, "cloud0-name-share-userA", body, int64(len(body)))
	dup1, err := e.FirstStage([]wire.FileShareMD{md1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if dup1[0] {
		t.Fatal("first upload should not be flagged duplicate")
	}
	if err := e.SecondStage([]wire.FileShareMD{md1}, dup1, body, 1); err != nil {
		t.Fatal(err)
	}

	// Re-upload by the same user: first stage should now report an
	// intra-user duplicate, and second stage gets zero bytes.
	md1Again := shareMD(prim, "cloud0-name-share-userA", body, int64(len(body)))
	dup2, err := e.FirstStage([]wire.FileShareMD{md1Again}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !dup2[0] {
		t.Fatal("re-upload by the same user should be flagged duplicate")
	}
	if err := e.SecondStage([]wire.FileShareMD{md1Again}, dup2, nil, 1); err != nil {
		t.Fatal(err)
	}

	// A second user uploads identical content through a different
	// name-share: first-stage bit is false (new to user 2) even though the
	// share body already exists server-wide.
	md2 := shareMD(prim, "cloud0-name-share-userB", body, int64(len(body)))
	dup3, err := e.FirstStage([]wire.FileShareMD{md2}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if dup3[0] {
		t.Fatal("user 2's first reference should not be an intra-user duplicate")
	}
	if err := e.SecondStage([]wire.FileShareMD{md2}, dup3, body, 2); err != nil {
		t.Fatal(err)
	}

	fp := prim.Hash(body)
	share, found, err := e.db.GetShare(fp)
	if err != nil || !found {
		t.Fatalf("share lookup: found=%v err=%v", found, err)
	}
	if len(share.Users) != 2 {
		t.Fatalf("userCount = %d, want 2", len(share.Users))
	}
}
