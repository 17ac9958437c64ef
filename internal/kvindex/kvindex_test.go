package kvindex

import (
	"path/filepath"
	"testing"
)

func TestInodeAndShareRoundTrip(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "index"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	fp := []byte("0123456789abcdef0123456789abcdef")
	inode := &InodeValue{
		UserID:    7,
		Kind:      KindFile,
		ShortName: "report.pdf",
		Versions: []FileVersion{
			{RecipeFileName: [16]byte{'a', 'a', 'a', 'a', 'a', 'a', 'a', 'a', 'a', 'a', 'a', 'a', 'a', '.', 'r', 'f'}, RecipeFileOffset: 128},
		},
	}
	if err := db.PutInode(fp, inode); err != nil {
		t.Fatal(err)
	}
	got, found, err := db.GetInode(fp)
	if err != nil || !found {
		t.Fatalf("GetInode: found=%v err=%v", found, err)
	}
	if got.ShortName != "report.pdf" || got.UserID != 7 || len(got.Versions) != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	shareFP := []byte("share-fingerprint-bytes-32-long!")
	share := &ShareValue{ShareSize: 4096}
	share.BumpUser(1)
	if err := db.PutShare(shareFP, share); err != nil {
		t.Fatal(err)
	}
	gotShare, found, err := db.GetShare(shareFP)
	if err != nil || !found {
		t.Fatalf("GetShare: found=%v err=%v", found, err)
	}
	if rc, ok := gotShare.UserRefCount(1); !ok || rc != 1 {
		t.Fatalf("user ref count = %d, ok=%v, want 1, true", rc, ok)
	}

	gotShare.BumpUser(2)
	gotShare.BumpUser(1)
	if rc, _ := gotShare.UserRefCount(1); rc != 2 {
		t.Fatalf("ref count after bump = %d, want 2", rc)
	}
	if len(gotShare.Users) != 2 {
		t.Fatalf("users = %+v, want 2 entries", gotShare.Users)
	}
}
