package wire

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	payload := []byte("hello, share")
	if err := WriteFrame(buf, TagDATA, payload); err != nil {
		t.Fatal(err)
	}

	tag, got, err := ReadFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	if tag != TagDATA {
		t.Fatalf("tag = %v, want %v", tag, TagDATA)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
}

func TestStatRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	bitmap := []bool{true, false, false, true, true}
	if err := WriteStat(buf, bitmap); err != nil {
		t.Fatal(err)
	}
	got, err := ReadStat(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(bitmap) {
		t.Fatalf("got %d entries, want %d", len(got), len(bitmap))
	}
	for i := range bitmap {
		if got[i] != bitmap[i] {
			t.Fatalf("bit %d = %v, want %v", i, got[i], bitmap[i])
		}
	}
}

func TestMetaRoundTrip(t *testing.T) {
	files := []FileShareMD{
		{
			Head:      FileShareMDHead{FileSize: 1024},
			NameShare: []byte("cloud0-name-share"),
			Entries: []ShareMDEntry{
				{SecretID: 0, SecretSize: 512, ShareSize: 256},
				{SecretID: 1, SecretSize: 512, ShareSize: 256},
			},
		},
	}

	payload, err := EncodeMeta(files)
	if err != nil {
		t.Fatal(err)
	}
	got, total, err := DecodeMeta(payload)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Fatalf("total shares = %d, want 2", total)
	}
	if len(got) != 1 || string(got[0].NameShare) != "cloud0-name-share" {
		t.Fatalf("decoded files mismatch: %+v", got)
	}
	if got[0].Head.FileSize != 1024 {
		t.Fatalf("file size = %d, want 1024", got[0].Head.FileSize)
	}
	if len(got[0].Entries) != 2 || got[0].Entries[1].SecretID != 1 {
		t.Fatalf("entries mismatch: %+v", got[0].Entries)
	}
}

func TestRestoreFrameEncoding(t *testing.T) {
	head := &ShareFileHead{NumOfShares: 3, FileSize: 9000}
	entries := []ShareEntry{
		{SecretID: 0, SecretSize: 100, ShareSize: 4},
		{SecretID: 1, SecretSize: 100, ShareSize: 4},
	}
	bodies := [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}}

	frame, err := EncodeRestoreFrame(head, entries, bodies)
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) == 0 {
		t.Fatal("empty frame")
	}
}
