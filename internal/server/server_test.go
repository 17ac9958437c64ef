package server

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/chintran27/cdstore-go/internal/dedup"
	"github.com/chintran27/cdstore-go/internal/primitive"
	"github.com/chintran27/cdstore-go/internal/restore"
	"github.com/chintran27/cdstore-go/internal/wire"
)

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	dir := t.TempDir()
	dedupEngine, err := dedup.NewEngine(dedup.Config{
		IndexDir:     filepath.Join(dir, "index"),
		RecipeDir:    filepath.Join(dir, "recipes"),
		ContainerDir: filepath.Join(dir, "containers"),
		Sec:          primitive.High,
	})
	if err != nil {
		t.Fatal(err)
	}

	restoreEngine, err := restore.NewEngine(dedupEngine.DB(), filepath.Join(dir, "recipes"), filepath.Join(dir, "containers"), primitive.High, dedupEngine)
	if err != nil {
		t.Fatal(err)
	}

	return New(dedupEngine, restoreEngine), func() { dedupEngine.Close() }
}

// TestUploadThenDownloadRoundTrip drives one connection through a full
// META/STAT/DATA upload round, then a DOWNLOAD on the same connection,
// checking the restored bytes match what was uploaded.
func TestUploadThenDownloadRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	clientConn, serverConn := net.Pipe()
	go srv.handleConn(serverConn)
	defer clientConn.Close()

	const userID = int32(7)
	if err := wire.WriteHandshake(clientConn, userID); err != nil {
		t.Fatal(err)
	}

	body := []byte("the quick brown fox jumps over the lazy dog")
	prim := primitive.New(primitive.High)
	var fp [32]byte
	copy(fp[:], prim.Hash(body))

	md := wire.FileShareMD{
		Head: wire.FileShareMDHead{
			FileSize:          int64(len(body)),
			SizeComingSecrets: int64(len(body)),
			NumComingSecrets:  1,
		},
		NameShare: []byte("server-test-name-share"),
		Entries: []wire.ShareMDEntry{
			{ShareFP: fp, SecretID: 0, SecretSize: int32(len(body)), ShareSize: int32(len(body))},
		},
	}
	payload, err := wire.EncodeMeta([]wire.FileShareMD{md})
	if err != nil {
		t.Fatal(err)
	}
	if err := wire.WriteFrame(clientConn, wire.TagMETA, payload); err != nil {
		t.Fatal(err)
	}
	duplicate, err := wire.ReadStat(clientConn)
	if err != nil {
		t.Fatal(err)
	}
	if len(duplicate) != 1 || duplicate[0] {
		t.Fatalf("duplicate bitmap = %v, want [false]", duplicate)
	}
	if err := wire.WriteFrame(clientConn, wire.TagDATA, body); err != nil {
		t.Fatal(err)
	}

	if err := wire.WriteFrame(clientConn, wire.TagDOWNLOAD, md.NameShare); err != nil {
		t.Fatal(err)
	}

	frame, err := wire.ReadRestoreFrame(clientConn)
	if err != nil {
		t.Fatal(err)
	}
	head, _, bodies, err := wire.DecodeRestoreFrame(frame, true)
	if err != nil {
		t.Fatal(err)
	}
	if head.NumOfShares != 1 {
		t.Fatalf("NumOfShares = %d, want 1", head.NumOfShares)
	}
	if len(bodies) != 1 || string(bodies[0]) != string(body) {
		t.Fatalf("restored body = %q, want %q", bodies, body)
	}
}
