package pipeline

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/chintran27/cdstore-go/internal/chunker"
	"github.com/chintran27/cdstore-go/internal/dispersal"
	"github.com/chintran27/cdstore-go/internal/primitive"
	"github.com/chintran27/cdstore-go/internal/wire"
)

// TestRunEncodeOnly exercises the chunk->encode path with no uploaders
// wired, confirming the "encoding-only" mode spec.md §9 calls out runs the
// identical chunker/encoder path as a production run.
func TestRunEncodeOnly(t *testing.T) {
	chk, err := chunker.New(chunker.DefaultParams)
	if err != nil {
		t.Fatal(err)
	}
	codec, err := dispersal.New(dispersal.Params{N: 4, M: 1, R: 2, Variant: dispersal.CAONTRS, Sec: primitive.High})
	if err != nil {
		t.Fatal(err)
	}

	data := bytes.Repeat([]byte("cdstore "), 4096)
	err = RunEncode(context.Background(), data, EncodeConfig{
		Chunker:    chk,
		Codec:      codec,
		FullPath:   "/tmp/f",
		EncodeOnly: true,
	})
	if err != nil {
		t.Fatal(err)
	}
}

// fakeCloudServer answers exactly one cloud's upload rounds: every META's
// shares are reported non-duplicate, and the DATA bytes are stored so a
// later DOWNLOAD can stream them back as -5 frames, round-tripping the
// wire protocol end to end without internal/dedup or internal/restore.
type fakeCloudServer struct {
	conn    net.Conn
	entries []wire.ShareMDEntry
	bodies  [][]byte
	size    int64
}

func (s *fakeCloudServer) serveUploads(t *testing.T, rounds int) {
	t.Helper()
	for i := 0; i < rounds; i++ {
		tag, payload, err := wire.ReadFrame(s.conn)
		if err != nil {
			t.Fatal(err)
		}
		if tag != wire.TagMETA {
			t.Fatalf("round %d: tag = %v, want META", i, tag)
		}
		files, _, err := wire.DecodeMeta(payload)
		if err != nil {
			t.Fatal(err)
		}
		md := files[0]
		s.size = md.Head.FileSize
		duplicate := make([]bool, len(md.Entries))
		if err := wire.WriteStat(s.conn, duplicate); err != nil {
			t.Fatal(err)
		}

		dataTag, dataPayload, err := wire.ReadFrame(s.conn)
		if err != nil {
			t.Fatal(err)
		}
		if dataTag != wire.TagDATA {
			t.Fatalf("round %d: tag = %v, want DATA", i, dataTag)
		}

		off := 0
		for _, e := range md.Entries {
			body := dataPayload[off : off+int(e.ShareSize)]
			off += int(e.ShareSize)
			s.entries = append(s.entries, e)
			s.bodies = append(s.bodies, append([]byte{}, body...))
		}
	}
}

func (s *fakeCloudServer) serveDownload(t *testing.T) {
	t.Helper()
	tag, _, err := wire.ReadFrame(s.conn)
	if err != nil {
		t.Fatal(err)
	}
	if tag != wire.TagDOWNLOAD {
		t.Fatalf("tag = %v, want DOWNLOAD", tag)
	}

	head := wire.ShareFileHead{NumOfShares: int32(len(s.entries)), FileSize: s.size}
	shareEntries := make([]wire.ShareEntry, len(s.entries))
	for i, e := range s.entries {
		shareEntries[i] = wire.ShareEntry{SecretID: e.SecretID, SecretSize: e.SecretSize, ShareSize: e.ShareSize}
	}
	frame, err := wire.EncodeRestoreFrame(&head, shareEntries, s.bodies)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.conn.Write(frame); err != nil {
		t.Fatal(err)
	}
}

// TestEncodeDecodeRoundTrip drives two clouds' connections through
// CloudUploader, then replays each cloud's captured shares through a
// Downloader, checking RunDecode reconstructs the original plaintext from
// the minimum k=2 shares (N=3, M=1, R=1).
func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec, err := dispersal.New(dispersal.Params{N: 3, M: 1, R: 1, Variant: dispersal.CAONTRS, Sec: primitive.High})
	if err != nil {
		t.Fatal(err)
	}
	chk, err := chunker.New(chunker.Params{Min: 64, Avg: 128, Max: 256, WinSize: 16})
	if err != nil {
		t.Fatal(err)
	}
	prim := primitive.New(primitive.High)

	data := bytes.Repeat([]byte("0123456789abcdef"), 64)

	const k = 2
	clientConns := make([]net.Conn, k)
	servers := make([]*fakeCloudServer, k)
	done := make(chan struct{}, k)
	for i := 0; i < k; i++ {
		clientConn, serverConn := net.Pipe()
		clientConns[i] = clientConn
		servers[i] = &fakeCloudServer{conn: serverConn}
		go func(s *fakeCloudServer) {
			s.serveUploads(t, 1)
			done <- struct{}{}
		}(servers[i])
	}

	uploaders := make([]*CloudUploader, k)
	for i := range uploaders {
		uploaders[i] = NewCloudUploader(clientConns[i], i, prim)
	}

	err = RunEncode(context.Background(), data, EncodeConfig{
		Chunker:   chk,
		Codec:     codec,
		FullPath:  "/tmp/roundtrip",
		Uploaders: uploaders,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < k; i++ {
		<-done
		clientConns[i].Close()
	}

	downloaders := make([]*Downloader, k)
	shareIDs := make([]int, k)
	for i := 0; i < k; i++ {
		downClient, downServer := net.Pipe()
		servers[i].conn = downServer
		go servers[i].serveDownload(t)

		dl, err := NewDownloader(downClient, []byte("unused-name-share"))
		if err != nil {
			t.Fatal(err)
		}
		downloaders[i] = dl
		shareIDs[i] = i
	}

	var out bytes.Buffer
	err = RunDecode(context.Background(), DecodeConfig{
		Codec:       codec,
		Downloaders: downloaders,
		ShareIDs:    shareIDs,
		Writer:      &out,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatalf("decoded %d bytes, want %d bytes matching input", out.Len(), len(data))
	}
}
