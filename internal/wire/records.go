package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
)

// FileShareMDHead is the per-file header at the front of a META payload
// (spec.md §6): fullNameLen, fileSize, the running tally of secrets sent in
// prior upload rounds for this file, and the count/size of secrets in the
// current round.
type FileShareMDHead struct {
	FullNameLen        int32
	FileSize           int64
	NumPastSecrets     int32
	SizePastSecrets    int64
	NumComingSecrets   int32
	SizeComingSecrets  int64
}

// ShareMDEntry describes one share within a META payload: its claimed
// fingerprint, the secret it belongs to, and both the plaintext secret's
// size and the share's own size.
type ShareMDEntry struct {
	ShareFP    [32]byte // only the first primitive.HashSize() bytes are meaningful
	SecretID   int32
	SecretSize int32
	ShareSize  int32
}

// FileShareMD is one file's worth of metadata within a META payload: the
// header, the per-cloud name-share standing in for the plaintext path
// (decision D2 in DESIGN.md), and the share entries for the current round.
type FileShareMD struct {
	Head      FileShareMDHead
	NameShare []byte
	Entries   []ShareMDEntry
}

// EncodeMeta serializes a sequence of FileShareMD records into one META
// payload, per spec.md §6's grammar:
//
//	[fileShareMDHead ‖ nameShare[fullNameLen] ‖ shareMDEntry{...}xN]...
func EncodeMeta(files []FileShareMD) ([]byte, error) {
	buf := &bytes.Buffer{}
	for _, f := range files {
		f.Head.FullNameLen = int32(len(f.NameShare))
		f.Head.NumComingSecrets = int32(len(f.Entries))
		if err := binary.Write(buf, binary.LittleEndian, f.Head); err != nil {
			return nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: encoding file header")
		}
		buf.Write(f.NameShare)
		for _, e := range f.Entries {
			if err := binary.Write(buf, binary.LittleEndian, e); err != nil {
				return nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: encoding share metadata entry")
			}
		}
	}
	return buf.Bytes(), nil
}

// DecodeMeta is the inverse of EncodeMeta. totalShares is the sum of all
// files' entry counts, handy for sizing the STAT bitmap.
func DecodeMeta(payload []byte) (files []FileShareMD, totalShares int, err error) {
	r := bytes.NewReader(payload)
	for r.Len() > 0 {
		var f FileShareMD
		if err := binary.Read(r, binary.LittleEndian, &f.Head); err != nil {
			return nil, 0, cdserrors.Wrap(cdserrors.KindIO, err, "wire: decoding file header")
		}
		f.NameShare = make([]byte, f.Head.FullNameLen)
		if _, err := io.ReadFull(r, f.NameShare); err != nil {
			return nil, 0, cdserrors.Wrap(cdserrors.KindIO, err, "wire: decoding name share")
		}
		f.Entries = make([]ShareMDEntry, f.Head.NumComingSecrets)
		for i := range f.Entries {
			if err := binary.Read(r, binary.LittleEndian, &f.Entries[i]); err != nil {
				return nil, 0, cdserrors.Wrap(cdserrors.KindIO, err, "wire: decoding share metadata entry")
			}
		}
		totalShares += len(f.Entries)
		files = append(files, f)
	}
	return files, totalShares, nil
}

// ShareFileHead precedes the first batch of a restore stream (spec.md
// §4.10/§4.8): the requested file's total secret/share count, handy for the
// client's decode-pipeline broadcast of numOfShares to its decoder workers.
type ShareFileHead struct {
	NumOfShares int32
	FileSize    int64
}

// ShareEntry is one recipe entry streamed back during restore: the secret
// it belongs to, its plaintext size, and the share body size that follows
// it in the frame.
type ShareEntry struct {
	SecretID   int32
	SecretSize int32
	ShareSize  int32
}

// EncodeRestoreFrame serializes a -5 restore frame. head is non-nil only on
// the first frame of a restore stream (spec.md §4.10: "shareFileHead
// precedes the first batch only"). Tag and payload length are written in
// network byte order, per spec.md §4.8's exception for restore frames.
func EncodeRestoreFrame(head *ShareFileHead, entries []ShareEntry, bodies [][]byte) ([]byte, error) {
	payload := &bytes.Buffer{}
	if head != nil {
		if err := binary.Write(payload, binary.BigEndian, *head); err != nil {
			return nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: encoding share file head")
		}
	}
	for i, e := range entries {
		if err := binary.Write(payload, binary.BigEndian, e); err != nil {
			return nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: encoding share entry")
		}
		payload.Write(bodies[i])
	}

	frame := &bytes.Buffer{}
	if err := binary.Write(frame, binary.BigEndian, int32(TagRestoreFrame)); err != nil {
		return nil, err
	}
	if err := binary.Write(frame, binary.BigEndian, int32(payload.Len())); err != nil {
		return nil, err
	}
	frame.Write(payload.Bytes())
	return frame.Bytes(), nil
}

// ReadRestoreFrame reads one -5 frame's tag/length (network byte order, per
// spec.md §4.8's restore-stream exception) and returns its raw payload.
func ReadRestoreFrame(r io.Reader) ([]byte, error) {
	var tag, length int32
	if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: reading restore frame tag")
	}
	if Tag(tag) != TagRestoreFrame {
		return nil, cdserrors.New(cdserrors.KindBadInput, "wire: expected restore frame tag")
	}
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: reading restore frame length")
	}
	if length < 0 {
		return nil, cdserrors.New(cdserrors.KindBadInput, "wire: negative restore frame length")
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: reading restore frame payload")
		}
	}
	return payload, nil
}

// DecodeRestoreFrame is the inverse of EncodeRestoreFrame's payload
// encoding. hasHead selects whether a ShareFileHead precedes the entries
// (true only for a stream's first frame).
func DecodeRestoreFrame(payload []byte, hasHead bool) (head *ShareFileHead, entries []ShareEntry, bodies [][]byte, err error) {
	r := bytes.NewReader(payload)
	if hasHead {
		head = &ShareFileHead{}
		if err := binary.Read(r, binary.BigEndian, head); err != nil {
			return nil, nil, nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: decoding share file head")
		}
	}
	for r.Len() > 0 {
		var e ShareEntry
		if err := binary.Read(r, binary.BigEndian, &e); err != nil {
			return nil, nil, nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: decoding share entry")
		}
		body := make([]byte, e.ShareSize)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, nil, nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: decoding share body")
		}
		entries = append(entries, e)
		bodies = append(bodies, body)
	}
	return head, entries, bodies, nil
}
