package pipeline

import (
	"bytes"
	"net"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
	"github.com/chintran27/cdstore-go/internal/primitive"
	"github.com/chintran27/cdstore-go/internal/wire"
)

// ContainerBufferSize bounds an uploader's container buffer before it must
// trigger an upload round (spec.md §3/§4.6: "4 MiB").
const ContainerBufferSize = 4 * 1024 * 1024

// CloudUploader is one per-cloud uploader worker (spec.md §4.6): it
// accumulates a metadata buffer and a container buffer for a single file,
// and on overflow or SHARE_END runs one META/STAT/DATA round over conn.
type CloudUploader struct {
	conn  net.Conn
	index int
	prim  *primitive.Primitive

	nameShare       []byte
	fileSize        int64
	numPastSecrets  int32
	sizePastSecrets int64

	entries   []wire.ShareMDEntry
	container bytes.Buffer
}

// NewCloudUploader wraps an already-dialed connection to cloud index.
func NewCloudUploader(conn net.Conn, index int, prim *primitive.Primitive) *CloudUploader {
	return &CloudUploader{conn: conn, index: index, prim: prim}
}

// BeginFile resets the uploader's per-file running tallies (spec.md §4.6:
// "the file header's numOfPastSecrets/sizeOfPastSecrets run tallies across
// upload rounds for the same file").
func (u *CloudUploader) BeginFile(nameShare []byte, fileSize int64) {
	u.nameShare = nameShare
	u.fileSize = fileSize
	u.numPastSecrets = 0
	u.sizePastSecrets = 0
	u.entries = nil
	u.container.Reset()
}

// AddShare hash-stamps and buffers one share body, flushing an upload round
// first if the container buffer would overflow.
func (u *CloudUploader) AddShare(secretID int32, secretSize int32, body []byte) error {
	if u.container.Len()+len(body) > ContainerBufferSize && len(u.entries) > 0 {
		if err := u.flushRound(); err != nil {
			return err
		}
	}

	fp := u.prim.Hash(body)
	var fpArr [32]byte
	copy(fpArr[:], fp)

	u.entries = append(u.entries, wire.ShareMDEntry{
		ShareFP:    fpArr,
		SecretID:   secretID,
		SecretSize: secretSize,
		ShareSize:  int32(len(body)),
	})
	u.container.Write(body)
	return nil
}

// Finish flushes any remaining buffered entries as the final round
// (spec.md §4.6's SHARE_END trigger).
func (u *CloudUploader) Finish() error {
	if len(u.entries) == 0 {
		return nil
	}
	return u.flushRound()
}

// flushRound runs one META -> STAT -> DATA round trip, compacting the
// container buffer down to only the non-duplicate shares before sending
// DATA, and folds this round's counts into the running per-file tallies.
func (u *CloudUploader) flushRound() error {
	numComing := int32(len(u.entries))
	var sizeComing int64
	for _, e := range u.entries {
		sizeComing += int64(e.SecretSize)
	}

	head := wire.FileShareMDHead{
		FileSize:          u.fileSize,
		NumPastSecrets:    u.numPastSecrets,
		SizePastSecrets:   u.sizePastSecrets,
		NumComingSecrets:  numComing,
		SizeComingSecrets: sizeComing,
	}
	md := wire.FileShareMD{Head: head, NameShare: u.nameShare, Entries: u.entries}

	payload, err := wire.EncodeMeta([]wire.FileShareMD{md})
	if err != nil {
		return err
	}
	if err := wire.WriteFrame(u.conn, wire.TagMETA, payload); err != nil {
		return err
	}

	duplicate, err := wire.ReadStat(u.conn)
	if err != nil {
		return err
	}
	if len(duplicate) != len(u.entries) {
		return cdserrors.New(cdserrors.KindBadInput, "pipeline: STAT bitmap length does not match round's share count")
	}

	raw := u.container.Bytes()
	var compacted bytes.Buffer
	offset := 0
	for i, e := range u.entries {
		size := int(e.ShareSize)
		if !duplicate[i] {
			compacted.Write(raw[offset : offset+size])
		}
		offset += size
	}
	if err := wire.WriteFrame(u.conn, wire.TagDATA, compacted.Bytes()); err != nil {
		return err
	}

	u.numPastSecrets += numComing
	u.sizePastSecrets += sizeComing
	u.entries = nil
	u.container.Reset()
	return nil
}
