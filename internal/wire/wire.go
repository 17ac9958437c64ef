// Package wire implements the length/tag-framed client<->server message
// grammar (C8) from spec.md §4.8/§6. The socket byte layer itself (framing
// reliability) is assumed provided by net.Conn; this package only encodes
// and decodes the message grammar on top of it, grounded on the explicit
// header-struct + binary.Write/Read idiom restic's REST-family backends use
// for their own wire framing (internal/backend/rest, reststdiohttp2).
package wire

import (
	"encoding/binary"
	"io"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
)

// Tag identifies a framed message's purpose (spec.md §4.8).
type Tag int32

const (
	// TagMETA carries the metadata round (file header + share metadata).
	TagMETA Tag = -1
	// TagDATA carries the compacted, non-duplicate share bodies for the
	// current metadata round.
	TagDATA Tag = -2
	// TagSTAT is the server's dedup-result bitmap response.
	TagSTAT Tag = -3
	// TagRestoreFrame is a streamed restore response frame.
	TagRestoreFrame Tag = -5
	// TagDOWNLOAD is a restore request carrying one name-share.
	TagDOWNLOAD Tag = -7
)

// WriteHandshake sends the one-time connection handshake: a raw int32
// userID in network byte order (spec.md §6).
func WriteHandshake(w io.Writer, userID int32) error {
	return binary.Write(w, binary.BigEndian, userID)
}

// ReadHandshake reads the handshake userID.
func ReadHandshake(r io.Reader) (int32, error) {
	var userID int32
	if err := binary.Read(r, binary.BigEndian, &userID); err != nil {
		return 0, cdserrors.Wrap(cdserrors.KindIO, err, "wire: reading handshake")
	}
	return userID, nil
}

// WriteFrame writes a {tag, payloadLen, payload} message in host byte order
// (little-endian on target platforms), per spec.md §4.8/§6.
func WriteFrame(w io.Writer, tag Tag, payload []byte) error {
	if err := binary.Write(w, binary.LittleEndian, int32(tag)); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "wire: writing tag")
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(payload))); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "wire: writing payload length")
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return cdserrors.Wrap(cdserrors.KindIO, err, "wire: writing payload")
		}
	}
	return nil
}

// ReadFrame reads a {tag, payloadLen, payload} message in host byte order.
func ReadFrame(r io.Reader) (Tag, []byte, error) {
	var tag, length int32
	if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
		return 0, nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: reading tag")
	}
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return 0, nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: reading payload length")
	}
	if length < 0 {
		return 0, nil, cdserrors.New(cdserrors.KindBadInput, "wire: negative payload length")
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: reading payload")
		}
	}
	return Tag(tag), payload, nil
}

// WriteStat writes the server's STAT response: int32 tag, int32 numShares,
// then numShares booleans (stored as one byte each — true means duplicate,
// skip), in host byte order.
func WriteStat(w io.Writer, duplicate []bool) error {
	if err := binary.Write(w, binary.LittleEndian, int32(TagSTAT)); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "wire: writing STAT tag")
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(duplicate))); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "wire: writing STAT count")
	}
	buf := make([]byte, len(duplicate))
	for i, b := range duplicate {
		if b {
			buf[i] = 1
		}
	}
	if len(buf) > 0 {
		if _, err := w.Write(buf); err != nil {
			return cdserrors.Wrap(cdserrors.KindIO, err, "wire: writing STAT bitmap")
		}
	}
	return nil
}

// ReadStat reads a STAT response's tag, count and bitmap. It reads the tag
// itself and fails unless it is STAT, so callers that know a STAT is next
// call it directly, without reading the tag first.
func ReadStat(r io.Reader) ([]bool, error) {
	var tag, num int32
	if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: reading STAT tag")
	}
	if Tag(tag) != TagSTAT {
		return nil, cdserrors.New(cdserrors.KindBadInput, "wire: expected STAT tag")
	}
	if err := binary.Read(r, binary.LittleEndian, &num); err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: reading STAT count")
	}
	buf := make([]byte, num)
	if num > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, cdserrors.Wrap(cdserrors.KindIO, err, "wire: reading STAT bitmap")
		}
	}
	out := make([]bool, num)
	for i, b := range buf {
		out[i] = b != 0
	}
	return out, nil
}
