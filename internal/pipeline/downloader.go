package pipeline

import (
	"net"

	"github.com/chintran27/cdstore-go/internal/wire"
)

// Downloader is one per-cloud downloader worker (spec.md §4.7): it issues
// the DOWNLOAD request, reads the restore stream's first frame eagerly (to
// learn ShareFileHead.NumOfShares), and yields (entry, body) pairs one at a
// time thereafter, transparently refilling from further -5 frames.
type Downloader struct {
	conn    net.Conn
	head    wire.ShareFileHead
	gotHead bool

	pendingEntries []wire.ShareEntry
	pendingBodies  [][]byte
	idx            int
}

// NewDownloader sends a DOWNLOAD request carrying nameShare (this
// connection's per-cloud name-share, per DESIGN.md decision D2) and primes
// the stream by reading its first frame.
func NewDownloader(conn net.Conn, nameShare []byte) (*Downloader, error) {
	if err := wire.WriteFrame(conn, wire.TagDOWNLOAD, nameShare); err != nil {
		return nil, err
	}
	d := &Downloader{conn: conn}
	if err := d.fillFrame(); err != nil {
		return nil, err
	}
	return d, nil
}

// NumOfShares reports the requested file's total secret count, known once
// the first frame has been read.
func (d *Downloader) NumOfShares() int32 { return d.head.NumOfShares }

// FileSize reports the requested file's plaintext size.
func (d *Downloader) FileSize() int64 { return d.head.FileSize }

func (d *Downloader) fillFrame() error {
	payload, err := wire.ReadRestoreFrame(d.conn)
	if err != nil {
		return err
	}
	head, entries, bodies, err := wire.DecodeRestoreFrame(payload, !d.gotHead)
	if err != nil {
		return err
	}
	if head != nil {
		d.head = *head
		d.gotHead = true
	}
	d.pendingEntries = entries
	d.pendingBodies = bodies
	d.idx = 0
	return nil
}

// Next returns the next (entry, share body) pair in recipe order,
// transparently reading further restore frames as earlier ones are drained.
func (d *Downloader) Next() (wire.ShareEntry, []byte, error) {
	for d.idx >= len(d.pendingEntries) {
		if err := d.fillFrame(); err != nil {
			return wire.ShareEntry{}, nil, err
		}
	}
	e, body := d.pendingEntries[d.idx], d.pendingBodies[d.idx]
	d.idx++
	return e, body, nil
}
