// Package server implements the server side of the socket protocol (C8)
// from spec.md §4.8/§5: one goroutine per accepted client connection,
// dispatching META/DATA rounds into internal/dedup and DOWNLOAD requests
// into internal/restore.
//
// The accept-loop-plus-per-connection-goroutine shape is grounded on restic's
// cmd_serve.go http.Server usage (runWebServer in cmd/restic/cmd_serve.go),
// adapted here from HTTP to the framed TCP protocol described in spec.md §5.
package server

import (
	"io"
	"net"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
	"github.com/chintran27/cdstore-go/internal/debug"
	"github.com/chintran27/cdstore-go/internal/dedup"
	"github.com/chintran27/cdstore-go/internal/restore"
	"github.com/chintran27/cdstore-go/internal/wire"
)

// Server dispatches framed connections to the dedup and restore engines.
type Server struct {
	Dedup   *dedup.Engine
	Restore *restore.Engine
}

// New constructs a Server over already-opened engines.
func New(d *dedup.Engine, r *restore.Engine) *Server {
	return &Server{Dedup: d, Restore: r}
}

// ListenAndServe accepts connections on addr until the listener is closed,
// handling each on its own goroutine (spec.md §5: "one thread per accepted
// client connection").
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	userID, err := wire.ReadHandshake(conn)
	if err != nil {
		debug.Log("server: handshake failed: %v", err)
		return
	}

	for {
		tag, payload, err := wire.ReadFrame(conn)
		if err != nil {
			if err != io.EOF {
				debug.Log("server: user %d: reading frame: %v", userID, err)
			}
			return
		}

		switch tag {
		case wire.TagMETA:
			if err := s.handleUploadRound(conn, payload, userID); err != nil {
				debug.Log("server: user %d: upload round failed: %v", userID, err)
				return
			}
		case wire.TagDOWNLOAD:
			if err := s.handleDownload(conn, payload, userID); err != nil {
				debug.Log("server: user %d: download failed: %v", userID, err)
				return
			}
		default:
			debug.Log("server: user %d: unexpected tag %d", userID, tag)
			return
		}
	}
}

// handleUploadRound implements spec.md §4.8's META -> STAT -> DATA
// exchange: first-stage dedup answers from the metadata alone, then the
// client's DATA frame is run through second-stage dedup.
func (s *Server) handleUploadRound(conn net.Conn, metaPayload []byte, userID int32) error {
	files, _, err := wire.DecodeMeta(metaPayload)
	if err != nil {
		return err
	}

	duplicate, err := s.Dedup.FirstStage(files, userID)
	if err != nil {
		return err
	}
	if err := wire.WriteStat(conn, duplicate); err != nil {
		return err
	}

	dataTag, dataPayload, err := wire.ReadFrame(conn)
	if err != nil {
		return err
	}
	if dataTag != wire.TagDATA {
		return cdserrors.New(cdserrors.KindBadInput, "server: expected DATA frame after STAT")
	}

	return s.Dedup.SecondStage(files, duplicate, dataPayload, userID)
}

// handleDownload implements spec.md §4.10: walk the requested file's
// recipe and stream the resulting -5 frames back over the same
// connection.
func (s *Server) handleDownload(conn net.Conn, nameShare []byte, userID int32) error {
	frames, err := s.Restore.Restore(nameShare, userID, 0)
	if err != nil {
		return err
	}
	for _, frame := range frames {
		if _, err := conn.Write(frame); err != nil {
			return err
		}
	}
	return nil
}
