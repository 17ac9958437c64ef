package coldtier

import (
	"context"
	"io"
	"path"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
)

// SFTPBackend stores cold-tier archives as files under one directory on a
// remote SSH-reachable server (spec.md §4.11's "another IP-reachable
// server").
type SFTPBackend struct {
	client  *sftp.Client
	sshConn *ssh.Client
	baseDir string
}

// NewSFTPBackend dials addr over SSH, authenticating as user with the
// given signer, and opens an SFTP session rooted at baseDir.
func NewSFTPBackend(addr, user string, signer ssh.Signer, baseDir string) (*SFTPBackend, error) {
	conn, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // cold-tier transport, not the dispersal trust boundary
	})
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: dialing SFTP server")
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: opening SFTP session")
	}
	return &SFTPBackend{client: client, sshConn: conn, baseDir: baseDir}, nil
}

// Close releases the underlying SFTP session and SSH connection.
func (b *SFTPBackend) Close() error {
	_ = b.client.Close()
	return b.sshConn.Close()
}

func (b *SFTPBackend) remotePath(name string) string {
	return path.Join(b.baseDir, name)
}

// Upload writes r to a temporary file and renames it into place, so a
// concurrent Download of the same name never observes a partial write.
func (b *SFTPBackend) Upload(ctx context.Context, name string, r io.Reader) error {
	if err := b.client.MkdirAll(b.baseDir); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: creating remote directory")
	}
	tmp := b.remotePath(name + ".tmp")
	f, err := b.client.Create(tmp)
	if err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: creating remote file")
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: writing remote file")
	}
	if err := f.Close(); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: closing remote file")
	}
	if err := b.client.Rename(tmp, b.remotePath(name)); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: renaming remote file into place")
	}
	return nil
}

// Download opens a streaming reader over name's remote file.
func (b *SFTPBackend) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := b.client.Open(b.remotePath(name))
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: opening remote file")
	}
	return f, nil
}
