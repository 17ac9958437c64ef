// Package pipeline implements the client's encode (C6) and decode (C7)
// pipelines from spec.md §4.6/§4.7: a chunker feeding a small pool of
// dispersal-encoder workers through round-robin input queues, a collector
// that restores secretID order, and per-cloud uploader/downloader workers
// talking internal/wire.
//
// The worker-pool-plus-errgroup shape is grounded on restic's
// internal/archiver.fileSaver (file_saver.go): a fixed pool of workers
// pulling jobs off a channel, reporting completion through callbacks,
// coordinated by golang.org/x/sync/errgroup rather than a hand-rolled
// WaitGroup.
package pipeline

import (
	"context"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
	"github.com/chintran27/cdstore-go/internal/dispersal"
)

// Secret is one chunk tagged with its position in the file (spec.md §4.6:
// "a secret is tagged with a monotonically-increasing secretID and the end
// flag set on the final chunk of a file").
type Secret struct {
	ID   int
	Data []byte
	End  bool
}

// ShareChunk is one encoded secret's n shares, still carrying the secretID
// and end flag so the collector and uploaders can preserve ordering and
// detect SHARE_END (spec.md §4.6).
type ShareChunk struct {
	SecretID int
	End      bool
	Shares   []dispersal.Share
}

// DefaultEncoderWorkers and DefaultDecoderWorkers match spec.md §4.6/§4.7's
// "W ≈ 2" / "D ≈ 2".
const (
	DefaultEncoderWorkers = 2
	DefaultDecoderWorkers = 2
)

// queueCapacity bounds every pipeline queue (spec.md §4.3's bounded FIFO
// backpressure applied uniformly across the pipeline).
const queueCapacity = 32

// writeBackBufferSize bounds the decode collector's accumulation buffer
// before it flushes to the output file (spec.md §4.7).
const writeBackBufferSize = 4 * 1024 * 1024

// contextCanceledOr reports ctx's cancellation cause if present, otherwise
// wraps msg as a FATAL error; used when a worker queue closes unexpectedly.
func contextCanceledOr(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, msg)
	}
	return cdserrors.New(cdserrors.KindFatal, msg)
}
