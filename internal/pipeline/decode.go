package pipeline

import (
	"bytes"
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
	"github.com/chintran27/cdstore-go/internal/dispersal"
	"github.com/chintran27/cdstore-go/internal/queue"
)

// DecodeConfig configures one file's run through the decode pipeline
// (spec.md §4.7). Downloaders and ShareIDs must have the same length k
// (spec.md's "kShareIDList": which distribution-matrix rows these k
// connections hold).
type DecodeConfig struct {
	Codec       *dispersal.Codec
	Downloaders []*Downloader
	ShareIDs    []int
	Workers     int // D, defaults to DefaultDecoderWorkers
	Writer      io.Writer
}

// RunDecode assembles shares from k downloaders into per-secret
// ShareChunks, decodes them through D decoder workers, and writes the
// reassembled plaintext in secretID order via a round-robin collector
// (spec.md §4.7).
func RunDecode(ctx context.Context, cfg DecodeConfig) error {
	if len(cfg.Downloaders) != len(cfg.ShareIDs) {
		return cdserrors.New(cdserrors.KindInvalidArg, "pipeline: downloaders and share IDs must match in count")
	}
	numShares := int(cfg.Downloaders[0].NumOfShares())

	d := cfg.Workers
	if d <= 0 {
		d = DefaultDecoderWorkers
	}
	if d > numShares && numShares > 0 {
		d = numShares
	}
	if d == 0 {
		d = 1
	}

	type chunkJob struct {
		secretSize int32
		shares     []dispersal.Share
	}
	inputs := make([]*queue.Queue[chunkJob], d)
	outputs := make([]*queue.Queue[[]byte], d)
	for i := range inputs {
		inputs[i] = queue.New[chunkJob](queueCapacity)
		outputs[i] = queue.New[[]byte](queueCapacity)
	}

	g, gctx := errgroup.WithContext(ctx)

	// D decoder workers.
	for i := 0; i < d; i++ {
		i := i
		g.Go(func() error {
			for {
				job, ok := inputs[i].Extract()
				if !ok {
					outputs[i].Close()
					return nil
				}
				secret, err := cfg.Codec.Decode(job.shares, int(job.secretSize))
				if err != nil {
					return err
				}
				outputs[i].Insert(secret)
			}
		})
	}

	// Assembler: takes one entry from each of the k downloaders per secret,
	// dispatching to decoder inputs round-robin by secretID % D.
	g.Go(func() error {
		defer func() {
			for _, in := range inputs {
				in.Close()
			}
		}()
		for i := 0; i < numShares; i++ {
			shares := make([]dispersal.Share, len(cfg.Downloaders))
			var secretSize int32
			for ci, dl := range cfg.Downloaders {
				e, body, err := dl.Next()
				if err != nil {
					return err
				}
				secretSize = e.SecretSize
				shares[ci] = dispersal.Share{ID: cfg.ShareIDs[ci], Data: body}
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			inputs[i%d].Insert(chunkJob{secretSize: secretSize, shares: shares})
		}
		return nil
	})

	// Collector/writer: drains decoder outputs round-robin, flushing a 4
	// MiB write-back buffer, and exits after exactly numShares secrets
	// (spec.md §4.7).
	g.Go(func() error {
		var buf bytes.Buffer
		flush := func() error {
			if buf.Len() == 0 {
				return nil
			}
			if _, err := cfg.Writer.Write(buf.Bytes()); err != nil {
				return cdserrors.Wrap(cdserrors.KindIO, err, "pipeline: writing restored output")
			}
			buf.Reset()
			return nil
		}
		for i := 0; i < numShares; i++ {
			data, ok := outputs[i%d].Extract()
			if !ok {
				return contextCanceledOr(ctx, "pipeline: decoder output closed early")
			}
			buf.Write(data)
			if buf.Len() >= writeBackBufferSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	return g.Wait()
}
