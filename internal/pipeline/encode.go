package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/chintran27/cdstore-go/internal/chunker"
	"github.com/chintran27/cdstore-go/internal/dispersal"
	"github.com/chintran27/cdstore-go/internal/queue"
)

// EncodeConfig configures one file's run through the encode pipeline
// (spec.md §4.6). Uploaders may be left empty to run in "encoding-only"
// mode (spec.md §9's design note): the pipeline still chunks and encodes
// every secret but discards the shares instead of dispatching them to any
// uploader, exercising the exact same chunker/encoder path used in
// production runs.
type EncodeConfig struct {
	Chunker    *chunker.Chunker
	Codec      *dispersal.Codec
	Workers    int // W, defaults to DefaultEncoderWorkers
	FullPath   string
	Uploaders  []*CloudUploader // one per cloud, length n
	EncodeOnly bool
}

// RunEncode chunks data and drives it through W encoder workers, an
// order-preserving collector, and (unless EncodeOnly) n uploader workers,
// per spec.md §4.6.
func RunEncode(ctx context.Context, data []byte, cfg EncodeConfig) error {
	ends := cfg.Chunker.Split(data)
	total := len(ends)

	secretSizes := make([]int32, total)
	prevEnd := -1
	for i, end := range ends {
		secretSizes[i] = int32(end - prevEnd)
		prevEnd = end
	}

	w := cfg.Workers
	if w <= 0 {
		w = DefaultEncoderWorkers
	}
	if w > total && total > 0 {
		w = total
	}
	if w == 0 {
		w = 1
	}

	uploading := !cfg.EncodeOnly && len(cfg.Uploaders) > 0
	n := len(cfg.Uploaders)

	if uploading {
		// spec.md §4.6: "the full path is itself encoded via the dispersal
		// codec (on encoder 0) to produce n name shares".
		nameShares, err := cfg.Codec.Encode([]byte(cfg.FullPath))
		if err != nil {
			return err
		}
		for i, u := range cfg.Uploaders {
			u.BeginFile(nameShares[i].Data, int64(len(data)))
		}
	}

	inputs := make([]*queue.Queue[Secret], w)
	outputs := make([]*queue.Queue[ShareChunk], w)
	for i := range inputs {
		inputs[i] = queue.New[Secret](queueCapacity)
		outputs[i] = queue.New[ShareChunk](queueCapacity)
	}

	type uploaderJob struct {
		secretID   int32
		secretSize int32
		share      []byte
	}
	var uploaderQueues []*queue.Queue[uploaderJob]
	if uploading {
		uploaderQueues = make([]*queue.Queue[uploaderJob], n)
		for i := range uploaderQueues {
			uploaderQueues[i] = queue.New[uploaderJob](queueCapacity)
		}
	}

	g, _ := errgroup.WithContext(ctx)

	// W encoder workers.
	for i := 0; i < w; i++ {
		i := i
		g.Go(func() error {
			for {
				secret, ok := inputs[i].Extract()
				if !ok {
					outputs[i].Close()
					return nil
				}
				shares, err := cfg.Codec.Encode(secret.Data)
				if err != nil {
					return err
				}
				outputs[i].Insert(ShareChunk{SecretID: secret.ID, End: secret.End, Shares: shares})
			}
		})
	}

	// Chunker/dispatcher: the caller's thread feeding secrets round-robin.
	g.Go(func() error {
		defer func() {
			for _, in := range inputs {
				in.Close()
			}
		}()
		prevEnd := -1
		for i, end := range ends {
			chunkData := data[prevEnd+1 : end+1]
			inputs[i%w].Insert(Secret{ID: i, Data: chunkData, End: i == total-1})
			prevEnd = end
		}
		return nil
	})

	// Collector: round-robins encoder outputs in dispatch order, restoring
	// total secretID order, and fans each ShareChunk out to n uploader
	// queues (spec.md §4.6).
	g.Go(func() error {
		defer func() {
			if uploading {
				for _, q := range uploaderQueues {
					q.Close()
				}
			}
		}()
		for i := 0; i < total; i++ {
			sc, ok := outputs[i%w].Extract()
			if !ok {
				return contextCanceledOr(ctx, "pipeline: encoder output closed early")
			}
			if !uploading {
				continue
			}
			for cloud := range uploaderQueues {
				uploaderQueues[cloud].Insert(uploaderJob{
					secretID:   int32(sc.SecretID),
					secretSize: secretSizes[sc.SecretID],
					share:      sc.Shares[cloud].Data,
				})
			}
		}
		return nil
	})

	// n uploader workers.
	if uploading {
		for i := 0; i < n; i++ {
			i := i
			u := cfg.Uploaders[i]
			g.Go(func() error {
				for {
					job, ok := uploaderQueues[i].Extract()
					if !ok {
						return u.Finish()
					}
					if err := u.AddShare(job.secretID, job.secretSize, job.share); err != nil {
						return err
					}
				}
			})
		}
	}

	return g.Wait()
}
