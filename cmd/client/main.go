// Command client runs the spec.md §6 client CLI:
// `client <filePath> <userID:int> <-u|-d|-a> <HIGH|LOW>`.
//
// Upload dials n cloud connections from ./config and drives the file
// through internal/pipeline.RunEncode; download dials the first k and
// drives internal/pipeline.RunDecode. Both share one dispersal codec
// instance and the same (convergent, deterministic) full-path encoding, so
// a download run can re-derive the per-cloud name shares it needs without
// the client persisting any upload-time state (safe specifically because
// the default variant, CAONT-RS, derives its key from the data rather than
// a random seed — see DESIGN.md's note on decision D4).
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
	"github.com/chintran27/cdstore-go/internal/chunker"
	"github.com/chintran27/cdstore-go/internal/cluster"
	"github.com/chintran27/cdstore-go/internal/dispersal"
	"github.com/chintran27/cdstore-go/internal/pipeline"
	"github.com/chintran27/cdstore-go/internal/primitive"
	"github.com/chintran27/cdstore-go/internal/progress"
	"github.com/chintran27/cdstore-go/internal/wire"
)

// Dispersal/chunker defaults from spec.md §6.
const (
	defaultN = 4
	defaultM = 1
	defaultR = 2

	clusterConfigPath = "./config"
)

var encodeOnly bool

var cmdClient = &cobra.Command{
	Use:               "client <filePath> <userID> <-u|-d|-a> <HIGH|LOW>",
	Short:             "Upload or download a file through the cdstore cluster",
	Args:              cobra.ExactArgs(4),
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	RunE:              runClient,
}

func init() {
	cmdClient.Flags().BoolVar(&encodeOnly, "encode-only", false, "chunk and encode but discard shares instead of dialing any cloud (upload only)")
}

func main() {
	if err := cmdClient.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cdstore-client: %v\n", err)
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	userID, err := strconv.Atoi(args[1])
	if err != nil {
		return cdserrors.New(cdserrors.KindInvalidArg, "client: userID must be an integer")
	}

	var doUpload, doDownload bool
	switch args[2] {
	case "-u":
		doUpload = true
	case "-d":
		doDownload = true
	case "-a":
		doUpload, doDownload = true, true
	default:
		return cdserrors.New(cdserrors.KindInvalidArg, "client: third argument must be -u, -d or -a")
	}

	var sec primitive.Security
	switch strings.ToUpper(args[3]) {
	case "HIGH":
		sec = primitive.High
	case "LOW":
		sec = primitive.Low
	default:
		return cdserrors.New(cdserrors.KindInvalidArg, "client: fourth argument must be HIGH or LOW")
	}

	chk, err := chunker.New(chunker.DefaultParams)
	if err != nil {
		return err
	}
	codec, err := dispersal.New(dispersal.Params{
		N: defaultN, M: defaultM, R: defaultR,
		Variant: dispersal.CAONTRS,
		Sec:     sec,
	})
	if err != nil {
		return err
	}

	cfg, err := cluster.Load(clusterConfigPath)
	if err != nil {
		return err
	}

	ctx := context.Background()

	if doUpload {
		if err := uploadFile(ctx, filePath, int32(userID), chk, codec, cfg, sec, encodeOnly); err != nil {
			return err
		}
	}
	if doDownload {
		if err := downloadFile(ctx, filePath, int32(userID), codec, cfg); err != nil {
			return err
		}
	}
	return nil
}

func uploadFile(ctx context.Context, filePath string, userID int32, chk *chunker.Chunker, codec *dispersal.Codec, cfg *cluster.Config, sec primitive.Security, encodeOnly bool) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "client: reading input file")
	}

	var uploaders []*pipeline.CloudUploader
	var conns []net.Conn
	if !encodeOnly {
		endpoints, err := cfg.First(defaultN)
		if err != nil {
			return err
		}

		conns, err = dialAndHandshake(endpoints, userID)
		if err != nil {
			return err
		}
		defer closeAll(conns)

		prim := primitive.New(sec)
		uploaders = make([]*pipeline.CloudUploader, len(conns))
		for i, conn := range conns {
			uploaders[i] = pipeline.NewCloudUploader(conn, i, prim)
		}
	}

	upd := progress.NewUpdater(time.Second, func(d time.Duration, final bool) {
		reportProgress("upload", len(data), d, final)
	})
	defer upd.Done()

	return pipeline.RunEncode(ctx, data, pipeline.EncodeConfig{
		Chunker:    chk,
		Codec:      codec,
		Workers:    pipeline.DefaultEncoderWorkers,
		FullPath:   filePath,
		Uploaders:  uploaders,
		EncodeOnly: encodeOnly,
	})
}

func reportProgress(op string, totalBytes int, elapsed time.Duration, final bool) {
	state := "in progress"
	if final {
		state = "done"
	}
	fmt.Fprintf(os.Stderr, "client: %s %s: %d bytes, %s elapsed\n", op, state, totalBytes, elapsed.Round(time.Millisecond))
}

func downloadFile(ctx context.Context, filePath string, userID int32, codec *dispersal.Codec, cfg *cluster.Config) error {
	k := defaultN - defaultM
	endpoints, err := cfg.First(k)
	if err != nil {
		return err
	}

	conns, err := dialAndHandshake(endpoints, userID)
	if err != nil {
		return err
	}
	defer closeAll(conns)

	nameShares, err := codec.Encode([]byte(filePath))
	if err != nil {
		return err
	}

	downloaders := make([]*pipeline.Downloader, len(conns))
	shareIDs := make([]int, len(conns))
	for i, conn := range conns {
		dl, err := pipeline.NewDownloader(conn, nameShares[i].Data)
		if err != nil {
			return err
		}
		downloaders[i] = dl
		shareIDs[i] = i
	}

	out, err := os.Create(filePath)
	if err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "client: creating output file")
	}
	defer out.Close()

	upd := progress.NewUpdater(time.Second, func(d time.Duration, final bool) {
		reportProgress("download", 0, d, final)
	})
	defer upd.Done()

	return pipeline.RunDecode(ctx, pipeline.DecodeConfig{
		Codec:       codec,
		Downloaders: downloaders,
		ShareIDs:    shareIDs,
		Workers:     pipeline.DefaultDecoderWorkers,
		Writer:      out,
	})
}

func dialAndHandshake(endpoints []cluster.Endpoint, userID int32) ([]net.Conn, error) {
	conns := make([]net.Conn, 0, len(endpoints))
	for _, ep := range endpoints {
		conn, err := net.Dial("tcp", ep.Addr)
		if err != nil {
			closeAll(conns)
			return nil, cdserrors.Wrap(cdserrors.KindIO, err, "client: dialing cloud endpoint")
		}
		if err := wire.WriteHandshake(conn, userID); err != nil {
			closeAll(conns)
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

func closeAll(conns []net.Conn) {
	for _, c := range conns {
		_ = c.Close()
	}
}
