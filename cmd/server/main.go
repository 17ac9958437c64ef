// Command server runs the spec.md §6 server CLI: `server <port>`, serving
// every accepted connection against the dedup and restore engines rooted
// at ./meta/{DedupDB,RecipeFiles,ShareContainers}.
//
// Cold-tier migration (internal/coldtier, spec.md §4.11) is optional and
// selected by environment variable rather than a positional argument,
// mirroring restic's own backend-selection-by-location-string shape
// (internal/backend.Open dispatches on a URL scheme) — here the "scheme"
// is CDSTORE_COLDTIER_BACKEND.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
	"github.com/chintran27/cdstore-go/internal/coldtier"
	"github.com/chintran27/cdstore-go/internal/dedup"
	"github.com/chintran27/cdstore-go/internal/primitive"
	"github.com/chintran27/cdstore-go/internal/restore"
	"github.com/chintran27/cdstore-go/internal/server"
)

const (
	dedupDBDir   = "./meta/DedupDB"
	recipeDir    = "./meta/RecipeFiles"
	containerDir = "./meta/ShareContainers"
	coldCacheDir = "./meta/ColdCache"
)

var cmdServer = &cobra.Command{
	Use:               "server <port>",
	Short:             "Run the cdstore server",
	Args:              cobra.ExactArgs(1),
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	RunE:              runServer,
}

func main() {
	if err := cmdServer.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cdstore-server: %v\n", err)
		os.Exit(1)
	}
}

// coldTierRecipeCache/coldTierContainerCache are nil unless
// CDSTORE_COLDTIER_BACKEND names a backend to migrate sealed archives to.
var (
	coldTierRecipeCache    *coldtier.Cache
	coldTierContainerCache *coldtier.Cache
)

func runServer(cmd *cobra.Command, args []string) error {
	port, err := strconv.Atoi(args[0])
	if err != nil || port <= 0 || port > 65535 {
		return cdserrors.New(cdserrors.KindInvalidArg, "server: port must be a positive 16-bit integer")
	}

	if err := setupColdTier(); err != nil {
		return err
	}
	defer closeColdTier()

	dedupEngine, err := dedup.NewEngine(dedup.Config{
		IndexDir:        dedupDBDir,
		RecipeDir:       recipeDir,
		ContainerDir:    containerDir,
		Sec:             primitive.High,
		OnSealRecipe:    onSealRecipe,
		OnSealContainer: onSealContainer,
	})
	if err != nil {
		return err
	}
	defer dedupEngine.Close()

	restoreEngine, err := restore.NewEngine(dedupEngine.DB(), recipeDir, containerDir, primitive.High, dedupEngine)
	if err != nil {
		return err
	}

	srv := server.New(dedupEngine, restoreEngine)
	addr := fmt.Sprintf(":%d", port)
	fmt.Fprintf(os.Stdout, "cdstore-server: listening on %s\n", addr)
	return srv.ListenAndServe(addr)
}

// onSealRecipe/onSealContainer are the hooks wired into dedup.Config; they
// are no-ops unless setupColdTier populated the corresponding cache.
func onSealRecipe(name [16]byte) {
	if coldTierRecipeCache != nil {
		coldTierRecipeCache.AddNewFile(trimZero(name))
	}
}

func onSealContainer(name [16]byte) {
	if coldTierContainerCache != nil {
		coldTierContainerCache.AddNewFile(trimZero(name))
	}
}

func trimZero(name [16]byte) string {
	return strings.TrimRight(string(name[:]), "\x00")
}

func setupColdTier() error {
	backendKind := strings.ToLower(os.Getenv("CDSTORE_COLDTIER_BACKEND"))
	if backendKind == "" {
		return nil
	}

	backend, err := openColdTierBackend(backendKind)
	if err != nil {
		return err
	}

	availSize := int64(1) << 30
	if v := os.Getenv("CDSTORE_COLDTIER_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cdserrors.New(cdserrors.KindInvalidArg, "server: CDSTORE_COLDTIER_SIZE must be an integer byte count")
		}
		availSize = n
	}

	recipeCache, err := coldtier.New(coldtier.Config{
		Dir:            coldCacheDir + "/Recipe",
		AvailCacheSize: availSize / 2,
		Backend:        backend,
	})
	if err != nil {
		return err
	}
	containerCache, err := coldtier.New(coldtier.Config{
		Dir:            coldCacheDir + "/Container",
		AvailCacheSize: availSize / 2,
		Backend:        backend,
	})
	if err != nil {
		return err
	}

	coldTierRecipeCache = recipeCache
	coldTierContainerCache = containerCache
	return nil
}

func closeColdTier() {
	if coldTierRecipeCache != nil {
		coldTierRecipeCache.Close()
	}
	if coldTierContainerCache != nil {
		coldTierContainerCache.Close()
	}
}

func openColdTierBackend(kind string) (coldtier.Backend, error) {
	switch kind {
	case "s3":
		return coldtier.NewS3Backend(
			os.Getenv("CDSTORE_S3_ENDPOINT"),
			os.Getenv("CDSTORE_S3_ACCESS_KEY"),
			os.Getenv("CDSTORE_S3_SECRET_KEY"),
			os.Getenv("CDSTORE_S3_BUCKET"),
			os.Getenv("CDSTORE_S3_TLS") == "true",
		)
	case "azure":
		return coldtier.NewAzureBackend(
			os.Getenv("CDSTORE_AZURE_ACCOUNT_URL"),
			os.Getenv("CDSTORE_AZURE_CONTAINER"),
		)
	case "gcs":
		return coldtier.NewGCSBackend(context.Background(), os.Getenv("CDSTORE_GCS_BUCKET"))
	case "sftp":
		keyBytes, err := os.ReadFile(os.Getenv("CDSTORE_SFTP_KEY_FILE"))
		if err != nil {
			return nil, cdserrors.Wrap(cdserrors.KindIO, err, "server: reading CDSTORE_SFTP_KEY_FILE")
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, cdserrors.Wrap(cdserrors.KindInvalidArg, err, "server: parsing SFTP private key")
		}
		return coldtier.NewSFTPBackend(
			os.Getenv("CDSTORE_SFTP_ADDR"),
			os.Getenv("CDSTORE_SFTP_USER"),
			signer,
			os.Getenv("CDSTORE_SFTP_BASE_DIR"),
		)
	default:
		return nil, cdserrors.New(cdserrors.KindInvalidArg, fmt.Sprintf("server: unknown CDSTORE_COLDTIER_BACKEND %q", kind))
	}
}
