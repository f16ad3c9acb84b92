// Command pack_submission archives a player's code the way the platform
// expects it: a tar of the directory, named by the sha256 of its bytes,
// dropped into the repository path. With -user set it also registers the
// archive as that user's active submission.
package main

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lguibr/arena/store"
	"github.com/lguibr/arena/utils"
)

func main() {
	dir := flag.String("dir", "", "directory containing the submission code")
	repo := flag.String("repo", "", "repository path (defaults to the configured one)")
	user := flag.String("user", "", "register the archive for this user id")
	flag.Parse()
	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := utils.LoadConfig(utils.ConfigPath())
	if err != nil {
		log.Fatal(err)
	}
	if *repo == "" {
		*repo = cfg.SubmissionRunner.RepoPath
	}

	archive, err := packDirectory(*dir)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.MaxRepoSizeBytes > 0 && int64(len(archive)) > cfg.MaxRepoSizeBytes {
		log.Fatalf("archive is %d bytes, limit is %d", len(archive), cfg.MaxRepoSizeBytes)
	}

	sum := sha256.Sum256(archive)
	hash := hex.EncodeToString(sum[:])
	path := filepath.Join(*repo, hash+".tar")
	if err := os.WriteFile(path, archive, 0o644); err != nil {
		log.Fatal(err)
	}
	fmt.Println(hash)

	if *user == "" {
		return
	}
	db, err := store.Open(os.Getenv("DATABASE_URL"), zap.NewNop().Sugar())
	if err != nil {
		log.Fatal(err)
	}
	sub, err := db.AddSubmission(context.Background(), *user, hash)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("registered submission %d for %s\n", sub.ID, *user)
}

// packDirectory tars every regular file under root with root-relative names.
// Header times are zeroed so identical content always produces an identical
// archive, and therefore an identical hash.
func packDirectory(root string) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := tw.WriteHeader(&tar.Header{
			Name: filepath.ToSlash(rel),
			Mode: 0o644,
			Size: info.Size(),
		}); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
