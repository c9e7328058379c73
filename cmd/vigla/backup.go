package main

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/mtzanidakis/vigla/internal/config"
)

// Archive layout: "store/<file>" for the sqlite database and its
// sidecars, "nats/<path>" for the JetStream data directory.
const (
	archiveStorePrefix = "store"
	archiveNATSPrefix  = "nats"
)

func runBackup(args []string) error {
	var outputPath string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			outputPath = args[i]
		}
	}

	if outputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: vigla backup -f <output.tar.zst>\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	count := 0

	// SQLite database plus WAL/SHM sidecars if present.
	for _, p := range []string{cfg.Store.Path, cfg.Store.Path + "-wal", cfg.Store.Path + "-shm"} {
		added, err := addFile(tw, p, path.Join(archiveStorePrefix, filepath.Base(p)))
		if err != nil {
			return fmt.Errorf("archive %s: %w", p, err)
		}
		if added {
			count++
		}
	}

	n, err := addTree(tw, cfg.NATS.DataDir, archiveNATSPrefix)
	if err != nil {
		return fmt.Errorf("archive nats data: %w", err)
	}
	count += n

	// Close everything explicitly to catch write errors
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	info, _ := os.Stat(outputPath)
	size := int64(0)
	if info != nil {
		size = info.Size()
	}

	fmt.Printf("Backup complete: %d files, %s\n", count, formatSize(size))
	return nil
}

func runRestore(args []string) error {
	var inputPath string
	overwrite := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			inputPath = args[i]
		case "-overwrite":
			overwrite = true
		}
	}

	if inputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: vigla restore -f <backup.tar.zst> [-overwrite]\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if !overwrite {
		if _, err := os.Stat(cfg.Store.Path); err == nil {
			return fmt.Errorf("store %s already exists, add -overwrite to replace files", cfg.Store.Path)
		}
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)

	restored := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		dest, ok := restorePath(cfg, hdr.Name)
		if !ok {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", dest, err)
		}

		out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode).Perm())
		if err != nil {
			return fmt.Errorf("create %s: %w", dest, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("write %s: %w", dest, err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("close %s: %w", dest, err)
		}
		restored++
	}

	fmt.Printf("Restore complete: %d files\n", restored)
	return nil
}

// restorePath maps an archive entry back onto the configured data
// locations. Entries outside the known prefixes, or containing path
// traversal, are skipped.
func restorePath(cfg *config.Config, name string) (string, bool) {
	name = path.Clean(strings.TrimLeft(name, "./"))
	if name == "" || strings.Contains(name, "..") {
		return "", false
	}

	prefix, rel, found := strings.Cut(name, "/")
	if !found || rel == "" {
		return "", false
	}

	switch prefix {
	case archiveStorePrefix:
		return filepath.Join(filepath.Dir(cfg.Store.Path), filepath.FromSlash(rel)), true
	case archiveNATSPrefix:
		return filepath.Join(cfg.NATS.DataDir, filepath.FromSlash(rel)), true
	default:
		return "", false
	}
}

// addFile writes a single file into the archive under name. A missing
// file is not an error; WAL sidecars come and go.
func addFile(tw *tar.Writer, src, name string) (bool, error) {
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return false, err
	}
	hdr.Name = name

	if err := tw.WriteHeader(hdr); err != nil {
		return false, err
	}

	f, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return false, err
	}
	return true, nil
}

// addTree archives every regular file under root, prefixed with prefix.
func addTree(tw *tar.Writer, root, prefix string) (int, error) {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		added, err := addFile(tw, p, path.Join(prefix, filepath.ToSlash(rel)))
		if err != nil {
			return err
		}
		if added {
			count++
		}
		return nil
	})
	return count, err
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
