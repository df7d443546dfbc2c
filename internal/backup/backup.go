// Package backup archives the upgraded SQLite store (inventory, attempts and
// audit trail) plus an optional config file into a tar.gz, and restores such
// archives. The audit trail is the system of record for past upgrades, so
// operators snapshot it before host maintenance.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// Backup writes dbPath (after a WAL checkpoint) and, when present, configPath
// into a gzipped tar at outputPath.
func Backup(_ context.Context, dbPath, configPath, outputPath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database file: %w", err)
	}

	// Flush the WAL so the copied file is a complete snapshot.
	if err := checkpoint(dbPath); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	defer gw.Close()
	tw := tar.NewWriter(gw)
	defer tw.Close()

	if err := writeEntry(tw, dbPath); err != nil {
		return fmt.Errorf("archive database: %w", err)
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := writeEntry(tw, configPath); err != nil {
				return fmt.Errorf("archive config: %w", err)
			}
		}
		// A missing config file is skipped, not an error.
	}
	return nil
}

// Restore unpacks an archive produced by Backup into dataDir. Existing files
// are only overwritten with overwrite set.
func Restore(_ context.Context, archivePath, dataDir string, overwrite bool) error {
	in, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()

	gr, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	defer gr.Close()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Base(hdr.Name)
		if name == "." || name == ".." || strings.Contains(hdr.Name, "..") {
			return fmt.Errorf("archive entry %q has an unsafe name", hdr.Name)
		}
		target := filepath.Join(dataDir, name)

		if !overwrite {
			if _, err := os.Stat(target); err == nil {
				return fmt.Errorf("%s already exists (use force to overwrite)", target)
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}

		if err := extractEntry(tr, target, hdr.FileInfo().Mode()); err != nil {
			return fmt.Errorf("restore %s: %w", name, err)
		}
	}
}

func checkpoint(dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func writeEntry(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

func extractEntry(tr *tar.Reader, target string, mode os.FileMode) error {
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, tr)
	return err
}
