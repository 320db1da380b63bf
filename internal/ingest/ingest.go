// Package ingest moves SQL files between the filesystem and the state
// store: scanning the source directory into source assets, exporting
// rendered outputs to the target directory, and optionally watching the
// source directory for live re-ingestion.
package ingest

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sqlshift/sqlshift/internal/store"
)

// Scan walks sourceDir and syncs every .sql file into the store. New
// files arrive selected; with overrideSelection, existing files are
// reselected too. Returns the number of files synced.
func Scan(st *store.Store, project, sourceDir string, overrideSelection bool) (int, error) {
	count := 0
	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".sql") {
			return nil
		}
		if err := SyncFile(st, project, path); err != nil {
			return err
		}
		if overrideSelection {
			if err := st.SetSelection(project, path, true); err != nil {
				return err
			}
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("scan %s: %w", sourceDir, err)
	}
	log.Printf("ingest: synced %d files from %s", count, sourceDir)
	return count, nil
}

// SyncFile reads one SQL file and upserts its source asset. Selection of
// previously known files is preserved.
func SyncFile(st *store.Store, project, path string) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := st.SyncSourceAsset(project, path, string(text), "", true, false); err != nil {
		return err
	}
	return nil
}

// Export writes rendered outputs to targetDir, one file per asset. With
// onlyVerified, unverified candidates are left out. Returns the number
// of files written.
func Export(st *store.Store, project, targetDir string, onlyVerified bool) (int, error) {
	outputs, err := st.ListRenderedOutputs(project)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return 0, fmt.Errorf("create target dir: %w", err)
	}

	written := 0
	for _, out := range outputs {
		if onlyVerified && !out.Verified {
			continue
		}
		if out.SQLText == "" {
			continue
		}
		dest := filepath.Join(targetDir, out.FileName)
		if err := os.WriteFile(dest, []byte(out.SQLText), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", dest, err)
		}
		written++
	}
	log.Printf("ingest: exported %d files to %s", written, targetDir)
	return written, nil
}
