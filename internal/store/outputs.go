package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"
)

// SaveRenderedOutput upserts the current output for an asset outside of a
// stage transition (used by apply mode and re-verification). Stage
// transitions during a migration run go through CommitStage instead so the
// log and the output land in one transaction.
func (s *Store) SaveRenderedOutput(out RenderedOutput) error {
	_, err := s.db.Exec(upsertOutputSQL, upsertOutputArgs(out)...)
	if err != nil {
		return fmt.Errorf("save rendered output %s: %w", out.FilePath, err)
	}
	return nil
}

// GetRenderedOutput returns the current output for an asset path, or nil.
func (s *Store) GetRenderedOutput(project, filePath string) (*RenderedOutput, error) {
	rows, err := s.db.Query(
		`SELECT output_id, project_name, asset_id, file_name, file_path, sql_text,
		        content_hash, source_hash, status, verified, last_error, updated_at
		 FROM rendered_outputs
		 WHERE project_name = ? AND file_path = ?`,
		project, filePath,
	)
	if err != nil {
		return nil, fmt.Errorf("get rendered output %s: %w", filePath, err)
	}
	defer rows.Close()

	outputs, err := scanRenderedOutputs(rows)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, nil
	}
	return &outputs[0], nil
}

// ListRenderedOutputs returns the project's outputs ordered by file name.
func (s *Store) ListRenderedOutputs(project string) ([]RenderedOutput, error) {
	rows, err := s.db.Query(
		`SELECT output_id, project_name, asset_id, file_name, file_path, sql_text,
		        content_hash, source_hash, status, verified, last_error, updated_at
		 FROM rendered_outputs
		 WHERE project_name = ?
		 ORDER BY file_name`,
		project,
	)
	if err != nil {
		return nil, fmt.Errorf("list rendered outputs: %w", err)
	}
	defer rows.Close()
	return scanRenderedOutputs(rows)
}

const upsertOutputSQL = `INSERT INTO rendered_outputs (
	project_name, asset_id, file_name, file_path, sql_text,
	content_hash, source_hash, status, verified, last_error, updated_at
 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
 ON CONFLICT(project_name, file_path) DO UPDATE SET
	asset_id = excluded.asset_id,
	sql_text = excluded.sql_text,
	content_hash = excluded.content_hash,
	source_hash = excluded.source_hash,
	status = excluded.status,
	verified = excluded.verified,
	last_error = excluded.last_error,
	updated_at = excluded.updated_at`

func upsertOutputArgs(out RenderedOutput) []any {
	contentHash := ""
	if out.SQLText != "" {
		contentHash = HashSQL(out.SQLText)
	}
	return []any{
		out.Project, out.AssetID, filepath.Base(out.FilePath), out.FilePath, out.SQLText,
		contentHash, out.SourceHash, out.Status, boolToInt(out.Verified), out.LastError,
		time.Now().UTC().Format(time.RFC3339),
	}
}

func scanRenderedOutputs(rows *sql.Rows) ([]RenderedOutput, error) {
	var outputs []RenderedOutput
	for rows.Next() {
		var o RenderedOutput
		var verified int
		var updated string
		if err := rows.Scan(
			&o.ID, &o.Project, &o.AssetID, &o.FileName, &o.FilePath, &o.SQLText,
			&o.ContentHash, &o.SourceHash, &o.Status, &verified, &o.LastError, &updated,
		); err != nil {
			return nil, err
		}
		o.Verified = verified != 0
		o.UpdatedAt = parseStoredTime(updated)
		outputs = append(outputs, o)
	}
	return outputs, rows.Err()
}
