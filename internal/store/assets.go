package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// SyncSourceAsset inserts or updates one source asset. The content hash is
// recomputed from sqlText; an unchanged file is a no-op apart from the
// updated_at bump. Selection is preserved on update unless overrideSelection
// is set.
func (s *Store) SyncSourceAsset(project, filePath, sqlText, parsedSchemas string, selected, overrideSelection bool) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(
		`INSERT INTO source_assets (
			project_name, file_name, file_path, sql_text, content_hash,
			parsed_schemas, selected_for_port, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_name, file_path) DO UPDATE SET
			sql_text = excluded.sql_text,
			content_hash = excluded.content_hash,
			parsed_schemas = CASE WHEN excluded.parsed_schemas != '' THEN excluded.parsed_schemas ELSE source_assets.parsed_schemas END,
			selected_for_port = CASE WHEN ? THEN excluded.selected_for_port ELSE source_assets.selected_for_port END,
			updated_at = excluded.updated_at`,
		project, filepath.Base(filePath), filePath, sqlText, HashSQL(sqlText),
		parsedSchemas, boolToInt(selected), now, now,
		boolToInt(overrideSelection),
	)
	if err != nil {
		return fmt.Errorf("sync source asset %s: %w", filePath, err)
	}
	return nil
}

// ListOptions filters ListSourceAssets.
type ListOptions struct {
	OnlySelected bool
	// ChangedOnly keeps assets with no rendered output yet or whose
	// output's source_hash no longer matches the asset content.
	ChangedOnly bool
}

// ListSourceAssets returns the project's assets ordered by file name.
func (s *Store) ListSourceAssets(project string, opts ListOptions) ([]SourceAsset, error) {
	q := []string{
		`SELECT sa.asset_id, sa.project_name, sa.file_name, sa.file_path, sa.sql_text,
		        sa.content_hash, sa.parsed_schemas, sa.selected_for_port, sa.notes,
		        sa.created_at, sa.updated_at
		 FROM source_assets sa
		 LEFT JOIN rendered_outputs ro
		   ON sa.project_name = ro.project_name AND sa.file_path = ro.file_path
		 WHERE sa.project_name = ?`,
	}
	if opts.OnlySelected {
		q = append(q, "AND sa.selected_for_port = 1")
	}
	if opts.ChangedOnly {
		q = append(q, "AND (ro.source_hash IS NULL OR ro.source_hash != sa.content_hash)")
	}
	q = append(q, "ORDER BY sa.file_name")

	rows, err := s.db.Query(strings.Join(q, "\n"), project)
	if err != nil {
		return nil, fmt.Errorf("list source assets: %w", err)
	}
	defer rows.Close()
	return scanSourceAssets(rows)
}

// GetSourceAsset returns one asset by path, or nil if absent.
func (s *Store) GetSourceAsset(project, filePath string) (*SourceAsset, error) {
	rows, err := s.db.Query(
		`SELECT asset_id, project_name, file_name, file_path, sql_text,
		        content_hash, parsed_schemas, selected_for_port, notes,
		        created_at, updated_at
		 FROM source_assets
		 WHERE project_name = ? AND file_path = ?`,
		project, filePath,
	)
	if err != nil {
		return nil, fmt.Errorf("get source asset %s: %w", filePath, err)
	}
	defer rows.Close()

	assets, err := scanSourceAssets(rows)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, nil
	}
	return &assets[0], nil
}

// SetSelection marks one file as selected (or deselected) for porting.
func (s *Store) SetSelection(project, filePath string, selected bool) error {
	_, err := s.db.Exec(
		`UPDATE source_assets
		 SET selected_for_port = ?, updated_at = ?
		 WHERE project_name = ? AND file_path = ?`,
		boolToInt(selected), time.Now().UTC().Format(time.RFC3339), project, filePath,
	)
	if err != nil {
		return fmt.Errorf("set selection: %w", err)
	}
	return nil
}

func scanSourceAssets(rows *sql.Rows) ([]SourceAsset, error) {
	var assets []SourceAsset
	for rows.Next() {
		var a SourceAsset
		var selected int
		var created, updated string
		if err := rows.Scan(
			&a.ID, &a.Project, &a.FileName, &a.FilePath, &a.SQLText,
			&a.ContentHash, &a.ParsedSchemas, &selected, &a.Notes,
			&created, &updated,
		); err != nil {
			return nil, err
		}
		a.Selected = selected != 0
		a.CreatedAt = parseStoredTime(created)
		a.UpdatedAt = parseStoredTime(updated)
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func parseStoredTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
