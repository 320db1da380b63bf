package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// UpsertSchemaObjects writes a batch of extracted schema objects in one
// transaction. Re-extraction overwrites DDL and source in place; the
// (project, schema, name, type) key never duplicates.
func (s *Store) UpsertSchemaObjects(project string, objects []SchemaObject) error {
	if len(objects) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin metadata upsert: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, obj := range objects {
		_, err := tx.Exec(
			`INSERT INTO schema_objects (
				project_name, schema_name, obj_name, obj_type, ddl_script, source_code, extracted_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(project_name, schema_name, obj_name, obj_type) DO UPDATE SET
				ddl_script = excluded.ddl_script,
				source_code = excluded.source_code,
				extracted_at = excluded.extracted_at`,
			project, strings.ToUpper(obj.SchemaName), strings.ToUpper(obj.Name),
			strings.ToUpper(obj.Type), obj.DDL, obj.Source, now,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert schema object %s.%s: %w", obj.SchemaName, obj.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit metadata upsert: %w", err)
	}
	return nil
}

// QuerySchemaObjectsByNames returns cached objects whose name matches any
// of the given (upper-cased) names. Results are ordered by
// (type rank, schema, name) so identical inputs always produce identical
// context: tables first, then views, then routines.
func (s *Store) QuerySchemaObjectsByNames(project string, names []string) ([]SchemaObject, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(names))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(names)+1)
	for _, name := range names {
		args = append(args, strings.ToUpper(name))
	}
	args = append(args, project)

	rows, err := s.db.Query(
		`SELECT obj_id, project_name, schema_name, obj_name, obj_type,
		        ddl_script, source_code, extracted_at
		 FROM schema_objects
		 WHERE obj_name IN (`+placeholders+`) AND project_name = ?
		 ORDER BY
			CASE obj_type WHEN 'TABLE' THEN 0 WHEN 'VIEW' THEN 1 ELSE 2 END,
			schema_name,
			obj_name`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query schema objects: %w", err)
	}
	defer rows.Close()
	return scanSchemaObjects(rows)
}

// ListSchemas returns the distinct schema names cached for a project.
func (s *Store) ListSchemas(project string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT schema_name FROM schema_objects
		 WHERE project_name = ? ORDER BY schema_name`,
		project,
	)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		schemas = append(schemas, name)
	}
	return schemas, rows.Err()
}

// ListSchemaObjects returns cached objects for a project, optionally
// restricted to one schema, ordered by (schema, type, name).
func (s *Store) ListSchemaObjects(project, schema string) ([]SchemaObject, error) {
	q := `SELECT obj_id, project_name, schema_name, obj_name, obj_type,
	             ddl_script, source_code, extracted_at
	      FROM schema_objects
	      WHERE project_name = ?`
	args := []any{project}
	if schema != "" {
		q += ` AND schema_name = ?`
		args = append(args, strings.ToUpper(schema))
	}
	q += ` ORDER BY schema_name, obj_type, obj_name`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list schema objects: %w", err)
	}
	defer rows.Close()
	return scanSchemaObjects(rows)
}

func scanSchemaObjects(rows *sql.Rows) ([]SchemaObject, error) {
	var objects []SchemaObject
	for rows.Next() {
		var o SchemaObject
		var extracted string
		if err := rows.Scan(
			&o.ID, &o.Project, &o.SchemaName, &o.Name, &o.Type,
			&o.DDL, &o.Source, &extracted,
		); err != nil {
			return nil, err
		}
		o.ExtractedAt = parseStoredTime(extracted)
		objects = append(objects, o)
	}
	return objects, rows.Err()
}
