package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// StageUpdate describes one committed orchestrator transition: the new
// migration-log row state plus, optionally, the rendered output derived in
// the same stage. CommitStage writes both in a single transaction so a
// crash can never leave the log advanced without its output or vice versa.
type StageUpdate struct {
	Project            string
	FilePath           string
	Status             string
	RetryCount         int
	LastErrorMsg       string
	DetectedSchemas    string
	TargetPath         string
	SkippedStatements  []string
	ExecutedStatements int

	Output *RenderedOutput
}

// CommitStage atomically upserts the migration log row and, when present,
// the rendered output for one asset.
func (s *Store) CommitStage(u StageUpdate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin stage commit: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.Exec(
		`INSERT INTO migration_logs (
			project_name, file_path, detected_schemas, status, retry_count,
			last_error_msg, target_path, skipped_statements, executed_statements, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_name, file_path) DO UPDATE SET
			detected_schemas = excluded.detected_schemas,
			status = excluded.status,
			retry_count = excluded.retry_count,
			last_error_msg = excluded.last_error_msg,
			target_path = excluded.target_path,
			skipped_statements = excluded.skipped_statements,
			executed_statements = excluded.executed_statements,
			updated_at = excluded.updated_at`,
		u.Project, u.FilePath, u.DetectedSchemas, u.Status, u.RetryCount,
		u.LastErrorMsg, u.TargetPath, strings.Join(u.SkippedStatements, "\n"),
		u.ExecutedStatements, now,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert migration log %s: %w", u.FilePath, err)
	}

	if u.Output != nil {
		if _, err := tx.Exec(upsertOutputSQL, upsertOutputArgs(*u.Output)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert rendered output %s: %w", u.FilePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stage %s: %w", u.FilePath, err)
	}
	return nil
}

// GetMigrationLog returns the progress record for an asset path, or nil.
func (s *Store) GetMigrationLog(project, filePath string) (*MigrationLog, error) {
	rows, err := s.db.Query(selectMigrationLogs+` WHERE project_name = ? AND file_path = ?`,
		project, filePath)
	if err != nil {
		return nil, fmt.Errorf("get migration log %s: %w", filePath, err)
	}
	defer rows.Close()

	logs, err := scanMigrationLogs(rows)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}

// ListMigrationLogs returns the project's progress records, optionally
// filtered by status, ordered by file path.
func (s *Store) ListMigrationLogs(project, status string) ([]MigrationLog, error) {
	q := selectMigrationLogs + ` WHERE project_name = ?`
	args := []any{project}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY file_path`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list migration logs: %w", err)
	}
	defer rows.Close()
	return scanMigrationLogs(rows)
}

// ResetMigrationLogs clears all progress records for a project, forcing
// every asset back to PENDING on the next run. Rendered outputs are kept.
func (s *Store) ResetMigrationLogs(project string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM migration_logs WHERE project_name = ?`, project)
	if err != nil {
		return 0, fmt.Errorf("reset migration logs: %w", err)
	}
	return res.RowsAffected()
}

// SummarizeMigration returns per-status counts for a project.
func (s *Store) SummarizeMigration(project string) ([]StatusCount, error) {
	rows, err := s.db.Query(
		`SELECT status, COUNT(*) FROM migration_logs
		 WHERE project_name = ?
		 GROUP BY status ORDER BY status`,
		project,
	)
	if err != nil {
		return nil, fmt.Errorf("summarize migration: %w", err)
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// AppendExecutionLog records one operational event.
func (s *Store) AppendExecutionLog(project, level, event, detail string) error {
	_, err := s.db.Exec(
		`INSERT INTO execution_logs (project_name, level, event, detail, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		project, strings.ToUpper(level), event, detail,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("append execution log: %w", err)
	}
	return nil
}

// FetchExecutionLogs returns the most recent operational events, newest first.
func (s *Store) FetchExecutionLogs(project string, limit int) ([]ExecutionLog, error) {
	rows, err := s.db.Query(
		`SELECT log_id, project_name, level, event, detail, created_at
		 FROM execution_logs
		 WHERE project_name = ?
		 ORDER BY log_id DESC LIMIT ?`,
		project, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch execution logs: %w", err)
	}
	defer rows.Close()

	var logs []ExecutionLog
	for rows.Next() {
		var l ExecutionLog
		var created string
		if err := rows.Scan(&l.ID, &l.Project, &l.Level, &l.Event, &l.Detail, &created); err != nil {
			return nil, err
		}
		l.CreatedAt = parseStoredTime(created)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

const selectMigrationLogs = `SELECT project_name, file_path, detected_schemas, status,
	retry_count, last_error_msg, target_path, skipped_statements,
	executed_statements, updated_at
 FROM migration_logs`

func scanMigrationLogs(rows *sql.Rows) ([]MigrationLog, error) {
	var logs []MigrationLog
	for rows.Next() {
		var l MigrationLog
		var skipped, updated string
		if err := rows.Scan(
			&l.Project, &l.FilePath, &l.DetectedSchemas, &l.Status,
			&l.RetryCount, &l.LastErrorMsg, &l.TargetPath, &skipped,
			&l.ExecutedStatements, &updated,
		); err != nil {
			return nil, err
		}
		l.SkippedStatements = skipped
		l.UpdatedAt = parseStoredTime(updated)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
