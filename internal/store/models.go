package store

import "time"

// Migration statuses. The orchestrator owns all transitions; everything
// else only reads them.
const (
	StatusPending        = "PENDING"
	StatusTranslating    = "TRANSLATING"
	StatusReviewing      = "REVIEWING"
	StatusVerifying      = "VERIFYING"
	StatusDone           = "DONE"
	StatusFailed         = "FAILED"
	StatusVerifyFail     = "VERIFY_FAIL"
	StatusNeedPermission = "NEED_PERMISSION"

	// Apply-mode outcomes, recorded on rendered outputs only.
	StatusApplied   = "APPLIED"
	StatusApplyFail = "APPLY_FAIL"
)

// SchemaObject is one extracted source-database object: a table, view,
// or routine, keyed by (project, schema, name, type).
type SchemaObject struct {
	ID          int64
	Project     string
	SchemaName  string
	Name        string
	Type        string // TABLE, VIEW, PROCEDURE, FUNCTION, PACKAGE
	DDL         string
	Source      string
	ExtractedAt time.Time
}

// SourceAsset is one unit of source SQL to migrate.
type SourceAsset struct {
	ID            int64
	Project       string
	FileName      string
	FilePath      string
	SQLText       string
	ContentHash   string
	ParsedSchemas string
	Selected      bool
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RenderedOutput is the current migration result for one asset.
// SourceHash pins it to the exact asset content it was derived from.
type RenderedOutput struct {
	ID          int64
	Project     string
	AssetID     int64
	FileName    string
	FilePath    string
	SQLText     string
	ContentHash string
	SourceHash  string
	Status      string
	Verified    bool
	LastError   string
	UpdatedAt   time.Time
}

// MigrationLog is the per-asset progress record consulted on resume.
type MigrationLog struct {
	Project            string
	FilePath           string
	DetectedSchemas    string
	Status             string
	RetryCount         int
	LastErrorMsg       string
	TargetPath         string
	SkippedStatements  string
	ExecutedStatements int
	UpdatedAt          time.Time
}

// ExecutionLog is one append-only operational event.
type ExecutionLog struct {
	ID        int64
	Project   string
	Level     string
	Event     string
	Detail    string
	CreatedAt time.Time
}

// StatusCount is one row of the migration summary.
type StatusCount struct {
	Status string
	Count  int
}
