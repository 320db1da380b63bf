// Package report generates migration progress reports from the store
// data. It reads the SQLite database directly, joining migration logs
// with their rendered outputs, and is the only operator-facing summary
// of orchestration progress.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sqlshift/sqlshift/internal/store"
)

// Filter narrows a project report.
type Filter struct {
	Schema string // match against detected schemas, case-insensitive
	Status string // exact status match
}

// ProjectReport holds the full migration report for one project.
type ProjectReport struct {
	Project     string               `json:"project"`
	TotalAssets int                  `json:"total_assets"`
	ByStatus    map[string]int       `json:"by_status"`
	Assets      []AssetReport        `json:"assets"`
	RecentLogs  []store.ExecutionLog `json:"recent_logs,omitempty"`
}

// AssetReport is the per-asset row of the report.
type AssetReport struct {
	FilePath           string   `json:"file_path"`
	Status             string   `json:"status"`
	RetryCount         int      `json:"retry_count"`
	DetectedSchemas    string   `json:"detected_schemas,omitempty"`
	LastError          string   `json:"last_error,omitempty"`
	SkippedStatements  []string `json:"skipped_statements,omitempty"`
	ExecutedStatements int      `json:"executed_statements"`
	Verified           bool     `json:"verified"`
	TargetPath         string   `json:"target_path,omitempty"`
}

// Generate opens the store at dbPath and produces the project report.
func Generate(dbPath, project string, f Filter) (*ProjectReport, error) {
	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer s.Close()
	return GenerateFromStore(s, project, f)
}

// GenerateFromStore produces the report from an open store. Exported for
// testing against temporary stores.
func GenerateFromStore(s *store.Store, project string, f Filter) (*ProjectReport, error) {
	logs, err := s.ListMigrationLogs(project, f.Status)
	if err != nil {
		return nil, fmt.Errorf("list migration logs: %w", err)
	}

	outputs := make(map[string]store.RenderedOutput)
	outs, err := s.ListRenderedOutputs(project)
	if err != nil {
		return nil, fmt.Errorf("list rendered outputs: %w", err)
	}
	for _, out := range outs {
		outputs[out.FilePath] = out
	}

	r := &ProjectReport{
		Project:  project,
		ByStatus: make(map[string]int),
	}
	for _, l := range logs {
		if f.Schema != "" && !schemaMatches(l.DetectedSchemas, f.Schema) {
			continue
		}
		asset := AssetReport{
			FilePath:           l.FilePath,
			Status:             l.Status,
			RetryCount:         l.RetryCount,
			DetectedSchemas:    l.DetectedSchemas,
			LastError:          l.LastErrorMsg,
			ExecutedStatements: l.ExecutedStatements,
			TargetPath:         l.TargetPath,
		}
		if l.SkippedStatements != "" {
			asset.SkippedStatements = strings.Split(l.SkippedStatements, "\n")
		}
		if out, ok := outputs[l.FilePath]; ok {
			asset.Verified = out.Verified
		}
		r.Assets = append(r.Assets, asset)
		r.ByStatus[l.Status]++
		r.TotalAssets++
	}

	// Failures first so the operator sees what needs attention.
	sort.SliceStable(r.Assets, func(i, j int) bool {
		ri, rj := statusRank(r.Assets[i].Status), statusRank(r.Assets[j].Status)
		if ri != rj {
			return ri < rj
		}
		return r.Assets[i].FilePath < r.Assets[j].FilePath
	})

	if recent, err := s.FetchExecutionLogs(project, 10); err == nil {
		r.RecentLogs = recent
	}
	return r, nil
}

func schemaMatches(detected, want string) bool {
	want = strings.ToUpper(want)
	for _, name := range strings.Split(detected, ",") {
		if strings.ToUpper(strings.TrimSpace(name)) == want {
			return true
		}
	}
	return false
}

func statusRank(status string) int {
	switch status {
	case store.StatusFailed:
		return 0
	case store.StatusVerifyFail:
		return 1
	case store.StatusNeedPermission:
		return 2
	case store.StatusDone:
		return 4
	default:
		return 3 // in-flight stages
	}
}
