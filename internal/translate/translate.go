// Package translate rewrites source-dialect SQL into a PostgreSQL
// candidate. The engine is a deterministic rule set per dialect: known
// constructs are rewritten in place, constructs with no mechanical
// equivalent are left untouched and reported as diagnostics for the
// corrector and the final report.
package translate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sqlshift/sqlshift/internal/sqlparse"
)

// Diagnostic flags one unsupported or lossy construct found during
// translation. Diagnostics never block the pipeline.
type Diagnostic struct {
	Construct string
	Detail    string
}

func (d Diagnostic) String() string {
	return d.Construct + ": " + d.Detail
}

// Translator produces a PostgreSQL candidate from source-dialect SQL.
// Implementations must be pure: same input, same output, no side effects.
type Translator interface {
	Translate(sql, dialect string) (string, []Diagnostic, error)
}

// Engine is the built-in rule-based Translator.
type Engine struct{}

func New() *Engine { return &Engine{} }

// Translate splits the script into statements, applies the dialect's
// rewrite rules to each, and reassembles the result. Comments are not
// preserved. An unknown dialect or an empty script is an error.
func (e *Engine) Translate(sql, dialect string) (string, []Diagnostic, error) {
	set, ok := ruleSets[strings.ToLower(dialect)]
	if !ok {
		return "", nil, fmt.Errorf("no translation rules for dialect %q", dialect)
	}

	stmts, err := sqlparse.Split(sql)
	if err != nil {
		return "", nil, fmt.Errorf("translate %s script: %w", dialect, err)
	}

	var diags []Diagnostic
	out := make([]string, 0, len(stmts))
	for _, stmt := range stmts {
		text, d := set.apply(stmt.Text)
		diags = append(diags, d...)
		out = append(out, strings.TrimSpace(text)+";")
	}
	return strings.Join(out, "\n\n"), diags, nil
}

// SupportedDialects returns the dialect names the engine has rules for.
func SupportedDialects() []string {
	names := make([]string, 0, len(ruleSets))
	for name := range ruleSets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
