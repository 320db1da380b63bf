// Package retriever selects the cached schema metadata relevant to one
// SQL unit and renders it as a context block for translation and
// correction. Retrieval is deterministic: identical input SQL over the
// same cache always yields the same objects in the same order, so the
// corrector sees the same prompt material on every run.
package retriever

import (
	"strings"

	"github.com/sqlshift/sqlshift/internal/sqlparse"
	"github.com/sqlshift/sqlshift/internal/store"
)

// Retriever resolves the metadata context for a SQL unit.
type Retriever interface {
	Retrieve(project, sql string) ([]store.SchemaObject, string, error)
}

// StoreRetriever retrieves context from the schema-object cache.
type StoreRetriever struct {
	store *store.Store
}

func New(s *store.Store) *StoreRetriever {
	return &StoreRetriever{store: s}
}

// Retrieve scans the SQL for referenced names and returns the matching
// cached objects plus the formatted context block. A script with no
// recognizable references yields an empty context and no error, so
// translation proceeds context-free.
func (r *StoreRetriever) Retrieve(project, sql string) ([]store.SchemaObject, string, error) {
	refs := sqlparse.References(sql)
	if len(refs) == 0 {
		return nil, "", nil
	}

	objects, err := r.store.QuerySchemaObjectsByNames(project, refs)
	if err != nil {
		return nil, "", err
	}
	if len(objects) == 0 {
		return nil, "", nil
	}
	return objects, FormatContext(objects), nil
}

// FormatContext renders schema objects as a commented SQL block: DDL for
// tables and views, source code for routines. Objects with neither are
// skipped.
func FormatContext(objects []store.SchemaObject) string {
	var b strings.Builder
	b.WriteString("\n--- [Related Schema Information] ---\n")

	for _, obj := range objects {
		fullName := obj.SchemaName + "." + obj.Name
		switch {
		case (obj.Type == "TABLE" || obj.Type == "VIEW") && obj.DDL != "":
			b.WriteString("-- Table/View: " + fullName + "\n")
			b.WriteString(obj.DDL + "\n")
		case obj.Source != "":
			b.WriteString("-- Source Code: " + fullName + "\n")
			b.WriteString(obj.Source + "\n")
		}
	}

	b.WriteString("------------------------------------\n")
	return b.String()
}
