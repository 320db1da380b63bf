// Package extract pulls schema metadata (table shapes, view definitions,
// routine source) out of the source database and caches it in the state
// store for the context retriever. Each supported dialect has a catalog
// query set; all of them run over database/sql, so dialects whose driver
// is not linked into this build fail at Open with the driver error.
package extract

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	_ "github.com/go-sql-driver/mysql" // mysql/mariadb source driver
	_ "github.com/jackc/pgx/v5/stdlib" // postgres source driver

	"github.com/sqlshift/sqlshift/internal/store"
)

// ErrUnsupportedDialect is returned by Open for dialects with no catalog
// query set.
var ErrUnsupportedDialect = errors.New("unsupported source dialect")

// Extractor reads schema metadata from a source database. An empty
// schema name means the connection's default schema.
type Extractor interface {
	ExtractSchema(ctx context.Context, schema string) ([]store.SchemaObject, error)
	Close() error
}

// Open connects to the source database for the given dialect.
//
// mysql, mariadb and postgres work with the drivers linked into this
// module. oracle, mssql, db2, hana and snowflake expect the conventional
// driver registration names (oracle, sqlserver, go_ibm_db, hdb,
// snowflake); builds without those drivers get the sql.Open error.
func Open(dialect, uri string) (Extractor, error) {
	spec, ok := dialects[strings.ToLower(dialect)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, dialect)
	}

	db, err := sql.Open(spec.driver, uri)
	if err != nil {
		return nil, fmt.Errorf("open %s source: %w", dialect, err)
	}
	return &sqlExtractor{db: db, dialect: strings.ToLower(dialect), spec: spec}, nil
}

// Sync extracts every configured schema and upserts the results into the
// state store. An empty schema list extracts the connection default.
func Sync(ctx context.Context, ex Extractor, st *store.Store, project string, schemas []string) (int, error) {
	if len(schemas) == 0 {
		schemas = []string{""}
	}

	total := 0
	for _, schema := range schemas {
		label := schema
		if label == "" {
			label = "DEFAULT"
		}

		objects, err := ex.ExtractSchema(ctx, schema)
		if err != nil {
			return total, fmt.Errorf("extract schema %s: %w", label, err)
		}
		if len(objects) == 0 {
			log.Printf("extract: no objects found for schema %s", label)
			continue
		}
		for i := range objects {
			if objects[i].SchemaName == "" {
				objects[i].SchemaName = label
			}
		}

		if err := st.UpsertSchemaObjects(project, objects); err != nil {
			return total, fmt.Errorf("persist schema %s: %w", label, err)
		}
		log.Printf("extract: schema %s cached %d objects", label, len(objects))
		total += len(objects)
	}
	return total, nil
}

type sqlExtractor struct {
	db      *sql.DB
	dialect string
	spec    dialectSpec
}

func (e *sqlExtractor) Close() error { return e.db.Close() }

// ExtractSchema gathers tables, views and routines for one schema.
func (e *sqlExtractor) ExtractSchema(ctx context.Context, schema string) ([]store.SchemaObject, error) {
	if schema == "" {
		schema = e.spec.defaultSchema
	}
	if e.spec.upperSchema {
		schema = strings.ToUpper(schema)
	}

	var objects []store.SchemaObject

	cols, err := e.queryColumns(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("%s tables: %w", e.dialect, err)
	}
	objects = append(objects, tableObjects(cols)...)

	views, err := e.queryViews(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("%s views: %w", e.dialect, err)
	}
	objects = append(objects, views...)

	if e.spec.routines != "" {
		routines, err := e.queryRoutines(ctx, schema)
		if err != nil {
			return nil, fmt.Errorf("%s routines: %w", e.dialect, err)
		}
		objects = append(objects, routines...)
	}
	return objects, nil
}

func (e *sqlExtractor) queryColumns(ctx context.Context, schema string) ([]columnRow, error) {
	rows, err := e.db.QueryContext(ctx, e.spec.columns, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []columnRow
	for rows.Next() {
		var c columnRow
		if err := rows.Scan(&c.Table, &c.Column, &c.Type); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (e *sqlExtractor) queryViews(ctx context.Context, schema string) ([]store.SchemaObject, error) {
	rows, err := e.db.QueryContext(ctx, e.spec.views, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objects []store.SchemaObject
	for rows.Next() {
		var name string
		var def sql.NullString
		if err := rows.Scan(&name, &def); err != nil {
			return nil, err
		}
		objects = append(objects, store.SchemaObject{
			Name: name, Type: "VIEW", Source: def.String,
		})
	}
	return objects, rows.Err()
}

func (e *sqlExtractor) queryRoutines(ctx context.Context, schema string) ([]store.SchemaObject, error) {
	params := e.spec.routineParams
	if params == 0 {
		params = 1
	}
	args := make([]any, params)
	for i := range args {
		args[i] = schema
	}
	rows, err := e.db.QueryContext(ctx, e.spec.routines, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []routineRow
	for rows.Next() {
		var r routineRow
		var src sql.NullString
		if err := rows.Scan(&r.Name, &r.Type, &src); err != nil {
			return nil, err
		}
		r.Source = src.String
		lines = append(lines, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return routineObjects(lines, e.spec.routineTypes), nil
}
