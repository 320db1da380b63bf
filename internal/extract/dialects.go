package extract

import (
	"strings"

	"github.com/sqlshift/sqlshift/internal/store"
)

// dialectSpec holds the catalog queries for one source dialect. Every
// query takes the schema name as its only parameter, in the dialect's
// placeholder style. An empty routines query means the dialect exposes
// no routine source.
type dialectSpec struct {
	driver        string
	defaultSchema string
	upperSchema   bool
	columns       string // -> (table_name, column_name, data_type)
	views         string // -> (view_name, definition)
	routines      string // -> (routine_name, type_code, source)
	routineParams int    // schema placeholders in routines; 0 means 1
	routineTypes  map[string]string
}

type columnRow struct {
	Table  string
	Column string
	Type   string
}

type routineRow struct {
	Name   string
	Type   string
	Source string
}

// tableObjects folds ordered column rows into one synthetic CREATE TABLE
// per table. Rows must arrive ordered by (table, ordinal position).
func tableObjects(cols []columnRow) []store.SchemaObject {
	var objects []store.SchemaObject
	var current string
	var defs []string

	flush := func() {
		if current == "" {
			return
		}
		ddl := "CREATE TABLE " + current + " (\n  " + strings.Join(defs, ",\n  ") + "\n);"
		objects = append(objects, store.SchemaObject{Name: current, Type: "TABLE", DDL: ddl})
		defs = nil
	}

	for _, c := range cols {
		if c.Table != current {
			flush()
			current = c.Table
		}
		defs = append(defs, c.Column+" "+c.Type)
	}
	flush()
	return objects
}

// routineObjects merges per-line routine rows (Oracle streams source one
// line at a time) and maps dialect type codes to canonical type names.
func routineObjects(lines []routineRow, typeMap map[string]string) []store.SchemaObject {
	var objects []store.SchemaObject
	for _, l := range lines {
		typ := strings.ToUpper(strings.TrimSpace(l.Type))
		if mapped, ok := typeMap[typ]; ok {
			typ = mapped
		}
		n := len(objects)
		if n > 0 && objects[n-1].Name == l.Name && objects[n-1].Type == typ {
			objects[n-1].Source += l.Source
			continue
		}
		objects = append(objects, store.SchemaObject{Name: l.Name, Type: typ, Source: l.Source})
	}
	return objects
}

var dialects = map[string]dialectSpec{
	"oracle": {
		driver:        "oracle",
		defaultSchema: "SYSTEM",
		upperSchema:   true,
		columns: `SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE
			FROM ALL_TAB_COLUMNS WHERE OWNER = :1
			ORDER BY TABLE_NAME, COLUMN_ID`,
		views: `SELECT VIEW_NAME, TEXT FROM ALL_VIEWS WHERE OWNER = :1
			ORDER BY VIEW_NAME`,
		routines: `SELECT NAME, TYPE, TEXT FROM ALL_SOURCE
			WHERE OWNER = :1
			  AND TYPE IN ('PROCEDURE', 'FUNCTION', 'PACKAGE', 'PACKAGE BODY')
			ORDER BY NAME, TYPE, LINE`,
	},
	"mysql":   mysqlSpec,
	"mariadb": mysqlSpec,
	"postgres": {
		driver:        "pgx",
		defaultSchema: "public",
		columns: `SELECT table_name, column_name, data_type
			FROM information_schema.columns
			WHERE table_schema = $1
			  AND table_name IN (
				SELECT table_name FROM information_schema.tables
				WHERE table_schema = $1 AND table_type = 'BASE TABLE')
			ORDER BY table_name, ordinal_position`,
		views: `SELECT table_name, view_definition FROM information_schema.views
			WHERE table_schema = $1 ORDER BY table_name`,
		routines: `SELECT routine_name, routine_type, routine_definition
			FROM information_schema.routines
			WHERE routine_schema = $1 ORDER BY routine_name`,
	},
	"mssql": {
		driver:        "sqlserver",
		defaultSchema: "dbo",
		columns: `SELECT c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE
			FROM INFORMATION_SCHEMA.COLUMNS c
			JOIN INFORMATION_SCHEMA.TABLES t
			  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
			WHERE c.TABLE_SCHEMA = @p1 AND t.TABLE_TYPE = 'BASE TABLE'
			ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`,
		views: `SELECT v.name, m.definition
			FROM sys.views v
			JOIN sys.sql_modules m ON v.object_id = m.object_id
			WHERE SCHEMA_NAME(v.schema_id) = @p1 ORDER BY v.name`,
		routines: `SELECT o.name, o.type, m.definition
			FROM sys.objects o
			JOIN sys.sql_modules m ON o.object_id = m.object_id
			WHERE o.type IN ('P', 'FN', 'IF', 'TF')
			  AND SCHEMA_NAME(o.schema_id) = @p1
			ORDER BY o.name`,
		routineTypes: map[string]string{
			"P": "PROCEDURE", "FN": "FUNCTION", "IF": "FUNCTION", "TF": "FUNCTION",
		},
	},
	"db2": {
		driver:        "go_ibm_db",
		defaultSchema: "SYSIBM",
		upperSchema:   true,
		columns: `SELECT TABNAME, COLNAME, TYPENAME
			FROM SYSCAT.COLUMNS WHERE TABSCHEMA = ?
			ORDER BY TABNAME, COLNO`,
		views: `SELECT VIEWNAME, TEXT FROM SYSCAT.VIEWS WHERE VIEWSCHEMA = ?
			ORDER BY VIEWNAME`,
		routines: `SELECT ROUTINENAME, ROUTINETYPE, TEXT
			FROM SYSCAT.ROUTINES
			WHERE ROUTINESCHEMA = ? AND ROUTINETYPE IN ('P', 'F')
			ORDER BY ROUTINENAME`,
		routineTypes: map[string]string{"P": "PROCEDURE", "F": "FUNCTION"},
	},
	"hana": {
		driver:        "hdb",
		defaultSchema: "SYSTEM",
		upperSchema:   true,
		columns: `SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE_NAME
			FROM SYS.TABLE_COLUMNS WHERE SCHEMA_NAME = ?
			ORDER BY TABLE_NAME, POSITION`,
		views: `SELECT VIEW_NAME, DEFINITION FROM SYS.VIEWS WHERE SCHEMA_NAME = ?
			ORDER BY VIEW_NAME`,
		routines: `SELECT PROCEDURE_NAME, 'PROCEDURE', DEFINITION
			FROM SYS.PROCEDURES WHERE SCHEMA_NAME = ?
			UNION ALL
			SELECT FUNCTION_NAME, 'FUNCTION', DEFINITION
			FROM SYS.FUNCTIONS WHERE SCHEMA_NAME = ?
			ORDER BY 1`,
		routineParams: 2,
	},
	"snowflake": {
		driver:        "snowflake",
		defaultSchema: "PUBLIC",
		upperSchema:   true,
		columns: `SELECT c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE
			FROM INFORMATION_SCHEMA.COLUMNS c
			JOIN INFORMATION_SCHEMA.TABLES t
			  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
			WHERE c.TABLE_SCHEMA = ? AND t.TABLE_TYPE = 'BASE TABLE'
			ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`,
		views: `SELECT TABLE_NAME, VIEW_DEFINITION FROM INFORMATION_SCHEMA.VIEWS
			WHERE TABLE_SCHEMA = ? ORDER BY TABLE_NAME`,
		// Routine source is not exposed through the SQL interface.
		routines: "",
	},
}

var mysqlSpec = dialectSpec{
	driver:        "mysql",
	defaultSchema: "",
	columns: `SELECT c.TABLE_NAME, c.COLUMN_NAME, c.COLUMN_TYPE
		FROM information_schema.COLUMNS c
		JOIN information_schema.TABLES t
		  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
		WHERE c.TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
		  AND t.TABLE_TYPE = 'BASE TABLE'
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`,
	views: `SELECT TABLE_NAME, VIEW_DEFINITION FROM information_schema.VIEWS
		WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
		ORDER BY TABLE_NAME`,
	routines: `SELECT ROUTINE_NAME, ROUTINE_TYPE, ROUTINE_DEFINITION
		FROM information_schema.ROUTINES
		WHERE ROUTINE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
		ORDER BY ROUTINE_NAME`,
}
