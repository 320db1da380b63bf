package sqlparse

import (
	"errors"
	"strings"
	"testing"
)

func TestSplit_BasicStatements(t *testing.T) {
	stmts, err := Split("SELECT 1;\nINSERT INTO t VALUES (1);\nCALL fix_up();")
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(stmts) != 3 {
		t.Fatalf("len(stmts) = %d, want 3", len(stmts))
	}
	wantClasses := []Class{Safe, Dangerous, Procedure}
	for i, want := range wantClasses {
		if stmts[i].Class != want {
			t.Errorf("stmts[%d].Class = %s, want %s", i, stmts[i].Class, want)
		}
	}
}

func TestSplit_SemicolonInsideLiteral(t *testing.T) {
	stmts, err := Split(`SELECT 'a;b' FROM t; SELECT 2;`)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("len(stmts) = %d, want 2", len(stmts))
	}
	if !strings.Contains(stmts[0].Text, "'a;b'") {
		t.Errorf("literal split apart: %q", stmts[0].Text)
	}
}

func TestSplit_DollarQuotedBody(t *testing.T) {
	script := `CREATE FUNCTION f() RETURNS int AS $body$
BEGIN
  RETURN 1;
END;
$body$ LANGUAGE plpgsql;
SELECT 1;`
	stmts, err := Split(script)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("len(stmts) = %d, want 2 (function body must stay intact)", len(stmts))
	}
	if !strings.Contains(stmts[0].Text, "RETURN 1;") {
		t.Errorf("function body lost its inner statement: %q", stmts[0].Text)
	}
	if stmts[0].Class != Dangerous {
		t.Errorf("CREATE FUNCTION class = %s, want dangerous", stmts[0].Class)
	}
}

func TestSplit_CommentsStripped(t *testing.T) {
	stmts, err := Split("-- header\nSELECT 1; /* block; with semicolon */ SELECT 2;")
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("len(stmts) = %d, want 2", len(stmts))
	}
	if strings.Contains(stmts[1].Text, "block") {
		t.Errorf("block comment survived: %q", stmts[1].Text)
	}
}

func TestSplit_EmptyScript(t *testing.T) {
	for _, script := range []string{"", "   \n\t", "-- only a comment\n", ";;;"} {
		if _, err := Split(script); !errors.Is(err, ErrNoStatements) {
			t.Errorf("Split(%q) error = %v, want ErrNoStatements", script, err)
		}
	}
}

func TestSplit_NoTrailingSemicolon(t *testing.T) {
	stmts, err := Split("SELECT 1")
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(stmts) != 1 || stmts[0].Text != "SELECT 1" {
		t.Errorf("stmts = %+v, want single SELECT 1", stmts)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		stmt string
		want Class
	}{
		{"SELECT * FROM t", Safe},
		{"EXPLAIN SELECT 1", Safe},
		{"SET search_path TO hr", Safe},
		{"WITH x AS (SELECT 1) SELECT * FROM x", Safe},
		{"WITH moved AS (DELETE FROM t RETURNING *) INSERT INTO archive SELECT * FROM moved", Dangerous},
		{"insert into t values (1)", Dangerous},
		{"DROP TABLE t", Dangerous},
		{"TRUNCATE t", Dangerous},
		{"GRANT SELECT ON t TO app", Dangerous},
		{"CALL refresh_totals()", Procedure},
		{"EXEC sp_rename 'a', 'b'", Procedure},
		{"DO $$ BEGIN NULL; END $$", Procedure},
	}
	for _, tt := range tests {
		if got := Classify(tt.stmt); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.stmt, got, tt.want)
		}
	}
}

func TestReferences(t *testing.T) {
	script := `SELECT e.name, d.dept_name
FROM hr.employees e
JOIN hr.departments d ON d.dept_id = e.dept_id
WHERE e.salary > (SELECT AVG(salary) FROM hr.employees);`
	got := References(script)
	want := []string{"DEPARTMENTS", "EMPLOYEES", "HR"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("References() = %v, want %v", got, want)
	}
}

func TestReferences_ExcludesCTENames(t *testing.T) {
	script := `WITH recent AS (SELECT * FROM orders)
SELECT * FROM recent;`
	got := References(script)
	for _, name := range got {
		if name == "RECENT" {
			t.Errorf("CTE name leaked into references: %v", got)
		}
	}
	if len(got) != 1 || got[0] != "ORDERS" {
		t.Errorf("References() = %v, want [ORDERS]", got)
	}
}

func TestReferences_DDLAndCalls(t *testing.T) {
	script := `DROP TABLE IF EXISTS staging.tmp_load;
CALL finance.recalc_budget();
INSERT INTO audit_log SELECT 1;`
	got := References(script)
	for _, want := range []string{"STAGING", "TMP_LOAD", "FINANCE", "RECALC_BUDGET", "AUDIT_LOG"} {
		found := false
		for _, name := range got {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Errorf("References() = %v, missing %s", got, want)
		}
	}
}

func TestReferences_Deterministic(t *testing.T) {
	script := "SELECT * FROM zeta JOIN alpha ON 1=1 JOIN mid ON 1=1"
	first := strings.Join(References(script), ",")
	for i := 0; i < 5; i++ {
		if got := strings.Join(References(script), ","); got != first {
			t.Fatalf("References() unstable: %q != %q", got, first)
		}
	}
	if first != "ALPHA,MID,ZETA" {
		t.Errorf("References() = %q, want sorted ALPHA,MID,ZETA", first)
	}
}
