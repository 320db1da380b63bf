package translate

import (
	"strings"
	"testing"
)

func mustTranslate(t *testing.T, sql, dialect string) (string, []Diagnostic) {
	t.Helper()
	out, diags, err := New().Translate(sql, dialect)
	if err != nil {
		t.Fatalf("Translate(%q, %s) error: %v", sql, dialect, err)
	}
	return out, diags
}

func TestTranslate_OracleNVL(t *testing.T) {
	out, diags := mustTranslate(t, "SELECT NVL(bonus,0) FROM hr.compensation;", "oracle")
	want := "SELECT COALESCE(bonus,0) FROM hr.compensation;"
	if out != want {
		t.Errorf("Translate() = %q, want %q", out, want)
	}
	if len(diags) != 0 {
		t.Errorf("diags = %v, want none", diags)
	}
}

func TestTranslate_OracleTypesAndDual(t *testing.T) {
	out, _ := mustTranslate(t,
		"CREATE TABLE t (name VARCHAR2(40 CHAR), amount NUMBER(10,2), note CLOB);\nSELECT SYSDATE FROM DUAL;",
		"oracle")
	for _, want := range []string{"VARCHAR(40)", "NUMERIC(10,2)", "TEXT", "SELECT CURRENT_TIMESTAMP;"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(strings.ToUpper(out), "DUAL") {
		t.Errorf("FROM DUAL survived:\n%s", out)
	}
}

func TestTranslate_OracleSequence(t *testing.T) {
	out, _ := mustTranslate(t, "INSERT INTO t (id) VALUES (emp_seq.NEXTVAL);", "oracle")
	if !strings.Contains(out, "nextval('emp_seq')") {
		t.Errorf("sequence not rewritten: %q", out)
	}
}

func TestTranslate_OracleDiagnostics(t *testing.T) {
	_, diags := mustTranslate(t,
		"SELECT emp_id FROM emp WHERE ROWNUM <= 10 CONNECT BY PRIOR emp_id = mgr_id;",
		"oracle")
	var constructs []string
	for _, d := range diags {
		constructs = append(constructs, d.Construct)
	}
	got := strings.Join(constructs, ",")
	for _, want := range []string{"CONNECT BY", "ROWNUM"} {
		if !strings.Contains(got, want) {
			t.Errorf("diagnostics %q missing %q", got, want)
		}
	}
}

func TestTranslate_LiteralsUntouched(t *testing.T) {
	out, _ := mustTranslate(t, "SELECT 'NVL(x,1) FROM DUAL' FROM DUAL;", "oracle")
	if !strings.Contains(out, "'NVL(x,1) FROM DUAL'") {
		t.Errorf("string literal rewritten: %q", out)
	}
	if !strings.HasSuffix(out, "'NVL(x,1) FROM DUAL';") {
		t.Errorf("code FROM DUAL kept or literal lost: %q", out)
	}
}

func TestTranslate_MSSQLTopAndIsnull(t *testing.T) {
	out, _ := mustTranslate(t, "SELECT TOP 5 ISNULL(qty, 0) FROM [dbo].[orders];", "mssql")
	for _, want := range []string{"COALESCE(qty, 0)", `"dbo"."orders"`, "LIMIT 5"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(strings.ToUpper(out), "TOP") {
		t.Errorf("TOP survived:\n%s", out)
	}
}

func TestTranslate_MySQL(t *testing.T) {
	out, diags := mustTranslate(t,
		"CREATE TABLE `acct` (id INT AUTO_INCREMENT, created DATETIME) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;\nSELECT IFNULL(a,0) FROM t LIMIT 10, 5;",
		"mysql")
	for _, want := range []string{`"acct"`, "GENERATED BY DEFAULT AS IDENTITY", "TIMESTAMP", "COALESCE(a,0)", "LIMIT 5 OFFSET 10"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "ENGINE") {
		t.Errorf("table options survived:\n%s", out)
	}
	if len(diags) != 0 {
		t.Errorf("diags = %v, want none", diags)
	}
}

func TestTranslate_Deterministic(t *testing.T) {
	sql := "SELECT NVL(bonus,0), SYSDATE FROM hr.compensation WHERE ROWNUM < 5;"
	first, firstDiags, err := New().Translate(sql, "oracle")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		out, diags, err := New().Translate(sql, "oracle")
		if err != nil {
			t.Fatal(err)
		}
		if out != first || len(diags) != len(firstDiags) {
			t.Fatalf("translation unstable on round %d", i)
		}
	}
}

func TestTranslate_UnknownDialect(t *testing.T) {
	if _, _, err := New().Translate("SELECT 1;", "mongodb"); err == nil {
		t.Error("Translate() with unknown dialect: error = nil, want error")
	}
}

func TestTranslate_EmptyScript(t *testing.T) {
	if _, _, err := New().Translate("-- nothing here\n", "oracle"); err == nil {
		t.Error("Translate() with empty script: error = nil, want error")
	}
}

func TestSupportedDialects_SortedAndComplete(t *testing.T) {
	got := SupportedDialects()
	want := []string{"db2", "hana", "mariadb", "mssql", "mysql", "oracle", "snowflake"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("SupportedDialects() = %v, want %v", got, want)
	}
}
