package translate

import (
	"regexp"
	"strings"
)

// rewrite is a single regex substitution applied outside string literals.
type rewrite struct {
	re   *regexp.Regexp
	repl string
}

// flag marks a construct the rules cannot rewrite mechanically.
type flag struct {
	re        *regexp.Regexp
	construct string
	detail    string
}

type ruleSet struct {
	rewrites []rewrite
	flags    []flag
	// post runs after the regex pass for rewrites that need statement
	// context, like moving TOP to a trailing LIMIT.
	post func(string) string
}

// apply rewrites one statement and reports its diagnostics. Rules only
// touch the code segments of the statement, never literal text.
func (rs *ruleSet) apply(stmt string) (string, []Diagnostic) {
	var diags []Diagnostic
	out := mapCodeSegments(stmt, func(code string) string {
		for _, f := range rs.flags {
			if f.re.MatchString(code) {
				diags = append(diags, Diagnostic{Construct: f.construct, Detail: f.detail})
			}
		}
		for _, rw := range rs.rewrites {
			code = rw.re.ReplaceAllString(code, rw.repl)
		}
		return code
	})
	if rs.post != nil {
		out = rs.post(out)
	}
	return out, diags
}

// mapCodeSegments applies fn to the parts of stmt outside single-quoted
// literals and dollar-quoted bodies. Quoted identifiers are treated as
// code so type and identifier rules still see them.
func mapCodeSegments(stmt string, fn func(string) string) string {
	var b strings.Builder
	start := 0
	i := 0
	flushCode := func(end int) {
		if end > start {
			b.WriteString(fn(stmt[start:end]))
		}
	}
	for i < len(stmt) {
		switch c := stmt[i]; {
		case c == '\'':
			flushCode(i)
			j := scanPast(stmt, i, '\'')
			b.WriteString(stmt[i:j])
			i, start = j, j
		case c == '$':
			if tag, ok := leadingDollarTag(stmt[i:]); ok {
				flushCode(i)
				end := strings.Index(stmt[i+len(tag):], tag)
				j := len(stmt)
				if end >= 0 {
					j = i + len(tag) + end + len(tag)
				}
				b.WriteString(stmt[i:j])
				i, start = j, j
			} else {
				i++
			}
		default:
			i++
		}
	}
	flushCode(len(stmt))
	return b.String()
}

func scanPast(s string, i int, quote byte) int {
	j := i + 1
	for j < len(s) {
		if s[j] == quote {
			if j+1 < len(s) && s[j+1] == quote {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return len(s)
}

func leadingDollarTag(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	for j := 1; j < len(s); j++ {
		c := s[j]
		if c == '$' {
			return s[:j+1], true
		}
		if !(c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return "", false
		}
	}
	return "", false
}

var (
	reSelectTop = regexp.MustCompile(`(?i)\bSELECT\s+TOP\s*\(?\s*(\d+)\s*\)?\s+`)
	reHasLimit  = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
)

// mssqlPost converts a leading SELECT TOP n into a trailing LIMIT n.
func mssqlPost(stmt string) string {
	m := reSelectTop.FindStringSubmatch(stmt)
	if m == nil {
		return stmt
	}
	out := reSelectTop.ReplaceAllString(stmt, "SELECT ")
	if !reHasLimit.MatchString(out) {
		out = strings.TrimRight(out, " \n\t") + " LIMIT " + m[1]
	}
	return out
}

var ruleSets = map[string]*ruleSet{
	"oracle": {
		rewrites: []rewrite{
			{regexp.MustCompile(`(?i)\bNVL\s*\(`), "COALESCE("},
			{regexp.MustCompile(`(?i)\bSYSDATE\b`), "CURRENT_TIMESTAMP"},
			{regexp.MustCompile(`(?i)\bSYSTIMESTAMP\b`), "CURRENT_TIMESTAMP"},
			{regexp.MustCompile(`(?i)\bVARCHAR2\s*\(\s*(\d+)(?:\s+(?:CHAR|BYTE))?\s*\)`), "VARCHAR($1)"},
			{regexp.MustCompile(`(?i)\bNUMBER\s*\(\s*(\d+)\s*,\s*(\d+)\s*\)`), "NUMERIC($1,$2)"},
			{regexp.MustCompile(`(?i)\bNUMBER\s*\(\s*(\d+)\s*\)`), "NUMERIC($1)"},
			{regexp.MustCompile(`(?i)\bNUMBER\b`), "NUMERIC"},
			{regexp.MustCompile(`(?i)\bCLOB\b`), "TEXT"},
			{regexp.MustCompile(`(?i)\bBLOB\b`), "BYTEA"},
			{regexp.MustCompile(`(?i)\b([A-Za-z_][A-Za-z0-9_]*)\.NEXTVAL\b`), "nextval('$1')"},
			{regexp.MustCompile(`(?i)\b([A-Za-z_][A-Za-z0-9_]*)\.CURRVAL\b`), "currval('$1')"},
			{regexp.MustCompile(`(?i)\s+FROM\s+DUAL\b`), ""},
			{regexp.MustCompile(`(?i)\bMINUS\b`), "EXCEPT"},
		},
		flags: []flag{
			{regexp.MustCompile(`(?i)\bCONNECT\s+BY\b`), "CONNECT BY", "hierarchical query needs a recursive CTE"},
			{regexp.MustCompile(`(?i)\bROWNUM\b`), "ROWNUM", "use LIMIT or row_number() instead"},
			{regexp.MustCompile(`(?i)\bDECODE\s*\(`), "DECODE", "rewrite as a CASE expression"},
			{regexp.MustCompile(`\(\+\)`), "(+) outer join", "rewrite as ANSI LEFT/RIGHT JOIN"},
			{regexp.MustCompile(`(?i)%(?:ROW)?TYPE\b`), "%TYPE/%ROWTYPE", "anchored declarations have no PostgreSQL DDL equivalent"},
		},
	},
	"mysql":   mysqlRules,
	"mariadb": mysqlRules,
	"mssql": {
		rewrites: []rewrite{
			{regexp.MustCompile(`(?i)\bISNULL\s*\(`), "COALESCE("},
			{regexp.MustCompile(`(?i)\bGETDATE\s*\(\s*\)`), "CURRENT_TIMESTAMP"},
			{regexp.MustCompile(`(?i)\bN?VARCHAR\s*\(\s*MAX\s*\)`), "TEXT"},
			{regexp.MustCompile(`(?i)\bNVARCHAR\b`), "VARCHAR"},
			{regexp.MustCompile(`(?i)\bDATETIME2?\b`), "TIMESTAMP"},
			{regexp.MustCompile(`(?i)\bUNIQUEIDENTIFIER\b`), "UUID"},
			{regexp.MustCompile(`(?i)\bIDENTITY\s*\(\s*\d+\s*,\s*\d+\s*\)`), "GENERATED BY DEFAULT AS IDENTITY"},
			{regexp.MustCompile(`(?i)\s+WITH\s*\(\s*NOLOCK\s*\)`), ""},
			{regexp.MustCompile(`\[([^\]\[]+)\]`), `"$1"`},
		},
		flags: []flag{
			{regexp.MustCompile(`(?i)\b(?:CROSS|OUTER)\s+APPLY\b`), "APPLY", "rewrite as LATERAL join"},
			{regexp.MustCompile(`@@?[A-Za-z_]`), "T-SQL variable", "session variables need a DO block or parameters"},
		},
		post: mssqlPost,
	},
	"db2": {
		rewrites: []rewrite{
			{regexp.MustCompile(`(?i)\bNVL\s*\(`), "COALESCE("},
			{regexp.MustCompile(`(?i)\bCURRENT\s+DATE\b`), "CURRENT_DATE"},
			{regexp.MustCompile(`(?i)\bCURRENT\s+TIME\b`), "CURRENT_TIME"},
			{regexp.MustCompile(`(?i)\bCURRENT\s+TIMESTAMP\b`), "CURRENT_TIMESTAMP"},
			{regexp.MustCompile(`(?i)\s+FROM\s+SYSIBM\.SYSDUMMY1\b`), ""},
		},
		flags: []flag{
			{regexp.MustCompile(`(?i)\bGENERATE_UNIQUE\s*\(`), "GENERATE_UNIQUE", "use a sequence or gen_random_uuid()"},
		},
	},
	"hana": {
		rewrites: []rewrite{
			{regexp.MustCompile(`(?i)\bIFNULL\s*\(`), "COALESCE("},
			{regexp.MustCompile(`(?i)\bNVARCHAR\b`), "VARCHAR"},
			{regexp.MustCompile(`(?i)\bCURRENT_UTCTIMESTAMP\b`), "CURRENT_TIMESTAMP"},
			{regexp.MustCompile(`(?i)\s+FROM\s+DUMMY\b`), ""},
		},
		flags: []flag{
			{regexp.MustCompile(`(?i)\bSECONDS_BETWEEN\s*\(`), "SECONDS_BETWEEN", "use extract(epoch from ...) arithmetic"},
			{regexp.MustCompile(`(?i)\bTO_DECIMAL\s*\(`), "TO_DECIMAL", "cast to NUMERIC instead"},
		},
	},
	"snowflake": {
		rewrites: []rewrite{
			{regexp.MustCompile(`(?i)\bNVL\s*\(`), "COALESCE("},
			{regexp.MustCompile(`(?i)\bNUMBER\s*\(\s*(\d+)\s*,\s*(\d+)\s*\)`), "NUMERIC($1,$2)"},
			{regexp.MustCompile(`(?i)\bVARIANT\b`), "JSONB"},
		},
		flags: []flag{
			{regexp.MustCompile(`(?i)\bIFF\s*\(`), "IFF", "rewrite as a CASE expression"},
			{regexp.MustCompile(`(?i)\bTRY_[A-Z_]+\s*\(`), "TRY_ function", "no error-suppressing casts in PostgreSQL"},
		},
	},
}

var mysqlRules = &ruleSet{
	rewrites: []rewrite{
		{regexp.MustCompile("`([^`]*)`"), `"$1"`},
		{regexp.MustCompile(`(?i)\bIFNULL\s*\(`), "COALESCE("},
		{regexp.MustCompile(`(?i)\bCURDATE\s*\(\s*\)`), "CURRENT_DATE"},
		{regexp.MustCompile(`(?i)\bTINYINT\s*\(\s*1\s*\)`), "BOOLEAN"},
		{regexp.MustCompile(`(?i)\bDATETIME\b`), "TIMESTAMP"},
		{regexp.MustCompile(`(?i)\bAUTO_INCREMENT\b`), "GENERATED BY DEFAULT AS IDENTITY"},
		{regexp.MustCompile(`(?i)\s+UNSIGNED\b`), ""},
		{regexp.MustCompile(`(?i)\)\s*ENGINE\s*=\s*\w+[^;]*$`), ")"},
		{regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)\s*,\s*(\d+)`), "LIMIT $2 OFFSET $1"},
	},
	flags: []flag{
		{regexp.MustCompile(`(?i)\bON\s+DUPLICATE\s+KEY\s+UPDATE\b`), "ON DUPLICATE KEY UPDATE", "rewrite as INSERT ... ON CONFLICT"},
		{regexp.MustCompile(`(?i)\bSTRAIGHT_JOIN\b`), "STRAIGHT_JOIN", "no join-order hint in PostgreSQL"},
	},
}
