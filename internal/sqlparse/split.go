// Package sqlparse provides the small amount of SQL understanding the
// pipeline needs: splitting a script into statements, classifying each
// statement's safety for verification, and scanning for referenced object
// names. It is deliberately not a full parser; it only has to be right
// about statement boundaries, leading keywords, and identifier positions.
package sqlparse

import (
	"errors"
	"strings"
)

// Class is the safety classification of a single statement.
type Class int

const (
	// Safe statements read state only (SELECT, EXPLAIN, SET, ...).
	Safe Class = iota
	// Dangerous statements can mutate target-database state (DDL/DML).
	Dangerous
	// Procedure statements invoke stored code (CALL, EXEC, DO).
	Procedure
)

func (c Class) String() string {
	switch c {
	case Dangerous:
		return "dangerous"
	case Procedure:
		return "procedure"
	default:
		return "safe"
	}
}

// Statement is one statement of a SQL script.
type Statement struct {
	Text  string
	Class Class
}

// ErrNoStatements is returned by Split for scripts that contain no
// executable statements (empty or comments only).
var ErrNoStatements = errors.New("no executable statements found in SQL script")

// Split breaks a SQL script into individual statements on semicolons,
// respecting string literals, quoted identifiers, dollar-quoted bodies,
// and both comment styles. Each statement is returned trimmed and
// classified.
func Split(script string) ([]Statement, error) {
	var stmts []Statement
	var cur strings.Builder

	flush := func() {
		text := strings.TrimSpace(cur.String())
		cur.Reset()
		if text == "" || isCommentOnly(text) {
			return
		}
		stmts = append(stmts, Statement{Text: text, Class: Classify(text)})
	}

	i := 0
	for i < len(script) {
		c := script[i]
		switch {
		case c == '\'':
			j := scanQuoted(script, i, '\'')
			cur.WriteString(script[i:j])
			i = j
		case c == '"':
			j := scanQuoted(script, i, '"')
			cur.WriteString(script[i:j])
			i = j
		case c == '$':
			if tag, ok := dollarTag(script[i:]); ok {
				end := strings.Index(script[i+len(tag):], tag)
				if end < 0 {
					cur.WriteString(script[i:])
					i = len(script)
					break
				}
				j := i + len(tag) + end + len(tag)
				cur.WriteString(script[i:j])
				i = j
			} else {
				cur.WriteByte(c)
				i++
			}
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			j := strings.IndexByte(script[i:], '\n')
			if j < 0 {
				i = len(script)
			} else {
				i += j // keep the newline as whitespace
			}
		case c == '/' && i+1 < len(script) && script[i+1] == '*':
			j := strings.Index(script[i+2:], "*/")
			if j < 0 {
				i = len(script)
			} else {
				i += j + 4
			}
		case c == ';':
			flush()
			i++
		default:
			cur.WriteByte(c)
			i++
		}
	}
	flush()

	if len(stmts) == 0 {
		return nil, ErrNoStatements
	}
	return stmts, nil
}

// scanQuoted returns the index just past a quoted region starting at i.
// Doubled quote characters inside the region are treated as escapes.
func scanQuoted(s string, i int, quote byte) int {
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

// dollarTag reports whether s starts a dollar-quote tag like $$ or $body$
// and returns the full tag.
func dollarTag(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	for j := 1; j < len(s); j++ {
		c := s[j]
		if c == '$' {
			return s[:j+1], true
		}
		if !isIdentChar(c) {
			return "", false
		}
	}
	return "", false
}

func isCommentOnly(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return false
	}
	return true
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
