package sqlparse

import (
	"sort"
	"strings"
)

// Keywords that introduce an object reference in the token that follows.
var refIntroducers = map[string]bool{
	"FROM": true, "JOIN": true, "INTO": true, "UPDATE": true,
	"TABLE": true, "VIEW": true, "PROCEDURE": true, "FUNCTION": true,
	"CALL": true, "EXEC": true, "EXECUTE": true, "TRUNCATE": true,
}

// Tokens that can follow an introducer without being a reference.
var nonRefFollowers = map[string]bool{
	"SELECT": true, "IF": true, "NOT": true, "EXISTS": true, "ONLY": true,
	"LATERAL": true, "OR": true, "REPLACE": true, "TEMP": true,
	"TEMPORARY": true, "UNLOGGED": true, "MATERIALIZED": true, "(": true,
}

// References scans a SQL script and returns the candidate object and
// schema names it mentions, upper-cased, de-duplicated, and sorted.
// Qualified names contribute both parts: FROM hr.employees yields
// HR and EMPLOYEES. CTE names defined in the script are excluded.
func References(script string) []string {
	tokens := tokenize(script)
	ctes := cteNames(tokens)

	seen := make(map[string]bool)
	for i, tok := range tokens {
		up := strings.ToUpper(tok)
		if !refIntroducers[up] {
			continue
		}
		for j := i + 1; j < len(tokens); j++ {
			next := strings.ToUpper(tokens[j])
			if nonRefFollowers[next] {
				if next == "(" || next == "SELECT" || next == "LATERAL" {
					break
				}
				continue
			}
			if !isIdentToken(tokens[j]) {
				break
			}
			for _, part := range strings.Split(next, ".") {
				if part != "" && !ctes[part] {
					seen[part] = true
				}
			}
			break
		}
	}

	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs
}

// cteNames collects the names defined by WITH ... AS ( clauses so they
// are not treated as database objects.
func cteNames(tokens []string) map[string]bool {
	names := make(map[string]bool)
	for i, tok := range tokens {
		if !strings.EqualFold(tok, "AS") {
			continue
		}
		if i == 0 || i+1 >= len(tokens) || tokens[i+1] != "(" {
			continue
		}
		prev := tokens[i-1]
		if isIdentToken(prev) {
			names[strings.ToUpper(prev)] = true
		}
	}
	return names
}

// tokenize splits a script into identifier-ish words and single-character
// punctuation, skipping string literals and comments. Qualified names
// like hr.employees come back as a single token.
func tokenize(script string) []string {
	var tokens []string
	i := 0
	for i < len(script) {
		c := script[i]
		switch {
		case c == '\'':
			i = scanQuoted(script, i, '\'')
		case c == '"':
			// Quoted identifiers participate in references.
			j := scanQuoted(script, i, '"')
			tokens = append(tokens, strings.Trim(script[i:j], `"`))
			i = j
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			if j := strings.IndexByte(script[i:], '\n'); j < 0 {
				i = len(script)
			} else {
				i += j + 1
			}
		case c == '/' && i+1 < len(script) && script[i+1] == '*':
			if j := strings.Index(script[i+2:], "*/"); j < 0 {
				i = len(script)
			} else {
				i += j + 4
			}
		case isIdentChar(c):
			j := i
			for j < len(script) && (isIdentChar(script[j]) || script[j] == '.') {
				j++
			}
			tokens = append(tokens, script[i:j])
			i = j
		case c == '(' || c == ')' || c == ',' || c == ';':
			tokens = append(tokens, string(c))
			i++
		default:
			i++
		}
	}
	return tokens
}

func isIdentToken(tok string) bool {
	if tok == "" {
		return false
	}
	for i := 0; i < len(tok); i++ {
		if !isIdentChar(tok[i]) && tok[i] != '.' {
			return false
		}
	}
	return tok[0] < '0' || tok[0] > '9'
}
