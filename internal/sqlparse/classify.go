package sqlparse

import "strings"

var dangerousKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true,
	"CREATE": true, "ALTER": true, "DROP": true, "TRUNCATE": true,
	"GRANT": true, "REVOKE": true, "COPY": true, "COMMENT": true,
	"REINDEX": true, "VACUUM": true, "CLUSTER": true,
}

var procedureKeywords = map[string]bool{
	"CALL": true, "EXEC": true, "EXECUTE": true, "DO": true,
}

// Classify assigns a safety class from the statement's effective leading
// keyword. A statement that begins with WITH is classified by the first
// top-level keyword after its CTE list, so a writable CTE chain ending in
// INSERT is still dangerous.
func Classify(stmt string) Class {
	kw := leadingKeyword(stmt)
	if kw == "WITH" {
		kw = keywordAfterCTEs(stmt)
	}
	switch {
	case procedureKeywords[kw]:
		return Procedure
	case dangerousKeywords[kw]:
		return Dangerous
	default:
		return Safe
	}
}

// leadingKeyword returns the first bare word of a statement, upper-cased.
func leadingKeyword(stmt string) string {
	i := 0
	for i < len(stmt) && !isIdentChar(stmt[i]) {
		i++
	}
	j := i
	for j < len(stmt) && isIdentChar(stmt[j]) {
		j++
	}
	return strings.ToUpper(stmt[i:j])
}

// keywordAfterCTEs scans past the WITH clause and returns the keyword of
// the main statement. Only tokens at paren depth zero are considered.
func keywordAfterCTEs(stmt string) string {
	depth := 0
	for _, tok := range tokenize(stmt) {
		switch tok {
		case "(":
			depth++
		case ")":
			depth--
		default:
			if depth != 0 {
				continue
			}
			up := strings.ToUpper(tok)
			switch up {
			case "SELECT", "INSERT", "UPDATE", "DELETE", "MERGE":
				return up
			}
		}
	}
	return "WITH"
}
