package corrector

import "strings"

const reviewerPrompt = `You are a Senior Database Administrator specializing in migrations to PostgreSQL.
Your task is to review the converted PostgreSQL SQL for syntax errors, forbidden patterns, and naming conventions.

[Rules]
1. Source-dialect functions (NVL, DECODE, SYSDATE, ISNULL, GETDATE) must be converted to PostgreSQL equivalents (COALESCE, CASE WHEN, CURRENT_TIMESTAMP).
2. Check for syntax correctness in PostgreSQL.
3. If the SQL is valid and follows the rules, return 'PASS'.
4. If there are issues, return 'FAIL' followed by a brief reason.`

const correctionPrompt = `You are an expert SQL Migration Engineer.
Your task is to fix the SQL query based on the Error Log and Schema Context provided.

[Context Information]
%CONTEXT%

[Current SQL]
%SQL%

[Known Issues]
%DIAGNOSTICS%

[Error Log / Feedback]
%FEEDBACK%

[Instructions]
1. Analyze the error and the provided schema (table definitions, functions).
2. Rewrite the SQL to be fully compatible with PostgreSQL.
3. Return ONLY the valid SQL query without markdown or explanations.`

func buildCorrectionPrompt(req Request) string {
	diag := "(none)"
	if len(req.Diagnostics) > 0 {
		diag = "- " + strings.Join(req.Diagnostics, "\n- ")
	}
	feedback := req.Feedback
	if feedback == "" {
		feedback = "(none)"
	}
	context := req.Context
	if context == "" {
		context = "(no schema context available)"
	}

	r := strings.NewReplacer(
		"%CONTEXT%", context,
		"%SQL%", req.SQL,
		"%DIAGNOSTICS%", diag,
		"%FEEDBACK%", feedback,
	)
	return r.Replace(correctionPrompt)
}
