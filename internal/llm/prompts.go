package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/seanankenbruck/analytics-sql-ai/internal/executor"
	"github.com/seanankenbruck/analytics-sql-ai/internal/history"
	"github.com/seanankenbruck/analytics-sql-ai/internal/schema"
)

// Model reply sentinels
const (
	SentinelInsufficient    = "INSUFFICIENT_INFORMATION"
	SentinelNoClarification = "NO_CLARIFICATION_NEEDED"
)

// Sampling for each prompt kind
const (
	generationMaxTokens    = 256
	generationTemperature  = 0.1
	explanationMaxTokens   = 200
	explanationTemperature = 0.2
	clarifierMaxTokens     = 64
	clarifierTemperature   = 0.2
	explanationSampleRows  = 5
)

type dialectRules struct {
	name     string
	dateRule string
}

var dialects = map[schema.Dialect]dialectRules{
	schema.DialectPostgres: {
		name:     "PostgreSQL",
		dateRule: "- Use PostgreSQL date functions only (CURRENT_DATE, INTERVAL, DATE_TRUNC).",
	},
	schema.DialectSQLite: {
		name:     "SQLite",
		dateRule: "- Use SQLite date functions only (DATE, DATETIME, STRFTIME).",
	},
}

func rulesFor(d schema.Dialect) dialectRules {
	if r, ok := dialects[d]; ok {
		return r
	}
	return dialects[schema.DialectPostgres]
}

// SQLSystemPrompt returns the generation system prompt for a dialect
func SQLSystemPrompt(d schema.Dialect) string {
	r := rulesFor(d)
	return fmt.Sprintf(`You are an expert %s SQL generator.

RULES:
- Generate ONLY read-only SQL (SELECT).
- NEVER generate INSERT, UPDATE, DELETE, DROP, ALTER.
- Use ONLY the tables and columns provided in the schema.
- Follow %s syntax strictly.
- Use proper JOINs using foreign keys.
- If the question cannot be answered using the schema, respond exactly with:
  %s
%s

OUTPUT FORMAT:
- Return ONLY the SQL query.
- No explanation, no markdown, no comments.`, r.name, r.name, SentinelInsufficient, r.dateRule)
}

// BuildUserPrompt renders the schema, similar examples and the question
func BuildUserPrompt(d schema.Dialect, query string, catalog *schema.Catalog, examples []history.Example) string {
	var sb strings.Builder
	sb.WriteString("DATABASE SCHEMA (JSON):\n")
	sb.WriteString(schemaJSON(catalog))
	sb.WriteString("\n\n")

	if len(examples) > 0 {
		sb.WriteString("SIMILAR PAST QUESTIONS:\n")
		for _, ex := range examples {
			sb.WriteString(fmt.Sprintf("Q: %s\nSQL: %s\n", ex.Query, ex.SQL))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("USER QUESTION:\n")
	sb.WriteString(query)
	sb.WriteString(fmt.Sprintf("\n\nGenerate a valid %s SQL query.", rulesFor(d).name))
	return sb.String()
}

// BuildCorrectionPrompt asks for a new statement after a validation failure
func BuildCorrectionPrompt(validationError, previous string, catalog *schema.Catalog) string {
	return fmt.Sprintf("The previous SQL failed validation with the following error: %s.\n"+
		"Only return a single valid SELECT statement that uses tables and columns from the given schema, "+
		"and avoid any forbidden keywords or non-SELECT operations. Return only the SQL query and nothing else.\n"+
		"Schema: %s \nPrevious attempt: %s", validationError, schemaJSON(catalog), previous)
}

// ClarificationSystemPrompt decides whether a question is ambiguous
const ClarificationSystemPrompt = `You are an intent clarification engine for a data analytics system.

RULES:
- Determine if the query is ambiguous.
- Ambiguous means missing metric, grouping, filter, or time range.
- If ambiguous, ask ONE clarification question.
- If NOT ambiguous, respond EXACTLY with:
` + SentinelNoClarification + `

OUTPUT:
- One question OR exactly ` + SentinelNoClarification

// BuildClarificationPrompt renders the clarifier user prompt
func BuildClarificationPrompt(query string, catalog *schema.Catalog) string {
	return fmt.Sprintf("DATABASE SCHEMA:\n%s\n\nUSER QUERY:\n%s\n\nIs clarification required?", schemaJSON(catalog), query)
}

// ExplanationSystemPrompt keeps explanations grounded in the SQL and result
const ExplanationSystemPrompt = `You are a data explanation assistant.

STRICT RULES:
- Explain ONLY what the SQL query does and what the result shows.
- DO NOT speculate about missing data.
- DO NOT mention schema errors, table issues, or query mistakes.
- DO NOT invent causes or debugging explanations.
- If result is empty, say only that no matching records were found.

OUTPUT FORMAT:
- Plain English explanation
- No bullet points
- No markdown`

// BuildExplanationPrompt renders the question, executed SQL and result metadata
func BuildExplanationPrompt(query, sql string, result *executor.Result) string {
	rowCount := 0
	var sample []map[string]interface{}
	if result != nil {
		rowCount = result.RowCount
		sample = result.Data
		if len(sample) > explanationSampleRows {
			sample = sample[:explanationSampleRows]
		}
	}
	if sample == nil {
		sample = []map[string]interface{}{}
	}
	rows, err := json.Marshal(sample)
	if err != nil {
		rows = []byte("[]")
	}

	return fmt.Sprintf("USER QUESTION:\n%s\n\nEXECUTED SQL QUERY:\n%s\n\nQUERY RESULT METADATA:\nRow count: %d\nSample rows: %s\n\n"+
		"Explain the result clearly in natural language.", query, sql, rowCount, rows)
}

func schemaJSON(catalog *schema.Catalog) string {
	if catalog == nil {
		return "{}"
	}
	data, err := json.Marshal(catalog)
	if err != nil {
		return "{}"
	}
	return string(data)
}
