// Package prompt assembles the text sent to the language model from the
// retrieved schema context, the request, and optional conversation history.
package prompt

import (
	"fmt"
	"strings"

	"github.com/kyleking/sql-agent/internal/history"
)

// SystemPrompt sets the model's role and output rules
const SystemPrompt = `You are an expert SQL developer. Generate SQL queries based on business logic and database schemas provided.

Always follow these rules:
- Generate valid SQL queries that fulfill the business logic
- Use proper SQL syntax and best practices
- Include appropriate SQL logical constructs (JOINs, WHERE clauses, GROUP BY, etc.) as needed
- Be explicit about the type of join
- Do not include markdown code blocks or formatting
- Follow the output format instructions exactly`

// TaskInstructions are the step-by-step instructions for each request
const TaskInstructions = `## Instructions:
1. Analyze the database schema provided
2. Understand the business logic requirement
3. Generate the appropriate SQL query
4. Ensure the query is optimized and follows best practices`

// ExplanationInstructions are added when an explanation is requested
const ExplanationInstructions = `
After the SQL query, provide a brief explanation of:
1. What tables are being used
2. What the query does
3. Any important joins or conditions`

const (
	OutputSQLOnly            = "Return ONLY the SQL query. Do not include any explanation, description, or additional text."
	OutputSQLWithExplanation = "Return the SQL query followed by the explanation."

	schemaHeader  = "## Database Schema (Relevant Tables Only):"
	historyHeader = "## Previous Conversation:"
	currentHeader = "## Current Request:"
	requestHeader = "## Business Logic:"
	formatHeader  = "## Output Format:"
	answerCue     = "SQL Query:"
)

// Input is everything a prompt is built from
type Input struct {
	Request       string
	SchemaContext string
	Explain       bool
	History       []history.Turn
}

// Messages is the prompt split for backends with a dedicated system role
type Messages struct {
	System string
	User   string
}

// Build returns the combined single-string prompt
func Build(in Input) string {
	return SystemPrompt + "\n\n" + userMessage(in)
}

// BuildMessages returns the same content as Build with the system
// instructions separated from the rest
func BuildMessages(in Input) Messages {
	return Messages{System: SystemPrompt, User: userMessage(in)}
}

func userMessage(in Input) string {
	explanation := ""
	output := OutputSQLOnly

	if in.Explain {
		explanation = ExplanationInstructions
		output = OutputSQLWithExplanation
	}

	var b strings.Builder

	b.WriteString(schemaHeader + "\n")
	b.WriteString(in.SchemaContext + "\n")
	b.WriteString(formatHistory(in.History) + "\n")
	b.WriteString(requestHeader + "\n")
	b.WriteString(in.Request + "\n\n")
	b.WriteString(TaskInstructions + "\n")
	b.WriteString(explanation + "\n\n")
	b.WriteString(formatHeader + "\n")
	b.WriteString(output + "\n\n")
	b.WriteString(answerCue)

	return b.String()
}

// formatHistory renders prior turns in the order given, numbered from 1
func formatHistory(turns []history.Turn) string {
	if len(turns) == 0 {
		return ""
	}

	var b strings.Builder

	b.WriteString("\n" + historyHeader + "\n")

	for i, turn := range turns {
		fmt.Fprintf(&b, "\nTurn %d:\nUser: %s\nAssistant: %s\n", i+1, turn.Request, turn.Response)
	}

	b.WriteString("\n" + currentHeader + "\n")

	return b.String()
}
