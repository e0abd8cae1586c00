package nl2sql

import (
	"fmt"
	"strings"

	"github.com/flowbit/vanna/internal/llm"
	"github.com/flowbit/vanna/internal/trainingstore"
)

const defaultMaxPromptTokens = 14000

type promptInput struct {
	Dialect   string
	Question  string
	Pairs     []trainingstore.Example
	DDL       []trainingstore.Example
	Docs      []trainingstore.Example
	MaxTokens int
}

func buildSQLPrompt(in promptInput) []llm.Message {
	maxChars := in.MaxTokens * 4
	if maxChars <= 0 {
		maxChars = defaultMaxPromptTokens * 4
	}

	var system strings.Builder
	fmt.Fprintf(&system, "You are a %s expert. Please help to generate a SQL query to answer the question. "+
		"Your response should ONLY be based on the given context and follow the response guidelines and format instructions.\n", in.Dialect)

	used := system.Len() + len(in.Question)
	used += appendSection(&system, "===Tables\n", in.DDL, maxChars-used)
	used += appendSection(&system, "\n===Additional Context\n", in.Docs, maxChars-used)

	fmt.Fprintf(&system, "\n===Response Guidelines\n"+
		"1. If the provided context is sufficient, generate a valid SQL query without any explanations for the question.\n"+
		"2. If the provided context is insufficient, explain why the query can't be generated.\n"+
		"3. Use the most relevant table(s).\n"+
		"4. If the question has been asked and answered before, repeat the answer exactly as it was given before.\n"+
		"5. Ensure that the output SQL is %s-compliant and executable, and free of syntax errors.\n", in.Dialect)
	used = system.Len() + len(in.Question)

	messages := []llm.Message{llm.SystemMessage(system.String())}
	for _, pair := range in.Pairs {
		size := len(pair.Question) + len(pair.SQL)
		if used+size > maxChars {
			break
		}
		used += size
		messages = append(messages, llm.UserMessage(pair.Question), llm.AssistantMessage(pair.SQL))
	}
	return append(messages, llm.UserMessage(in.Question))
}

// appendSection writes examples under header until budget characters are spent and reports how many were written.
func appendSection(b *strings.Builder, header string, examples []trainingstore.Example, budget int) int {
	if len(examples) == 0 {
		return 0
	}
	written := 0
	for i, example := range examples {
		chunk := example.Content + "\n\n"
		if i == 0 {
			chunk = header + chunk
		}
		if written+len(chunk) > budget {
			break
		}
		b.WriteString(chunk)
		written += len(chunk)
	}
	return written
}

func buildQuestionPrompt(sql string) []llm.Message {
	return []llm.Message{
		llm.SystemMessage("The user will give you SQL and you will try to guess what the business question this query is answering. " +
			"Return just the question without any additional explanation. Do not reference the table name in the question."),
		llm.UserMessage(sql),
	}
}
