package nl2sql

import (
	"regexp"
	"strings"

	"github.com/flowbit/vanna/internal/query"
)

var (
	fencedSQLPattern = regexp.MustCompile("(?is)```[ \\t]*(sql|postgresql|postgres)?[ \\t]*\\n?(.*?)```")
	statementStart   = regexp.MustCompile(`(?i)\b(?:WITH\s+(?:RECURSIVE\s+)?\w+\s+AS\s*\(|SELECT\b)`)
	fromClause       = regexp.MustCompile(`(?i)\bFROM\b`)
	blankLine        = regexp.MustCompile(`\n[ \t]*\r?\n`)
)

// ExtractSQL pulls the SQL statement out of an LLM response. It returns "" when
// the response contains no recognizable query.
//
// Fenced blocks win. Outside a fence a statement ends at its first semicolon or
// blank line, and the word "select" inside a sentence only counts when it is
// followed by a FROM clause and a terminating semicolon.
func ExtractSQL(response string) string {
	for _, match := range fencedSQLPattern.FindAllStringSubmatch(response, -1) {
		body := strings.TrimSpace(match[2])
		if match[1] != "" || isReadQuery(body) {
			if sql := query.StripTrailingSemicolons(body); sql != "" {
				return sql
			}
		}
	}
	for _, loc := range statementStart.FindAllStringIndex(response, -1) {
		if sql, ok := statementAt(response, loc[0]); ok {
			return sql
		}
	}
	return ""
}

// statementAt cuts the unfenced statement starting at offset and reports whether it reads as SQL.
func statementAt(response string, offset int) (string, bool) {
	text := response[offset:]
	isSelect := strings.EqualFold(text[:min(len(text), 6)], "SELECT")
	leading := isSelect && strings.HasPrefix(text, "SELECT") && startsLine(response, offset)

	end, terminated := len(text), false
	if i := strings.IndexByte(text, ';'); i >= 0 {
		end, terminated = i, true
	}
	if loc := blankLine.FindStringIndex(text); loc != nil && loc[0] < end {
		end, terminated = loc[0], false
	}
	if isSelect && !leading {
		// inside a sentence the statement must finish on the same line
		if i := strings.IndexByte(text, '\n'); i >= 0 && i < end {
			end, terminated = i, false
		}
	}
	sql := strings.TrimSpace(text[:end])

	switch {
	case sql == "":
		return "", false
	case !isSelect:
		return sql, true
	case leading:
		return sql, terminated || fromClause.MatchString(sql)
	default:
		return sql, terminated && fromClause.MatchString(sql)
	}
}

func startsLine(text string, offset int) bool {
	before := text[:offset]
	if i := strings.LastIndexByte(before, '\n'); i >= 0 {
		before = before[i+1:]
	}
	return strings.TrimSpace(before) == ""
}

func isReadQuery(sql string) bool {
	head := strings.ToUpper(strings.TrimLeft(sql, " \t\r\n("))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH")
}
