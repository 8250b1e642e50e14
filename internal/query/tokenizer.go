package query

import (
	"fmt"
	"strings"
)

// tokenKind classifies the lexical elements the gateway cares about. The
// tokenizer understands just enough SQL to find keywords, statement
// separators and numeric literals outside of strings and comments; it is not
// a full parser.
type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenNumber
	tokenString
	tokenPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// fold returns the lower-cased text of a word token
func (t token) fold() string {
	return strings.ToLower(t.text)
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordPart(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// tokenize scans a statement, honoring single-quoted strings (with ''
// escapes), double-quoted identifiers, line comments (--) and block comments.
// It fails on unterminated literals and comments so malformed statements
// cannot smuggle tokens past the checks.
func tokenize(statement string) ([]token, error) {
	var tokens []token
	i := 0
	n := len(statement)

	for i < n {
		c := statement[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '-' && i+1 < n && statement[i+1] == '-':
			// line comment
			for i < n && statement[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < n && statement[i+1] == '*':
			end := strings.Index(statement[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("unterminated block comment at offset %d", i)
			}
			i += end + 4

		case c == '\'' || c == '"':
			quote := c
			start := i
			i++
			closed := false
			for i < n {
				if statement[i] == quote {
					// doubled quote is an escape
					if i+1 < n && statement[i+1] == quote {
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string literal at offset %d", start)
			}
			tokens = append(tokens, token{kind: tokenString, text: statement[start:i], pos: start})

		case isWordStart(c):
			start := i
			for i < n && isWordPart(statement[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenWord, text: statement[start:i], pos: start})

		case isDigit(c):
			start := i
			for i < n && (isDigit(statement[i]) || statement[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokenNumber, text: statement[start:i], pos: start})

		default:
			tokens = append(tokens, token{kind: tokenPunct, text: string(c), pos: i})
			i++
		}
	}

	return tokens, nil
}
