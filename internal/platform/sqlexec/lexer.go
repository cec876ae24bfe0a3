package sqlexec

import (
	"CipherDB/internal/domain"
	"encoding/hex"
	"strings"
	"unicode"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokIdent
	tokNumber
	tokString
	tokBlob
	tokSymbol
)

type token struct {
	typ  tokenType
	text string
	pos  int // byte offset into the statement
}

// keyword reports whether the token is the given word, case-insensitively.
func (t token) keyword(word string) bool {
	return t.typ == tokIdent && strings.EqualFold(t.text, word)
}

func (t token) symbol(s string) bool {
	return t.typ == tokSymbol && t.text == s
}

// lex splits an SQL statement into tokens. Errors carry the byte offset
// of the offending input.
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'':
			text, next, err := lexString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{typ: tokString, text: text, pos: i})
			i = next
		case (c == 'x' || c == 'X') && i+1 < len(input) && input[i+1] == '\'':
			raw, next, err := lexString(input, i+1)
			if err != nil {
				return nil, err
			}
			if _, err := hex.DecodeString(raw); err != nil {
				return nil, &domain.SyntaxError{Position: i, Token: raw, Detail: "invalid blob literal"}
			}
			tokens = append(tokens, token{typ: tokBlob, text: raw, pos: i})
			i = next
		case c >= '0' && c <= '9':
			start := i
			for i < len(input) && (input[i] >= '0' && input[i] <= '9') {
				i++
			}
			if i < len(input) && input[i] == '.' {
				i++
				for i < len(input) && (input[i] >= '0' && input[i] <= '9') {
					i++
				}
			}
			tokens = append(tokens, token{typ: tokNumber, text: input[start:i], pos: start})
		case isIdentStart(rune(c)):
			start := i
			for i < len(input) && isIdentPart(rune(input[i])) {
				i++
			}
			tokens = append(tokens, token{typ: tokIdent, text: input[start:i], pos: start})
		default:
			start := i
			two := ""
			if i+1 < len(input) {
				two = input[i : i+2]
			}
			switch {
			case two == "!=" || two == "<>" || two == "<=" || two == ">=":
				tokens = append(tokens, token{typ: tokSymbol, text: two, pos: start})
				i += 2
			case strings.ContainsRune("(),*;=<>", rune(c)):
				tokens = append(tokens, token{typ: tokSymbol, text: string(c), pos: start})
				i++
			case c == '-' && i+1 < len(input) && input[i+1] >= '0' && input[i+1] <= '9':
				i++
				for i < len(input) && (input[i] >= '0' && input[i] <= '9') {
					i++
				}
				if i < len(input) && input[i] == '.' {
					i++
					for i < len(input) && (input[i] >= '0' && input[i] <= '9') {
						i++
					}
				}
				tokens = append(tokens, token{typ: tokNumber, text: input[start:i], pos: start})
			default:
				return nil, &domain.SyntaxError{Position: i, Token: string(c), Detail: "unexpected character"}
			}
		}
	}
	tokens = append(tokens, token{typ: tokEOF, pos: len(input)})
	return tokens, nil
}

func lexString(input string, start int) (string, int, error) {
	var sb strings.Builder
	i := start + 1
	for i < len(input) {
		if input[i] == '\'' {
			if i+1 < len(input) && input[i+1] == '\'' {
				sb.WriteByte('\'')
				i += 2
				continue
			}
			return sb.String(), i + 1, nil
		}
		sb.WriteByte(input[i])
		i++
	}
	return "", 0, &domain.SyntaxError{Position: start, Detail: "unterminated string literal"}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
