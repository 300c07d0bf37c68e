package condition

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tkEOF      tokenKind = iota
	tkInt                // 42
	tkFloat              // 0.8
	tkString             // "hello" or 'hello'
	tkIdent              // names and keywords
	tkOp                 // == != > < >= <= && || ! + - * / // %
	tkLParen             // (
	tkRParen             // )
	tkLBracket           // [
	tkRBracket           // ]
	tkLBrace             // {
	tkRBrace             // }
	tkComma              // ,
	tkColon              // :
	tkDot                // .
)

type token struct {
	kind  tokenKind
	value string
	pos   int
}

var punctuation = map[rune]tokenKind{
	'(': tkLParen,
	')': tkRParen,
	'[': tkLBracket,
	']': tkRBracket,
	'{': tkLBrace,
	'}': tkRBrace,
	',': tkComma,
	':': tkColon,
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	runes := []rune(expr)
	i := 0

	for i < len(runes) {
		ch := runes[i]

		if unicode.IsSpace(ch) {
			i++
			continue
		}

		if kind, ok := punctuation[ch]; ok {
			tokens = append(tokens, token{kind, string(ch), i})
			i++
			continue
		}

		if ch == '"' || ch == '\'' {
			s, n, err := readString(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tkString, s, i})
			i = n
			continue
		}

		// ".5" is a float, "a.b" is attribute access.
		if ch == '.' && !(i+1 < len(runes) && isDigit(runes[i+1])) {
			tokens = append(tokens, token{tkDot, ".", i})
			i++
			continue
		}

		if isDigit(ch) || ch == '.' {
			num, isFloat, n := readNumber(runes, i)
			kind := tkInt
			if isFloat {
				kind = tkFloat
			}
			tokens = append(tokens, token{kind, num, i})
			i = n
			continue
		}

		if i+1 < len(runes) {
			two := string(runes[i : i+2])
			switch two {
			case "==", "!=", ">=", "<=", "&&", "||", "//":
				tokens = append(tokens, token{tkOp, two, i})
				i += 2
				continue
			}
		}

		if strings.ContainsRune("><!+-*/%", ch) {
			tokens = append(tokens, token{tkOp, string(ch), i})
			i++
			continue
		}

		if isIdentStart(ch) {
			ident, n := readIdent(runes, i)
			tokens = append(tokens, token{tkIdent, ident, i})
			i = n
			continue
		}

		return nil, fmt.Errorf("unexpected character %q at position %d", string(ch), i)
	}

	tokens = append(tokens, token{kind: tkEOF, pos: len(runes)})
	return tokens, nil
}

func readString(runes []rune, start int) (string, int, error) {
	quote := runes[start]
	i := start + 1
	var sb strings.Builder
	for i < len(runes) {
		if runes[i] == '\\' && i+1 < len(runes) {
			switch runes[i+1] {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			default:
				sb.WriteRune(runes[i+1])
			}
			i += 2
			continue
		}
		if runes[i] == quote {
			return sb.String(), i + 1, nil
		}
		sb.WriteRune(runes[i])
		i++
	}
	return "", 0, fmt.Errorf("unterminated string starting at position %d", start)
}

func readNumber(runes []rune, start int) (string, bool, int) {
	i := start
	isFloat := false
	for i < len(runes) && isDigit(runes[i]) {
		i++
	}
	if i < len(runes) && runes[i] == '.' {
		isFloat = true
		i++
		for i < len(runes) && isDigit(runes[i]) {
			i++
		}
	}
	if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
		j := i + 1
		if j < len(runes) && (runes[j] == '+' || runes[j] == '-') {
			j++
		}
		if j < len(runes) && isDigit(runes[j]) {
			isFloat = true
			i = j
			for i < len(runes) && isDigit(runes[i]) {
				i++
			}
		}
	}
	return string(runes[start:i]), isFloat, i
}

func readIdent(runes []rune, start int) (string, int) {
	i := start
	for i < len(runes) && isIdentPart(runes[i]) {
		i++
	}
	return string(runes[start:i]), i
}

func isDigit(ch rune) bool      { return ch >= '0' && ch <= '9' }
func isIdentStart(ch rune) bool { return unicode.IsLetter(ch) || ch == '_' }
func isIdentPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}
