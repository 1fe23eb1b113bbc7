package sqli

import "strings"

type tokenKind int

const (
	tokIdent tokenKind = iota // identifiers and keywords
	tokNumber
	tokString
	tokQuotedIdent
	tokComment
	tokOperator
	tokSemicolon
)

// token is a lexeme of a MySQL statement. start and end are byte offsets
// into the statement, end exclusive.
type token struct {
	kind  tokenKind
	text  string
	start int
	end   int
}

func (t token) is(keyword string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, keyword)
}

var multiCharOps = []string{"<=>", "<=", ">=", "<>", "!=", "||", "&&", ":=", "<<", ">>"}

// tokenize splits a MySQL statement into tokens. It never fails: an
// unterminated string or comment runs to the end of the input.
func tokenize(q string) []token {
	var toks []token
	emit := func(kind tokenKind, start, end int) {
		toks = append(toks, token{kind: kind, text: q[start:end], start: start, end: end})
	}

	for i := 0; i < len(q); {
		c := q[i]
		switch {
		case isSpace(c):
			i++

		case c == '#', c == '-' && strings.HasPrefix(q[i:], "--") && (i+2 == len(q) || isSpace(q[i+2])):
			end := strings.IndexByte(q[i:], '\n')
			if end < 0 {
				end = len(q)
			} else {
				end += i
			}
			emit(tokComment, i, end)
			i = end

		case c == '/' && strings.HasPrefix(q[i:], "/*"):
			end := strings.Index(q[i+2:], "*/")
			if end < 0 {
				end = len(q)
			} else {
				end += i + 4
			}
			emit(tokComment, i, end)
			i = end

		case c == '\'' || c == '"':
			end := scanQuoted(q, i, c, true)
			emit(tokString, i, end)
			i = end

		case c == '`':
			end := scanQuoted(q, i, c, false)
			emit(tokQuotedIdent, i, end)
			i = end

		case isDigit(c) || c == '.' && i+1 < len(q) && isDigit(q[i+1]):
			j := i + 1
			for j < len(q) && (isIdentChar(q[j]) || q[j] == '.') {
				j++
			}
			emit(tokNumber, i, j)
			i = j

		case isIdentChar(c):
			j := i + 1
			for j < len(q) && isIdentChar(q[j]) {
				j++
			}
			emit(tokIdent, i, j)
			i = j

		case c == ';':
			emit(tokSemicolon, i, i+1)
			i++

		default:
			n := 1
			for _, op := range multiCharOps {
				if strings.HasPrefix(q[i:], op) {
					n = len(op)
					break
				}
			}
			emit(tokOperator, i, i+n)
			i += n
		}
	}
	return toks
}

// scanQuoted returns the offset just past the closing quote. A doubled
// quote is an escaped quote; backslash escapes apply when escapes is set.
func scanQuoted(q string, i int, quote byte, escapes bool) int {
	j := i + 1
	for j < len(q) {
		switch {
		case escapes && q[j] == '\\':
			j += 2
		case q[j] == quote:
			if j+1 < len(q) && q[j+1] == quote {
				j += 2
				continue
			}
			return j + 1
		default:
			j++
		}
	}
	return len(q)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || isDigit(c)
}
