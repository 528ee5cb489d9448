// Package preprocess rewrites guest source so that blocking-looking input
// calls become suspension points compatible with the engine's asynchronous
// input protocol. Rewriting is span-aware: a minimal lexer first classifies
// the source into string, comment, and code spans, and only code spans are
// ever modified. Reassembling unmodified spans reproduces the input byte for
// byte.
package preprocess

import "strings"

type spanClass int

const (
	classCode spanClass = iota
	classString
	classComment
)

// span is a contiguous run of source text with a single classification.
type span struct {
	class spanClass
	text  string
}

// lex splits src into string, comment, and code spans. String spans include
// their delimiters. Template literals are classified as string in their
// entirety, interpolation bodies included; a genuine input call inside an
// interpolation is therefore not rewritten, which is the conservative
// failure mode (the call surfaces as a runtime suspension error instead of
// a miscompiled neighbor).
func lex(src string) []span {
	var spans []span
	var buf strings.Builder
	cur := classCode

	flush := func(next spanClass) {
		if buf.Len() > 0 {
			spans = append(spans, span{class: cur, text: buf.String()})
			buf.Reset()
		}
		cur = next
	}

	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			flush(classString)
			quote := c
			buf.WriteByte(c)
			i++
			for i < n {
				c = src[i]
				buf.WriteByte(c)
				i++
				if c == '\\' && i < n {
					buf.WriteByte(src[i])
					i++
					continue
				}
				if c == quote {
					break
				}
				// Unterminated single/double-quoted strings end at the line
				// break; the engine reports the syntax error, not us.
				if quote != '`' && (c == '\n' || c == '\r') {
					break
				}
			}
			flush(classCode)
		case c == '/' && i+1 < n && src[i+1] == '/':
			flush(classComment)
			for i < n && src[i] != '\n' {
				buf.WriteByte(src[i])
				i++
			}
			flush(classCode)
		case c == '/' && i+1 < n && src[i+1] == '*':
			flush(classComment)
			buf.WriteString("/*")
			i += 2
			for i < n {
				if src[i] == '*' && i+1 < n && src[i+1] == '/' {
					buf.WriteString("*/")
					i += 2
					break
				}
				buf.WriteByte(src[i])
				i++
			}
			flush(classCode)
		default:
			buf.WriteByte(c)
			i++
		}
	}
	flush(classCode)
	return spans
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
