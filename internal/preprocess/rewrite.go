package preprocess

import "strings"

// inputPrimitive is the guest-side read-input primitive. Calls to it are
// rewritten into suspension points so the engine can park the job while the
// human types.
const inputPrimitive = "input"

// DefaultBuiltins lists names that must never be treated as user-defined
// functions by the multi-file rewrite. The set is configuration data; the
// config package may extend it.
var DefaultBuiltins = []string{
	"print", "input", "console", "require", "alert",
	"parseInt", "parseFloat", "isNaN", "isFinite", "String", "Number",
	"Boolean", "Array", "Object", "JSON", "Math", "Date", "RegExp",
	"Promise", "Error", "TypeError", "RangeError", "Symbol", "Map", "Set",
	"setTimeout", "setInterval", "clearTimeout", "clearInterval",
	"encodeURIComponent", "decodeURIComponent", "structuredClone",
}

// Rewriter rewrites guest source for asynchronous execution.
type Rewriter struct {
	builtins map[string]struct{}
}

// New returns a Rewriter using the given built-in exclusion list, or
// DefaultBuiltins when names is nil.
func New(names []string) *Rewriter {
	if names == nil {
		names = DefaultBuiltins
	}
	b := make(map[string]struct{}, len(names))
	for _, n := range names {
		b[n] = struct{}{}
	}
	return &Rewriter{builtins: b}
}

// rewriteMode selects which transforms apply. A single file runs inside the
// engine's async wrapper and only needs its input calls awaited; the entry of
// a multi-file program additionally gets async declarations and awaited
// cross-file calls; a required module cannot await at module scope, so its
// transforms are confined to (async) function bodies.
type rewriteMode int

const (
	modeSingle rewriteMode = iota
	modeEntry
	modeModule
)

// Rewrite marks bare input(...) call sites as suspension points. Text inside
// strings and comments is never touched, and a call already under await is
// not marked twice. Source containing no rewritable call site round-trips
// byte-identical.
func (r *Rewriter) Rewrite(src string) string {
	return r.rewrite(src, modeSingle, nil)
}

// RewriteMultiFile performs the Rewrite transform and additionally prepares
// the source for cross-file calls: top-level function declarations become
// suspension-capable (async), and top-level call sites of the given
// user-defined functions are awaited, whether called bare or through a
// required module object. userFuncs is the allow-list of names collected
// from the workspace; names on the built-in exclusion list are ignored even
// if present.
func (r *Rewriter) RewriteMultiFile(src string, userFuncs []string) string {
	return r.rewrite(src, modeEntry, r.allowList(userFuncs))
}

// RewriteModule prepares an auxiliary file for the require path: top-level
// function declarations become async, and input calls inside them are
// awaited. Module scope itself is left alone, since the CommonJS wrapper a
// required file runs under is not async.
func (r *Rewriter) RewriteModule(src string) string {
	return r.rewrite(src, modeModule, nil)
}

// RewriteProgram preprocesses a whole execution snapshot: the allow-list of
// user-defined functions is collected across every file (the entry source
// included), each auxiliary file gets the module transform, and the entry
// gets the full multi-file transform. It returns the rewritten fileset and
// the rewritten entry source. source is the entry's live text, which wins
// over any stale snapshot copy under the same name.
func (r *Rewriter) RewriteProgram(files map[string]string, entry, source string) (map[string]string, string) {
	funcs := r.CollectFunctions(source)
	out := make(map[string]string, len(files)+1)
	for name, content := range files {
		if name == entry {
			continue
		}
		funcs = append(funcs, r.CollectFunctions(content)...)
		out[name] = r.RewriteModule(content)
	}
	code := r.RewriteMultiFile(source, funcs)
	out[entry] = code
	return out, code
}

func (r *Rewriter) allowList(names []string) map[string]struct{} {
	funcs := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, builtin := r.builtins[n]; builtin {
			continue
		}
		funcs[n] = struct{}{}
	}
	return funcs
}

// CollectFunctions returns the names of top-level function declarations in
// src, excluding built-ins. The union across all workspace files forms the
// allow-list passed to RewriteMultiFile.
func (r *Rewriter) CollectFunctions(src string) []string {
	var names []string
	depth := 0
	for _, sp := range lex(src) {
		if sp.class != classCode {
			continue
		}
		text := sp.text
		i := 0
		for i < len(text) {
			c := text[i]
			if isIdentStart(c) {
				j := i + 1
				for j < len(text) && isIdentPart(text[j]) {
					j++
				}
				word := text[i:j]
				if word == "function" && depth == 0 {
					if name, ok := nextIdent(text, j); ok {
						if _, builtin := r.builtins[name]; !builtin {
							names = append(names, name)
						}
					}
				}
				i = j
				continue
			}
			switch c {
			case '{', '(', '[':
				depth++
			case '}', ')', ']':
				depth--
			}
			i++
		}
	}
	return names
}

// scanState carries token context across code spans so that, for example, an
// await separated from its call by a comment is still recognized. depth
// counts every bracket kind; braces counts only {} so that call sites inside
// the parentheses of a top-level statement are still recognized as top-level,
// while anything inside a block or function body is not.
type scanState struct {
	prevWord string
	prevByte byte
	depth    int
	braces   int
}

func (r *Rewriter) rewrite(src string, mode rewriteMode, userFuncs map[string]struct{}) string {
	spans := lex(src)
	var out strings.Builder
	out.Grow(len(src) + 64)
	st := &scanState{}
	for _, sp := range spans {
		if sp.class != classCode {
			out.WriteString(sp.text)
			continue
		}
		r.rewriteCode(sp.text, st, mode, userFuncs, &out)
	}
	return out.String()
}

func (r *Rewriter) rewriteCode(text string, st *scanState, mode rewriteMode, userFuncs map[string]struct{}, out *strings.Builder) {
	i := 0
	n := len(text)
	for i < n {
		c := text[i]
		if isIdentStart(c) {
			j := i + 1
			for j < n && isIdentPart(text[j]) {
				j++
			}
			word := text[i:j]

			if mode != modeSingle && word == "function" && st.depth == 0 && st.prevWord != "async" {
				out.WriteString("async ")
			} else if callFollows(text, j) && r.shouldAwait(word, st, mode, userFuncs) {
				out.WriteString("await ")
			} else if mode == modeEntry && st.braces == 0 && st.prevByte != '.' && !blocksAwait(st.prevWord) {
				// h.greet() style: a call resolved through a required module
				// object is awaited when the final property is a known
				// user-defined function. The await lands before the whole
				// member chain.
				if prop, ok := memberCallName(text, j); ok {
					if _, user := userFuncs[prop]; user {
						out.WriteString("await ")
					}
				}
			}

			out.WriteString(word)
			st.prevWord = word
			st.prevByte = text[j-1]
			i = j
			continue
		}

		switch c {
		case ' ', '\t', '\r', '\n':
			// Whitespace does not separate a token from its await marker.
		default:
			switch c {
			case '{':
				st.depth++
				st.braces++
			case '(', '[':
				st.depth++
			case '}':
				st.depth--
				st.braces--
			case ')', ']':
				st.depth--
			}
			st.prevWord = ""
			st.prevByte = c
		}
		out.WriteByte(c)
		i++
	}
}

// shouldAwait reports whether the identifier ending at a call site needs an
// await marker. Member accesses, declarations, constructions, and
// already-awaited calls are left alone.
func (r *Rewriter) shouldAwait(word string, st *scanState, mode rewriteMode, userFuncs map[string]struct{}) bool {
	if blocksAwait(st.prevWord) {
		return false
	}
	if st.prevByte == '.' {
		return false
	}
	if word == inputPrimitive {
		// Module scope of a required file runs under a non-async wrapper;
		// only the (async) function bodies there can suspend.
		return mode != modeModule || st.braces > 0
	}
	if mode != modeEntry || st.braces != 0 {
		return false
	}
	_, ok := userFuncs[word]
	return ok
}

// blocksAwait reports whether the preceding keyword makes an await marker
// redundant or illegal: already-awaited calls, declarations, and new
// expressions (new await Foo( does not parse).
func blocksAwait(prevWord string) bool {
	switch prevWord {
	case "await", "function", "async", "new":
		return true
	}
	return false
}

// callFollows reports whether the next significant byte after offset j is an
// opening parenthesis, i.e. the preceding identifier is a call site. A line
// break does not end the expression before an opening parenthesis, so
// newlines are skipped like any other whitespace.
func callFollows(text string, j int) bool {
	j = skipSpace(text, j)
	return j < len(text) && text[j] == '('
}

// memberCallName walks a member-access chain starting right after an
// identifier (".a.b(" yields "b") and returns the final property name when
// the chain ends at a call site.
func memberCallName(text string, j int) (string, bool) {
	name := ""
	for {
		j = skipSpace(text, j)
		if j >= len(text) || text[j] != '.' {
			break
		}
		j = skipSpace(text, j+1)
		if j >= len(text) || !isIdentStart(text[j]) {
			return "", false
		}
		k := j + 1
		for k < len(text) && isIdentPart(text[k]) {
			k++
		}
		name = text[j:k]
		j = k
	}
	if name == "" {
		return "", false
	}
	return name, callFollows(text, j)
}

func skipSpace(text string, j int) int {
	for j < len(text) && (text[j] == ' ' || text[j] == '\t' || text[j] == '\r' || text[j] == '\n') {
		j++
	}
	return j
}

// nextIdent returns the identifier beginning at or after offset j, skipping
// whitespace and the generator star.
func nextIdent(text string, j int) (string, bool) {
	for j < len(text) && (text[j] == ' ' || text[j] == '\t' || text[j] == '*') {
		j++
	}
	if j >= len(text) || !isIdentStart(text[j]) {
		return "", false
	}
	k := j + 1
	for k < len(text) && isIdentPart(text[k]) {
		k++
	}
	return text[j:k], true
}
