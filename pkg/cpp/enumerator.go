// enumerator.go discovers the distinct configuration strings implied by
// conditional compilation directives in already-included source text
// (see include.go for #file/#endfile splicing that happens first).
package cpp

import "strings"

// directiveKind classifies one '#'-line relevant to configuration discovery.
type directiveKind int

const (
	dirIf directiveKind = iota
	dirIfdef
	dirIfndef
	dirElif
	dirElse
	dirEndif
	dirFile
	dirEndfile
	dirDefine
	dirOther
)

type rawDirective struct {
	kind directiveKind
	arg  string
	line int
}

type dirNode struct {
	d     rawDirective
	depth int
}

// scanRawDirectives classifies every '#'-prefixed line of text. Lines
// inside a string/char literal spanning multiple physical lines are not
// a concern here: by the time Enumerator runs, the Reader (reader.go) has
// already stripped comments and spliced continuations, and directive
// lines are always whole physical lines.
func scanRawDirectives(text string) []rawDirective {
	var out []rawDirective
	lines := strings.Split(text, "\n")
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		rest := strings.TrimSpace(line[1:])
		kind, arg := classifyDirective(rest)
		out = append(out, rawDirective{kind: kind, arg: arg, line: i + 1})
	}
	return out
}

func classifyDirective(rest string) (directiveKind, string) {
	word, arg := splitDirectiveWord(rest)
	switch word {
	case "if":
		return dirIf, arg
	case "ifdef":
		return dirIfdef, arg
	case "ifndef":
		return dirIfndef, arg
	case "elif":
		return dirElif, arg
	case "else":
		return dirElse, arg
	case "endif":
		return dirEndif, arg
	case "file":
		return dirFile, arg
	case "endfile":
		return dirEndfile, arg
	case "define":
		return dirDefine, arg
	default:
		return dirOther, arg
	}
}

func splitDirectiveWord(s string) (word, rest string) {
	i := 0
	for i < len(s) && (isIdentByte(s[i])) {
		i++
	}
	word = s[:i]
	rest = strings.TrimSpace(s[i:])
	return
}

func isIdentByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

// GetConfigurations implements the Enumerator: it returns the canonical,
// sorted set of Configuration strings (including "" for the default
// configuration) that need to be tried to exercise every conditional
// branch in text.
func GetConfigurations(text string) []string {
	dirs := withDepths(scanRawDirectives(text))
	cfgs := map[string]bool{"": true}
	enumerateChains(dirs, 0, len(dirs), nil, cfgs)
	stripAlreadyDefined(dirs, cfgs)

	out := make([]string, 0, len(cfgs))
	for c := range cfgs {
		out = append(out, c)
	}
	return sortConfigs(out)
}

// stripAlreadyDefined removes configuration tokens naming a macro the file
// itself unconditionally #defines (depth 0, outside any #if chain): trying
// that macro both defined and undefined is pointless when the file's own
// code guarantees it is always defined, so varying it would just enumerate
// a configuration that can never occur.
func stripAlreadyDefined(dirs []dirNode, cfgs map[string]bool) {
	always := make(map[string]bool)
	for _, d := range dirs {
		if d.d.kind == dirDefine && d.depth == 0 {
			name, _ := splitDirectiveWord(d.d.arg)
			if name != "" {
				always[name] = true
			}
		}
	}
	if len(always) == 0 {
		return
	}
	for c := range cfgs {
		if c == "" {
			continue
		}
		for _, tok := range strings.Split(c, ";") {
			name, _ := splitDefineToken(tok)
			if always[name] {
				delete(cfgs, c)
				break
			}
		}
	}
}

func splitDefineToken(tok string) (name, value string) {
	if idx := strings.IndexByte(tok, '='); idx >= 0 {
		return tok[:idx], tok[idx+1:]
	}
	return tok, ""
}

func withDepths(raw []rawDirective) []dirNode {
	out := make([]dirNode, len(raw))
	depth := 0
	for i, d := range raw {
		switch d.kind {
		case dirIf, dirIfdef, dirIfndef:
			out[i] = dirNode{d: d, depth: depth}
			depth++
		case dirElif, dirElse:
			out[i] = dirNode{d: d, depth: depth - 1}
		case dirEndif:
			depth--
			out[i] = dirNode{d: d, depth: depth}
		default:
			out[i] = dirNode{d: d, depth: depth}
		}
	}
	return out
}

// enumerateChains walks [lo,hi) of dirs at depth, recursing into each
// conditional chain it finds. deflist is the path of tokens assumed true
// to reach this point; every branch entered emits deflist+branchToken as
// one configuration and recurses with that as the new path, while scanning
// resumes after the chain using the original (pre-chain) deflist. This is a
// deliberate simplification of cppcheck's own getcfgs: rather than tracking
// a stack of deferred negations, each independent conditional varies one
// token at a time against an otherwise-default baseline.
func enumerateChains(dirs []dirNode, lo, hi int, deflist []string, cfgs map[string]bool) {
	pos := lo
	for pos < hi {
		node := dirs[pos]
		switch node.d.kind {
		case dirIf, dirIfdef, dirIfndef:
			headKind := node.d.kind
			headArg := node.d.arg
			pos = enumerateOneChain(dirs, pos, hi, headKind, headArg, deflist, cfgs)
		case dirFile:
			pos = skipIncludeGuardIfPresent(dirs, pos, hi, deflist, cfgs)
		default:
			pos++
		}
	}
}

func enumerateOneChain(dirs []dirNode, start, hi int, headKind directiveKind, headArg string, deflist []string, cfgs map[string]bool) int {
	depth := dirs[start].depth
	pos := start
	for pos < hi {
		node := dirs[pos]
		token := branchToken(headKind, headArg, node.d)

		bodyStart := pos + 1
		j := bodyStart
		for j < hi && !(dirs[j].depth == depth && (dirs[j].d.kind == dirElif || dirs[j].d.kind == dirElse || dirs[j].d.kind == dirEndif)) {
			j++
		}

		branchDefs := deflist
		if token != "" {
			branchDefs = append(append([]string{}, deflist...), token)
		}
		cfgs[SortedConfigTokens(branchDefs)] = true
		enumerateChains(dirs, bodyStart, j, branchDefs, cfgs)

		if j >= hi || dirs[j].d.kind == dirEndif {
			if j < hi {
				return j + 1
			}
			return j
		}
		pos = j
	}
	return pos
}

// branchToken derives the configuration token(s) a branch contributes, or
// "" when the branch needs no new token (a bare #else of an #ifdef/#if
// chain, or an expression too elaborate to reduce to defined() checks). A
// plain "defined(A) && defined(B) && ..." condition contributes every name
// in the chain, joined into one canonical "A;B" token (see
// Evaluator.ReduceDefinedAndChain); anything more elaborate still falls back
// to exploring only the expression's default-false path.
func branchToken(headKind directiveKind, headArg string, d rawDirective) string {
	ev := evalSingleton

	switch d.kind {
	case dirIfdef:
		return d.arg
	case dirIfndef:
		return ""
	case dirIf, dirElif:
		if name, negated, ok := ev.ReduceDefinedExpr(d.arg); ok {
			if negated {
				return ""
			}
			return name
		}
		if names, ok := ev.ReduceDefinedAndChain(d.arg); ok {
			return SortedConfigTokens(names)
		}
		return ""
	case dirElse:
		if headKind == dirIfndef {
			return headArg
		}
		if headKind == dirIf {
			if name, negated, ok := ev.ReduceDefinedExpr(headArg); ok && negated {
				return name
			}
		}
		return ""
	default:
		return ""
	}
}

// skipIncludeGuardIfPresent special-cases the classic
//
//	#ifndef GUARD
//	#define GUARD
//	... body ...
//	#endif
//
// envelope immediately following a #file marker: that guard does not
// represent an optional configuration, it is how the header prevents
// double inclusion, so it is not counted as a branch point.
func skipIncludeGuardIfPresent(dirs []dirNode, filePos, hi int, deflist []string, cfgs map[string]bool) int {
	pos := filePos + 1
	if pos >= hi || dirs[pos].d.kind != dirIfndef {
		return filePos + 1
	}
	guard := dirs[pos].d.arg
	defPos := pos + 1
	if defPos >= hi || dirs[defPos].d.kind != dirDefine {
		return filePos + 1
	}
	if !strings.HasPrefix(dirs[defPos].d.arg, guard) {
		return filePos + 1
	}

	depth := dirs[pos].depth
	j := defPos + 1
	for j < hi && !(dirs[j].depth == depth && dirs[j].d.kind == dirEndif) {
		j++
	}
	enumerateChains(dirs, defPos+1, j, deflist, cfgs)
	if j < hi {
		return j + 1
	}
	return j
}

func sortConfigs(cfgs []string) []string {
	for i := 1; i < len(cfgs); i++ {
		for j := i; j > 0 && cfgs[j-1] > cfgs[j]; j-- {
			cfgs[j-1], cfgs[j] = cfgs[j], cfgs[j-1]
		}
	}
	return cfgs
}

var evalSingleton = NewEvaluator()
