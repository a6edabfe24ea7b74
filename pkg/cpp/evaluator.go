// evaluator.go reduces a preprocessor conditional expression to "0", "1",
// or a residual string, against a set of known defines. It backs both the
// Enumerator (deciding whether a branch condition is a simple defined()
// check worth tracking) and the Selector (deciding, for one concrete
// configuration, whether a branch is taken).
package cpp

import (
	"fmt"
	"sort"
	"strings"
)

// Evaluator reduces #if/#elif expressions against a variables map of
// name -> value (value is "" for a bare -D with no assigned value).
type Evaluator struct{}

// NewEvaluator creates an Evaluator.
func NewEvaluator() *Evaluator { return &Evaluator{} }

// Simplify reduces expr to "0", "1", or a smaller residual expression,
// given which names are known to be defined (and their values). Unknown
// identifiers are left in place rather than assumed false.
func (ev *Evaluator) Simplify(expr string, vars map[string]string) string {
	toks := tokenizeExpr(expr)
	toks = substituteDefined(toks, vars)
	toks = substituteIdentifiers(toks, vars, false)
	return foldToFixpoint(toks)
}

// MatchCfgDef evaluates expr against one fully-known configuration: every
// identifier not present in vars is treated as undefined (0), so the
// result always reduces to a definite boolean.
func (ev *Evaluator) MatchCfgDef(expr string, vars map[string]string) (bool, error) {
	toks := tokenizeExpr(expr)
	toks = substituteDefined(toks, vars)
	toks = substituteIdentifiers(toks, vars, true)

	val, err := evalExpr(toks)
	if err != nil {
		return false, err
	}
	return val != 0, nil
}

// ReduceDefinedExpr recognizes the two canonical single-identifier forms
// "defined(X)"/"defined X"/"X"/"!X" that the Enumerator can represent as a
// single configuration token. ok is false for anything more elaborate
// (arithmetic comparisons, a negated or mixed conjunction); a plain
// conjunction of single-identifier checks is handled separately by
// ReduceDefinedAndChain, since it reduces to several tokens rather than one.
func (ev *Evaluator) ReduceDefinedExpr(expr string) (name string, negated bool, ok bool) {
	return reduceDefinedTokens(filterTrivia(tokenizeExpr(expr)))
}

// ReduceDefinedAndChain recognizes "defined(A) && defined(B) && ..." (or the
// bare-identifier/"defined X" equivalents, ANDed together): a conjunction of
// two or more non-negated single-identifier checks, each independently
// representable by ReduceDefinedExpr. It reduces to the sorted list of names
// the chain requires, matching the canonicalization spec §4.3 describes for
// this specific pattern. ok is false if any conjunct doesn't reduce to a
// bare non-negated identifier/defined() check, or if "&&" never appears at
// the top level (a lone conjunct is ReduceDefinedExpr's job).
func (ev *Evaluator) ReduceDefinedAndChain(expr string) (names []string, ok bool) {
	parts := splitTopLevelAnd(tokenizeExpr(expr))
	if len(parts) < 2 {
		return nil, false
	}
	for _, part := range parts {
		name, negated, partOk := reduceDefinedTokens(filterTrivia(part))
		if !partOk || negated {
			return nil, false
		}
		names = append(names, name)
	}
	return names, true
}

func reduceDefinedTokens(ids []Token) (name string, negated bool, ok bool) {
	neg := false
	if len(ids) > 0 && ids[0].Type == PP_PUNCTUATOR && ids[0].Text == "!" {
		neg = true
		ids = ids[1:]
	}

	switch {
	case len(ids) == 1 && ids[0].Type == PP_IDENTIFIER:
		return ids[0].Text, neg, true
	case len(ids) == 2 && ids[0].Type == PP_IDENTIFIER && ids[0].Text == "defined" && ids[1].Type == PP_IDENTIFIER:
		return ids[1].Text, neg, true
	case len(ids) == 4 && ids[0].Type == PP_IDENTIFIER && ids[0].Text == "defined" &&
		ids[1].Text == "(" && ids[2].Type == PP_IDENTIFIER && ids[3].Text == ")":
		return ids[2].Text, neg, true
	default:
		return "", false, false
	}
}

func filterTrivia(toks []Token) []Token {
	var out []Token
	for _, t := range toks {
		if t.Type != PP_WHITESPACE && t.Type != PP_NEWLINE {
			out = append(out, t)
		}
	}
	return out
}

// splitTopLevelAnd splits toks on "&&" punctuators that aren't nested inside
// parens, so "defined(A) && defined(B)" splits into its two defined() calls
// rather than being confused by the parens each one carries.
func splitTopLevelAnd(toks []Token) [][]Token {
	var parts [][]Token
	var cur []Token
	depth := 0
	for _, t := range toks {
		if t.Type == PP_WHITESPACE || t.Type == PP_NEWLINE {
			continue
		}
		switch t.Text {
		case "(":
			depth++
		case ")":
			depth--
		}
		if depth == 0 && t.Type == PP_PUNCTUATOR && t.Text == "&&" {
			parts = append(parts, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	parts = append(parts, cur)
	return parts
}

func tokenizeExpr(expr string) []Token {
	lex := NewLexer("("+expr+")", "<cond>")
	var toks []Token
	for {
		tok := lex.NextToken()
		if tok.Type == PP_EOF || tok.Type == PP_NEWLINE {
			break
		}
		toks = append(toks, tok)
	}
	// drop the synthetic wrapping parens added so a bare "X" or "!X" tokenizes
	// the same way a parenthesized expression would.
	toks = stripOuterParens(toks)
	return toks
}

func stripOuterParens(toks []Token) []Token {
	var stripped []Token
	for _, t := range toks {
		if t.Type != PP_WHITESPACE {
			stripped = append(stripped, t)
		}
	}
	if len(stripped) >= 2 && stripped[0].Text == "(" && stripped[len(stripped)-1].Text == ")" {
		depth := 0
		wraps := true
		for i, t := range stripped {
			if t.Text == "(" {
				depth++
			} else if t.Text == ")" {
				depth--
				if depth == 0 && i != len(stripped)-1 {
					wraps = false
					break
				}
			}
		}
		if wraps {
			return stripped[1 : len(stripped)-1]
		}
	}
	return stripped
}

// substituteDefined replaces defined(X)/defined X with "1" or "0" per vars.
func substituteDefined(toks []Token, vars map[string]string) []Token {
	var out []Token
	i := 0
	for i < len(toks) {
		t := toks[i]
		if t.Type == PP_IDENTIFIER && t.Text == "defined" {
			j := i + 1
			var name string
			if j < len(toks) && toks[j].Text == "(" && j+1 < len(toks) && toks[j+1].Type == PP_IDENTIFIER && j+2 < len(toks) && toks[j+2].Text == ")" {
				name = toks[j+1].Text
				i = j + 3
			} else if j < len(toks) && toks[j].Type == PP_IDENTIFIER {
				name = toks[j].Text
				i = j + 1
			} else {
				out = append(out, t)
				i++
				continue
			}
			val := "0"
			if _, ok := vars[name]; ok {
				val = "1"
			}
			out = append(out, Token{Type: PP_NUMBER, Text: val, Loc: t.Loc})
			continue
		}
		out = append(out, t)
		i++
	}
	return out
}

// substituteIdentifiers replaces bare identifiers with their define value
// (or "1" if the define has no value), or "0" when unknownIsFalse is set
// and the identifier is not in vars. When unknownIsFalse is false, unknown
// identifiers are left untouched so Simplify can return a residual string.
// An identifier whose value is not a number is also left untouched.
func substituteIdentifiers(toks []Token, vars map[string]string, unknownIsFalse bool) []Token {
	var out []Token
	for _, t := range toks {
		if t.Type == PP_IDENTIFIER {
			if val, ok := vars[t.Text]; ok {
				if val == "" {
					val = "1"
				}
				if _, isNum := parseNumber(val); isNum == nil {
					out = append(out, Token{Type: PP_NUMBER, Text: val, Loc: t.Loc})
					continue
				}
			} else if unknownIsFalse {
				out = append(out, Token{Type: PP_NUMBER, Text: "0", Loc: t.Loc})
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// foldToFixpoint iteratively folds "!0"/"!1" and fully-numeric binary
// expressions until nothing more reduces, then renders the remainder.
func foldToFixpoint(toks []Token) string {
	var filtered []Token
	for _, t := range toks {
		if t.Type != PP_WHITESPACE && t.Type != PP_NEWLINE {
			filtered = append(filtered, t)
		}
	}

	for {
		next, changed := foldOnePass(filtered)
		filtered = next
		if !changed {
			break
		}
	}

	if len(filtered) == 1 && filtered[0].Type == PP_NUMBER {
		return filtered[0].Text
	}

	var sb strings.Builder
	for i, t := range filtered {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.Text)
	}
	return sb.String()
}

func foldOnePass(toks []Token) ([]Token, bool) {
	changed := false
	var out []Token
	i := 0
	for i < len(toks) {
		t := toks[i]

		if t.Text == "!" && i+1 < len(toks) && toks[i+1].Type == PP_NUMBER {
			val := "1"
			if toks[i+1].Text != "0" {
				val = "0"
			}
			out = append(out, Token{Type: PP_NUMBER, Text: val, Loc: t.Loc})
			i += 2
			changed = true
			continue
		}

		if t.Text == "(" {
			depth := 1
			j := i + 1
			for j < len(toks) && depth > 0 {
				if toks[j].Text == "(" {
					depth++
				} else if toks[j].Text == ")" {
					depth--
				}
				j++
			}
			if depth == 0 && j-1 == i+2 && toks[i+1].Type == PP_NUMBER {
				out = append(out, toks[i+1])
				i = j
				changed = true
				continue
			}
		}

		if i+2 < len(toks) && t.Type == PP_NUMBER && toks[i+2].Type == PP_NUMBER {
			op := toks[i+1].Text
			a, aok := parseNumber(t.Text)
			b, bok := parseNumber(toks[i+2].Text)
			if aok == nil && bok == nil {
				var res int64
				ok := true
				switch op {
				case "&&":
					res = boolToInt(a != 0 && b != 0)
				case "||":
					res = boolToInt(a != 0 || b != 0)
				case "==":
					res = boolToInt(a == b)
				case "!=":
					res = boolToInt(a != b)
				default:
					ok = false
				}
				if ok {
					out = append(out, Token{Type: PP_NUMBER, Text: fmt.Sprintf("%d", res), Loc: t.Loc})
					i += 3
					changed = true
					continue
				}
			}
		}

		out = append(out, t)
		i++
	}
	return out, changed
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// SortedConfigTokens canonicalizes a set of raw "NAME" / "NAME=VALUE" tokens
// into the sorted, deduplicated, semicolon-joined Configuration string.
func SortedConfigTokens(tokens []string) string {
	seen := make(map[string]bool)
	var uniq []string
	for _, t := range tokens {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		uniq = append(uniq, t)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, ";")
}

// ParseConfigTokens splits a Configuration string back into its tokens and
// returns a name->value map suitable for MatchCfgDef/Simplify's vars param.
func ParseConfigTokens(cfg string) map[string]string {
	vars := make(map[string]string)
	if cfg == "" {
		return vars
	}
	for _, tok := range strings.Split(cfg, ";") {
		if tok == "" {
			continue
		}
		if idx := strings.IndexByte(tok, '='); idx >= 0 {
			vars[tok[:idx]] = tok[idx+1:]
		} else {
			vars[tok] = ""
		}
	}
	return vars
}
