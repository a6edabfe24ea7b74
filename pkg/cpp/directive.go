// directive.go parses the body of #define/#undef/#pragma lines once the
// Selector has already decided they are active for the configuration
// being expanded.
package cpp

import "strings"

// ParseDefineDirective parses the text after "#define ", returning enough
// to populate a MacroTable via DefineObject/DefineFunction.
func ParseDefineDirective(arg string, loc SourceLoc) (name string, isFunction bool, params []string, variadic bool, bodyTokens []Token, err error) {
	arg = strings.TrimLeft(arg, " \t")
	i := 0
	for i < len(arg) && isIdentByte(arg[i]) {
		i++
	}
	name = arg[:i]
	if name == "" {
		return "", false, nil, false, nil, &DirectiveError{Line: loc.Line, Msg: "#define requires a name"}
	}

	if i < len(arg) && arg[i] == '(' {
		isFunction = true
		j := strings.IndexByte(arg[i:], ')')
		if j < 0 {
			return "", false, nil, false, nil, &DirectiveError{Line: loc.Line, Msg: "unterminated macro parameter list"}
		}
		paramList := arg[i+1 : i+j]
		for _, p := range strings.Split(paramList, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if p == "..." {
				variadic = true
				continue
			}
			params = append(params, p)
		}
		rest := arg[i+j+1:]
		bodyTokens = tokenizeMacroBody(rest, loc)
		return name, isFunction, params, variadic, bodyTokens, nil
	}

	rest := arg[i:]
	bodyTokens = tokenizeMacroBody(rest, loc)
	return name, false, nil, false, bodyTokens, nil
}

func tokenizeMacroBody(s string, loc SourceLoc) []Token {
	lex := NewLexer(s, loc.File)
	var out []Token
	for {
		tok := lex.NextToken()
		if tok.Type == PP_EOF || tok.Type == PP_NEWLINE {
			break
		}
		if tok.Type != PP_WHITESPACE {
			tok.Loc = loc
			out = append(out, tok)
		}
	}
	return out
}

// ParsePragmaAsm recognizes the "#pragma endasm ( var = value )" trailer
// that follows a "#pragma asm" ... "#pragma endasm" block. This is a
// faithful compatibility quirk, not general #pragma handling: only this
// exact shape synthesizes a call, everything else is a no-op passthrough.
func ParsePragmaAsm(arg string) (varName string, ok bool) {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, "endasm") {
		return "", false
	}
	rest := strings.TrimSpace(arg[len("endasm"):])
	if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
		return "", false
	}
	inner := strings.TrimSpace(rest[1 : len(rest)-1])
	parts := strings.SplitN(inner, "=", 2)
	if len(parts) != 2 {
		return "", false
	}
	name := strings.TrimSpace(parts[0])
	if !IsIdentifier(name) {
		return "", false
	}
	return name, true
}
