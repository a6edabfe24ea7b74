// expand.go implements the Expander collaborator (spec §4.5): rescanning
// token-paste/stringify/argument-substitution macro expansion with a
// hideset guarding against self-recursive expansion, the same algorithm
// this tool family has used since the original Dave Prosser rescanning
// description.
package cpp

import (
	"fmt"
	"strings"
)

// Expander expands object-like and function-like macros in a token stream.
type Expander struct {
	macros  *MacroTable
	hideset map[string]bool // macro names currently mid-expansion ("blue paint")
	loc     SourceLoc       // active location for __FILE__/__LINE__ substitution
}

// NewExpander creates an Expander bound to macros.
func NewExpander(macros *MacroTable) *Expander {
	return &Expander{
		macros:  macros,
		hideset: make(map[string]bool),
	}
}

// Expand expands every macro invocation found in tokens.
func (e *Expander) Expand(tokens []Token) ([]Token, error) {
	return e.expandTokens(tokens, nil)
}

// ExpandWithLoc expands tokens as Expand does, but substitutes loc for
// __FILE__/__LINE__ instead of each token's own location.
func (e *Expander) ExpandWithLoc(tokens []Token, loc SourceLoc) ([]Token, error) {
	e.loc = loc
	return e.expandTokens(tokens, nil)
}

// expandTokens is the rescanning core: parentHideset carries the caller's
// in-progress macro names down into nested expansion so a macro can never
// expand itself, directly or through a chain of others.
func (e *Expander) expandTokens(tokens []Token, parentHideset map[string]bool) ([]Token, error) {
	var result []Token
	i := 0

	for i < len(tokens) {
		tok := tokens[i]

		if tok.Type != PP_IDENTIFIER {
			result = append(result, tok)
			i++
			continue
		}

		macro := e.macros.Lookup(tok.Text)
		if macro == nil || e.blueInk(tok.Text, parentHideset) {
			result = append(result, tok)
			i++
			continue
		}

		switch macro.Kind {
		case MacroBuiltin:
			expanded, err := e.expandBuiltin(macro, tok.Loc)
			if err != nil {
				return nil, err
			}
			result = append(result, expanded...)
			i++

		case MacroFunction:
			parenIdx := i + 1
			for parenIdx < len(tokens) && tokens[parenIdx].Type == PP_WHITESPACE {
				parenIdx++
			}
			if parenIdx >= len(tokens) || tokens[parenIdx].Type != PP_PUNCTUATOR || tokens[parenIdx].Text != "(" {
				// No call syntax follows: the name stands for itself.
				result = append(result, tok)
				i++
				continue
			}

			args, endIdx, err := e.parseArguments(tokens, parenIdx, macro)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", tok.Loc.File, tok.Loc.Line, err)
			}
			expanded, err := e.expandFunctionMacro(macro, args, tok.Loc)
			if err != nil {
				return nil, err
			}
			result = append(result, expanded...)
			i = endIdx + 1

		default:
			expanded, err := e.expandObjectMacro(macro, tok.Loc)
			if err != nil {
				return nil, err
			}
			result = append(result, expanded...)
			i++
		}
	}

	return result, nil
}

// blueInk reports whether name is already mid-expansion, either in this
// Expander's own hideset or in a hideset inherited from an enclosing call.
func (e *Expander) blueInk(name string, parentHideset map[string]bool) bool {
	if e.hideset[name] {
		return true
	}
	return parentHideset != nil && parentHideset[name]
}

// expandBuiltin expands a built-in macro.
func (e *Expander) expandBuiltin(macro *Macro, loc SourceLoc) ([]Token, error) {
	// Use the current location context
	useLoc := loc
	if e.loc.File != "" {
		useLoc = e.loc
	}

	switch macro.Name {
	case "__FILE__":
		return e.macros.GetFileToken(useLoc), nil
	case "__LINE__":
		return e.macros.GetLineToken(useLoc), nil
	default:
		if macro.BuiltinFunc != nil {
			return macro.BuiltinFunc(useLoc), nil
		}
		return nil, fmt.Errorf("built-in macro %s has no implementation", macro.Name)
	}
}

// expandObjectMacro expands an object-like macro.
func (e *Expander) expandObjectMacro(macro *Macro, loc SourceLoc) ([]Token, error) {
	// Add to hideset
	e.hideset[macro.Name] = true
	defer delete(e.hideset, macro.Name)

	// Copy replacement tokens with new location
	replacement := make([]Token, len(macro.Replacement))
	for i, tok := range macro.Replacement {
		replacement[i] = tok
		replacement[i].Loc = loc
	}

	// Handle token pasting
	replacement, err := e.handleTokenPasting(replacement)
	if err != nil {
		return nil, err
	}

	// Recursively expand the result
	return e.expandTokens(replacement, e.hideset)
}

// expandFunctionMacro expands a function-like macro with given arguments.
func (e *Expander) expandFunctionMacro(macro *Macro, args [][]Token, loc SourceLoc) ([]Token, error) {
	// Add to hideset
	e.hideset[macro.Name] = true
	defer delete(e.hideset, macro.Name)

	// Build parameter map
	paramMap := make(map[string][]Token)
	for i, param := range macro.Params {
		if i < len(args) {
			paramMap[param] = args[i]
		} else {
			paramMap[param] = nil
		}
	}

	// Handle variadic __VA_ARGS__
	if macro.IsVariadic {
		vaArgs := e.buildVAArgs(args, len(macro.Params))
		paramMap["__VA_ARGS__"] = vaArgs
	}

	// Substitute parameters in the replacement list. A parameter adjacent to
	// ## is substituted raw (token pasting needs the unexpanded argument);
	// everywhere else the argument is itself macro-expanded first.
	var result []Token
	i := 0
	replacement := macro.Replacement

	for i < len(replacement) {
		tok := replacement[i]

		if isStringifyHash(tok) {
			nextIdx := i + 1
			for nextIdx < len(replacement) && replacement[nextIdx].Type == PP_WHITESPACE {
				nextIdx++
			}
			if nextIdx < len(replacement) && replacement[nextIdx].Type == PP_IDENTIFIER {
				if paramTokens, ok := paramMap[replacement[nextIdx].Text]; ok {
					result = append(result, e.stringify(paramTokens, loc))
					i = nextIdx + 1
					continue
				}
			}
		}

		// GNU comma elision: in ", ##__VA_ARGS__" (whitespace allowed before
		// the ##) the ## never pastes. When the variadic argument is empty the
		// comma is dropped too, so LOG("x") from
		// #define LOG(fmt, ...) printf(fmt, ##__VA_ARGS__) expands to
		// printf("x") instead of printf("x",); otherwise only the ## is
		// dropped and LOG("x", 1) expands to printf("x", 1).
		if isPasteOp(tok) && macro.IsVariadic && i+1 < len(replacement) && replacement[i+1].Type == PP_IDENTIFIER &&
			replacement[i+1].Text == "__VA_ARGS__" {
			k := len(result)
			for k > 0 && result[k-1].Type == PP_WHITESPACE {
				k--
			}
			if k > 0 && result[k-1].Type == PP_PUNCTUATOR && result[k-1].Text == "," {
				if len(paramMap["__VA_ARGS__"]) == 0 {
					result = result[:k-1]
					i += 2
				} else {
					i++
				}
				continue
			}
		}

		if tok.Type == PP_IDENTIFIER {
			if paramTokens, ok := paramMap[tok.Text]; ok {
				adjacentToPaste := (i > 0 && isPasteOp(replacement[i-1])) || (i+1 < len(replacement) && isPasteOp(replacement[i+1]))
				substituted := paramTokens
				if !adjacentToPaste {
					expanded, err := e.expandTokens(paramTokens, e.hideset)
					if err != nil {
						return nil, err
					}
					substituted = expanded
				}
				for _, pt := range substituted {
					pt.Loc = loc
					result = append(result, pt)
				}
				i++
				continue
			}
		}

		newTok := tok
		newTok.Loc = loc
		result = append(result, newTok)
		i++
	}

	result, err := e.handleTokenPasting(result)
	if err != nil {
		return nil, err
	}

	// Recursively expand the result
	return e.expandTokens(result, e.hideset)
}

// parseArguments splits the comma-separated, paren-balanced argument list
// of a function-like macro call starting at tokens[startIdx] == "(". It
// returns each argument's tokens (whitespace-trimmed) and the index of the
// matching ")".
func (e *Expander) parseArguments(tokens []Token, startIdx int, macro *Macro) ([][]Token, int, error) {
	i := startIdx + 1
	var args [][]Token
	var currentArg []Token
	parenDepth := 1

	for i < len(tokens) {
		tok := tokens[i]

		switch {
		case tok.Type == PP_PUNCTUATOR && tok.Text == "(":
			parenDepth++
			currentArg = append(currentArg, tok)
		case tok.Type == PP_PUNCTUATOR && tok.Text == ")":
			parenDepth--
			if parenDepth == 0 {
				if len(currentArg) > 0 || len(args) > 0 {
					args = append(args, trimWhitespace(currentArg))
				}
				if err := e.validateArgCount(macro, args); err != nil {
					return nil, 0, err
				}
				return args, i, nil
			}
			currentArg = append(currentArg, tok)
		case tok.Type == PP_PUNCTUATOR && tok.Text == "," && parenDepth == 1:
			args = append(args, trimWhitespace(currentArg))
			currentArg = nil
		default:
			currentArg = append(currentArg, tok)
		}
		i++
	}

	return nil, 0, fmt.Errorf("unterminated macro argument list")
}

// validateArgCount checks if the number of arguments is valid for the macro.
func (e *Expander) validateArgCount(macro *Macro, args [][]Token) error {
	expected := len(macro.Params)

	if macro.IsVariadic {
		// Variadic: at least one argument per named parameter (Params
		// excludes the "...")
		if len(args) < expected {
			return fmt.Errorf("macro %s requires at least %d arguments, got %d",
				macro.Name, expected, len(args))
		}
	} else {
		// Fixed: exact match required
		if len(args) != expected {
			return fmt.Errorf("macro %s requires %d arguments, got %d",
				macro.Name, expected, len(args))
		}
	}
	return nil
}

// buildVAArgs builds the __VA_ARGS__ replacement from extra arguments.
func (e *Expander) buildVAArgs(args [][]Token, numParams int) []Token {
	if len(args) <= numParams {
		return nil
	}

	var result []Token
	extraArgs := args[numParams:]
	for i, arg := range extraArgs {
		if i > 0 {
			result = append(result, Token{Type: PP_PUNCTUATOR, Text: ","})
			result = append(result, Token{Type: PP_WHITESPACE, Text: " "})
		}
		result = append(result, arg...)
	}
	return result
}

// stringify implements the # operator: argument tokens are rendered back
// to source text, internal whitespace runs collapse to a single space, and
// quotes/backslashes inside nested string/char literals are escaped so the
// result re-lexes as one string literal.
func (e *Expander) stringify(tokens []Token, loc SourceLoc) Token {
	var sb strings.Builder
	sb.WriteByte('"')

	lastWasSpace := true // suppresses a leading space
	for _, tok := range tokens {
		if tok.Type == PP_WHITESPACE || tok.Type == PP_NEWLINE {
			if !lastWasSpace {
				sb.WriteByte(' ')
				lastWasSpace = true
			}
			continue
		}
		lastWasSpace = false

		if tok.Type == PP_STRING || tok.Type == PP_CHAR_CONST {
			for _, c := range tok.Text {
				if c == '"' || c == '\\' {
					sb.WriteByte('\\')
				}
				sb.WriteRune(c)
			}
			continue
		}
		sb.WriteString(tok.Text)
	}

	str := strings.TrimSuffix(sb.String(), " ") + "\""
	return Token{Type: PP_STRING, Text: str, Loc: loc}
}

// handleTokenPasting handles the ## operator.
func (e *Expander) handleTokenPasting(tokens []Token) ([]Token, error) {
	var result []Token
	i := 0

	for i < len(tokens) {
		tok := tokens[i]

		// Look for ##
		if tok.Type == PP_HASHHASH {
			// Paste previous token with next token
			if len(result) == 0 {
				return nil, fmt.Errorf("## cannot appear at start of replacement list")
			}
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("## cannot appear at end of replacement list")
			}

			// Skip whitespace after ##
			nextIdx := i + 1
			for nextIdx < len(tokens) && tokens[nextIdx].Type == PP_WHITESPACE {
				nextIdx++
			}
			if nextIdx >= len(tokens) {
				return nil, fmt.Errorf("## cannot appear at end of replacement list")
			}

			// Get the tokens to paste
			leftTok := result[len(result)-1]
			rightTok := tokens[nextIdx]

			// Remove left token from result (will be replaced with pasted)
			result = result[:len(result)-1]

			// Handle placeholder tokens (empty)
			if leftTok.Type == PP_PLACEHOLDER {
				result = append(result, rightTok)
				i = nextIdx + 1
				continue
			}
			if rightTok.Type == PP_PLACEHOLDER {
				result = append(result, leftTok)
				i = nextIdx + 1
				continue
			}

			// Concatenate the token texts
			pastedText := leftTok.Text + rightTok.Text

			// Re-tokenize the result
			pastedTokens := retokenize(pastedText, leftTok.Loc)
			if len(pastedTokens) == 0 {
				// Empty result is a placeholder
				result = append(result, Token{Type: PP_PLACEHOLDER, Text: "", Loc: leftTok.Loc})
			} else {
				result = append(result, pastedTokens...)
			}

			i = nextIdx + 1
			continue
		}

		result = append(result, tok)
		i++
	}

	// Filter out placeholder tokens
	var filtered []Token
	for _, tok := range result {
		if tok.Type != PP_PLACEHOLDER {
			filtered = append(filtered, tok)
		}
	}

	return filtered, nil
}

// retokenize tokenizes a pasted string.
func retokenize(text string, loc SourceLoc) []Token {
	if text == "" {
		return nil
	}

	lex := NewLexer(text, loc.File)
	var tokens []Token
	for {
		tok := lex.NextToken()
		if tok.Type == PP_EOF || tok.Type == PP_NEWLINE {
			break
		}
		if tok.Type != PP_WHITESPACE {
			tok.Loc = loc
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// isPasteOp reports whether tok is the ## token-paste operator.
func isPasteOp(tok Token) bool {
	return tok.Type == PP_HASHHASH
}

// isStringifyHash reports whether tok is the # stringify operator as it
// can appear in a macro replacement list (either lexed as PP_HASH at the
// start of a line, or as a plain PP_PUNCTUATOR "#" mid-line).
func isStringifyHash(tok Token) bool {
	return tok.Type == PP_HASH || (tok.Type == PP_PUNCTUATOR && tok.Text == "#")
}

// trimWhitespace drops leading and trailing PP_WHITESPACE tokens.
func trimWhitespace(tokens []Token) []Token {
	// Trim leading
	start := 0
	for start < len(tokens) && tokens[start].Type == PP_WHITESPACE {
		start++
	}
	// Trim trailing
	end := len(tokens)
	for end > start && tokens[end-1].Type == PP_WHITESPACE {
		end--
	}
	if start >= end {
		return nil
	}
	return tokens[start:end]
}

// ExpandString lexes input from scratch and expands it, returning the
// re-rendered source text, so the caller need not manage tokens itself.
func (e *Expander) ExpandString(input string) (string, error) {
	lex := NewLexer(input, "<string>")
	tokens := lex.AllTokens()

	if len(tokens) > 0 && tokens[len(tokens)-1].Type == PP_EOF {
		tokens = tokens[:len(tokens)-1]
	}

	expanded, err := e.Expand(tokens)
	if err != nil {
		return "", err
	}

	return TokensToString(expanded), nil
}
