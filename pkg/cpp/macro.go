// macro.go defines the macro table consulted by the Expander (expand.go).
package cpp

import "fmt"

// MacroKind distinguishes the three shapes of macro the Expander handles.
type MacroKind int

const (
	MacroObject MacroKind = iota
	MacroFunction
	MacroBuiltin
)

// Macro is one entry of a MacroTable.
type Macro struct {
	Name        string
	Kind        MacroKind
	Params      []string
	IsVariadic  bool
	Replacement []Token
	BuiltinFunc func(SourceLoc) []Token
	Loc         SourceLoc
}

// MacroTable holds every macro currently defined, in the richer Macro shape
// the Expander needs. The Evaluator does not use it; it works from a
// name->value string map instead.
type MacroTable struct {
	macros map[string]*Macro
}

// NewMacroTable creates a table pre-seeded with the builtins every
// translation unit sees (__FILE__, __LINE__, __STDC__, __STDC_VERSION__).
func NewMacroTable() *MacroTable {
	mt := &MacroTable{macros: make(map[string]*Macro)}
	mt.macros["__FILE__"] = &Macro{Name: "__FILE__", Kind: MacroBuiltin}
	mt.macros["__LINE__"] = &Macro{Name: "__LINE__", Kind: MacroBuiltin}
	mt.macros["__STDC__"] = &Macro{
		Name: "__STDC__", Kind: MacroBuiltin,
		BuiltinFunc: func(loc SourceLoc) []Token {
			return []Token{{Type: PP_NUMBER, Text: "1", Loc: loc}}
		},
	}
	mt.macros["__STDC_VERSION__"] = &Macro{
		Name: "__STDC_VERSION__", Kind: MacroBuiltin,
		BuiltinFunc: func(loc SourceLoc) []Token {
			return []Token{{Type: PP_NUMBER, Text: "201112L", Loc: loc}}
		},
	}
	return mt
}

// DefineSimple defines (or redefines) an object-like macro from a raw
// value string, e.g. from a command-line -DNAME=value.
func (mt *MacroTable) DefineSimple(name, value string, loc SourceLoc) error {
	lex := NewLexer(value, loc.File)
	var tokens []Token
	for {
		tok := lex.NextToken()
		if tok.Type == PP_EOF || tok.Type == PP_NEWLINE {
			break
		}
		if tok.Type != PP_WHITESPACE {
			tokens = append(tokens, tok)
		}
	}
	return mt.DefineObject(name, tokens, loc)
}

// DefineObject defines an object-like macro from pre-tokenized replacement text.
func (mt *MacroTable) DefineObject(name string, bodyTokens []Token, loc SourceLoc) error {
	if !IsIdentifier(name) {
		return fmt.Errorf("invalid macro name %q", name)
	}
	mt.macros[name] = &Macro{
		Name:        name,
		Kind:        MacroObject,
		Replacement: bodyTokens,
		Loc:         loc,
	}
	return nil
}

// DefineFunction defines a function-like macro.
func (mt *MacroTable) DefineFunction(name string, params []string, variadic bool, bodyTokens []Token, loc SourceLoc) error {
	if !IsIdentifier(name) {
		return fmt.Errorf("invalid macro name %q", name)
	}
	mt.macros[name] = &Macro{
		Name:        name,
		Kind:        MacroFunction,
		Params:      params,
		IsVariadic:  variadic,
		Replacement: bodyTokens,
		Loc:         loc,
	}
	return nil
}

// Undef removes a macro definition. Undefining an unknown macro is not an error.
func (mt *MacroTable) Undef(name string) {
	delete(mt.macros, name)
}

// Lookup returns the macro named name, or nil if it is not defined.
func (mt *MacroTable) Lookup(name string) *Macro {
	return mt.macros[name]
}

// IsDefined reports whether name has a current definition.
func (mt *MacroTable) IsDefined(name string) bool {
	return mt.macros[name] != nil
}

// Names returns the currently defined macro names, used by
// Preprocessor.GetMacros.
func (mt *MacroTable) Names() []string {
	names := make([]string, 0, len(mt.macros))
	for name := range mt.macros {
		names = append(names, name)
	}
	return names
}

// GetFileToken renders the current __FILE__ expansion.
func (mt *MacroTable) GetFileToken(loc SourceLoc) []Token {
	return []Token{{Type: PP_STRING, Text: `"` + loc.File + `"`, Loc: loc}}
}

// GetLineToken renders the current __LINE__ expansion.
func (mt *MacroTable) GetLineToken(loc SourceLoc) []Token {
	return []Token{{Type: PP_NUMBER, Text: fmt.Sprintf("%d", loc.Line), Loc: loc}}
}
