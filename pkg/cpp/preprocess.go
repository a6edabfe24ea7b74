// preprocess.go ties the five collaborators together into the two
// operations a caller actually wants: expand everything reachable from a
// root file and select one configuration's code (Preprocessor, the
// familiar single-shot API), or split that into the Enumerate-then-Select
// phases a static analyzer needs to run its checks across every
// configuration (the package-level Preprocess/GetCode functions).
package cpp

import (
	"fmt"
	"os"
	"strings"
)

// PreprocessorOptions configures a single-configuration preprocessing run.
type PreprocessorOptions struct {
	Defines      []string
	Undefines    []string
	IncludePaths []string
	SystemPaths  []string
	LineMarkers  bool
	Settings     *Settings
}

// Preprocessor drives the Reader/Includer/Selector/Expander pipeline for
// one chosen configuration, built from PreprocessorOptions.Defines and
// Undefines plus whatever the source itself #defines along the way.
type Preprocessor struct {
	opts       PreprocessorOptions
	resolver   *IncludeResolver
	includer   *Includer
	selector   *Selector
	sink       *Diagnostics
	lastMacros *MacroTable
}

// NewPreprocessor creates a Preprocessor for one run, with its own
// IncludeResolver and therefore its own already-included set, matching a
// single compilation unit's semantics.
func NewPreprocessor(opts PreprocessorOptions) *Preprocessor {
	sink := NewDiagnostics(nil)
	inc := NewIncluder(opts.IncludePaths, opts.SystemPaths, sink)
	inc.Settings = opts.Settings
	return &Preprocessor{
		opts:     opts,
		resolver: inc.Resolver,
		includer: inc,
		selector: NewSelector(),
		sink:     sink,
	}
}

// SetLineMarkers toggles GCC-style "# <line> \"<file>\"" markers at file
// transition points in the output.
func (pp *Preprocessor) SetLineMarkers(enabled bool) { pp.opts.LineMarkers = enabled }

// Diagnostics returns the sink that accumulated missing-include and other
// recoverable findings during the most recent preprocessing run.
func (pp *Preprocessor) Diagnostics() *Diagnostics { return pp.sink }

// GetMacros returns the object-like macro values visible at the end of the
// most recent PreprocessFile/PreprocessString call, keyed by name.
func (pp *Preprocessor) GetMacros() map[string]string {
	out := make(map[string]string)
	if pp.lastMacros == nil {
		return out
	}
	for _, name := range pp.lastMacros.Names() {
		m := pp.lastMacros.Lookup(name)
		if m == nil || m.Kind != MacroObject {
			continue
		}
		out[name] = TokensToString(m.Replacement)
	}
	return out
}

// PreprocessFile reads filename and preprocesses it.
func (pp *Preprocessor) PreprocessFile(filename string) (string, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	return pp.run(src, filename)
}

// PreprocessString preprocesses in-memory source as if read from filename.
func (pp *Preprocessor) PreprocessString(source, filename string) (string, error) {
	return pp.run([]byte(source), filename)
}

func (pp *Preprocessor) run(src []byte, filename string) (string, error) {
	spliced, err := pp.includer.ExpandString(src, filename)
	if err != nil {
		return "", err
	}

	vars := cmdlineVars(pp.opts.Defines, pp.opts.Undefines)
	cfg := SortedConfigTokens(configTokensFromVars(vars))

	selected, err := pp.selector.GetCode(spliced, cfg)
	if err != nil {
		return "", err
	}

	macros, err := pp.seedMacros(vars, filename)
	if err != nil {
		return "", err
	}
	pp.lastMacros = macros

	return expandSelected(selected, filename, macros, pp.opts.LineMarkers)
}

func (pp *Preprocessor) seedMacros(vars map[string]string, filename string) (*MacroTable, error) {
	mt := NewMacroTable()
	for name, value := range vars {
		if err := mt.DefineSimple(name, value, SourceLoc{File: filename}); err != nil {
			return nil, err
		}
	}
	return mt, nil
}

// cmdlineVars applies Defines then Undefines, the order a compiler's -D/-U
// flags are applied on its command line.
func cmdlineVars(defines, undefines []string) map[string]string {
	vars := make(map[string]string)
	for _, d := range defines {
		name, value := splitDefineFlag(d)
		if name == "" {
			continue
		}
		vars[name] = value
	}
	for _, u := range undefines {
		delete(vars, u)
	}
	return vars
}

func splitDefineFlag(d string) (name, value string) {
	if idx := strings.IndexByte(d, '='); idx >= 0 {
		return d[:idx], d[idx+1:]
	}
	return d, ""
}

func configTokensFromVars(vars map[string]string) []string {
	tokens := make([]string, 0, len(vars))
	for name, value := range vars {
		if value == "" {
			tokens = append(tokens, name)
		} else {
			tokens = append(tokens, name+"="+value)
		}
	}
	return tokens
}

// expandSelected walks the Selector's output, applying #define/#undef to a
// live MacroTable, expanding macro uses in ordinary code lines, honoring
// #error, and tracking #file/#endfile so __FILE__/__LINE__ and LineMarkers
// output see the right originating file. A "#pragma asm" ... "#pragma
// endasm" block has its body erased (newlines preserved, so downstream line
// numbers stay correct), since raw assembly has no business reaching the
// macro expander; if the endasm trailer has the "(var = value)" shape, the
// block is replaced with a synthesized "asm(var);" call.
func expandSelected(text, rootFile string, macros *MacroTable, lineMarkers bool) (string, error) {
	type fileFrame struct {
		file string
		line int
	}
	curFile := rootFile
	curLine := 1
	var fstack []fileFrame
	inAsmBlock := false

	var out strings.Builder
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		raw := lines[i]
		trimmed := strings.TrimSpace(raw)

		if strings.HasPrefix(trimmed, "#") {
			rest := strings.TrimSpace(trimmed[1:])
			word, arg := splitDirectiveWord(rest)

			switch word {
			case "file":
				fstack = append(fstack, fileFrame{file: curFile, line: curLine})
				curFile = unquoteFilename(arg)
				curLine = 1
				if lineMarkers {
					fmt.Fprintf(&out, "# %d %q\n", curLine, curFile)
				}
				continue

			case "endfile":
				if len(fstack) > 0 {
					top := fstack[len(fstack)-1]
					fstack = fstack[:len(fstack)-1]
					curFile, curLine = top.file, top.line
					if lineMarkers {
						fmt.Fprintf(&out, "# %d %q\n", curLine, curFile)
					}
				}
				continue

			case "define":
				name, isFunc, params, variadic, body, perr := ParseDefineDirective(arg, SourceLoc{File: curFile, Line: curLine})
				if perr == nil {
					if isFunc {
						macros.DefineFunction(name, params, variadic, body, SourceLoc{File: curFile, Line: curLine})
					} else {
						macros.DefineObject(name, body, SourceLoc{File: curFile, Line: curLine})
					}
				}
				curLine++
				continue

			case "undef":
				macros.Undef(strings.TrimSpace(arg))
				curLine++
				continue

			case "error":
				return "", fmt.Errorf("%s", arg)

			case "pragma":
				if strings.TrimSpace(arg) == "asm" {
					inAsmBlock = true
					out.WriteByte('\n')
					curLine++
					continue
				}
				if strings.HasPrefix(strings.TrimSpace(arg), "endasm") {
					inAsmBlock = false
				}
				if varName, ok := ParsePragmaAsm(arg); ok {
					fmt.Fprintf(&out, "asm(%s);\n", varName)
				}
				curLine++
				continue

			default:
				curLine++
				continue
			}
		}

		if inAsmBlock {
			out.WriteByte('\n')
			curLine++
			continue
		}

		if trimmed == "" {
			out.WriteByte('\n')
			curLine++
			continue
		}

		stmt, consumed := mergeLogicalStatement(lines, i)
		expanded, err := expandLine(stmt, curFile, curLine, macros)
		if err != nil {
			return "", err
		}
		out.WriteString(expanded)
		out.WriteByte('\n')
		curLine += consumed
		i += consumed - 1
	}

	return out.String(), nil
}

// mergeLogicalStatement groups lines[i] with however many following
// physical lines are needed to close every paren it opens, so a
// function-macro call spanning several physical lines (a common style for
// invocations with many arguments) is tokenized and expanded as one
// statement rather than failing to match on each incomplete fragment.
// It stops early at a blank line or a directive line, since neither can be
// part of the same statement. The merged lines are joined with spaces and
// one newline per extra line is appended after the statement, so the
// output keeps the input's line count.
func mergeLogicalStatement(lines []string, i int) (joined string, consumed int) {
	stmtLines := []string{lines[i]}
	depth := lineParenDelta(lines[i])
	j := i
	for depth > 0 && j+1 < len(lines) {
		next := lines[j+1]
		nextTrimmed := strings.TrimSpace(next)
		if nextTrimmed == "" || strings.HasPrefix(nextTrimmed, "#") {
			break
		}
		stmtLines = append(stmtLines, next)
		depth += lineParenDelta(next)
		j++
	}
	return strings.Join(stmtLines, " ") + strings.Repeat("\n", len(stmtLines)-1), len(stmtLines)
}

func lineParenDelta(line string) int {
	lex := NewLexer(line, "")
	depth := 0
	for _, tok := range lex.AllTokens() {
		if tok.Type != PP_PUNCTUATOR {
			continue
		}
		switch tok.Text {
		case "(":
			depth++
		case ")":
			depth--
		}
	}
	return depth
}

func expandLine(line, file string, lineNo int, macros *MacroTable) (string, error) {
	lex := NewLexer(line, file)
	toks := lex.AllTokens()
	if len(toks) > 0 && toks[len(toks)-1].Type == PP_EOF {
		toks = toks[:len(toks)-1]
	}
	expander := NewExpander(macros)
	expanded, err := expander.ExpandWithLoc(toks, SourceLoc{File: file, Line: lineNo})
	if err != nil {
		return "", err
	}
	return TokensToString(expanded), nil
}

func unquoteFilename(arg string) string {
	arg = strings.TrimSpace(arg)
	if len(arg) >= 2 && arg[0] == '"' && arg[len(arg)-1] == '"' {
		return arg[1 : len(arg)-1]
	}
	return arg
}

// Preprocess runs the Reader/Includer/Enumerator stages for source read
// from filename, returning the spliced, #file-annotated text along with
// every configuration the Enumerator found in it and the sink that
// accumulated diagnostics along the way. A caller (typically a static
// analyzer driving multiple passes) then calls GetCode once per
// configuration it cares about. A missing header is not fatal here: the
// Includer already reported a "missingInclude" style diagnostic to the
// returned sink and skipped the inclusion, leaving a blank line in its
// place, so this still returns the rest of the splice and its
// configurations.
func Preprocess(src []byte, filename string, includePaths []string) (string, []string, *Diagnostics, error) {
	sink := NewDiagnostics(nil)
	inc := NewIncluder(includePaths, nil, sink)
	spliced, err := inc.ExpandString(src, filename)
	if err != nil {
		return "", nil, sink, err
	}
	return spliced, GetConfigurations(spliced), sink, nil
}

// GetCode selects cfg's branches out of already-spliced text, expands
// macros over the result, and reports diagnostics for #error/#warning to
// sink instead of aborting, since a static analyzer driving many
// configurations wants to keep going after a bad one.
func GetCode(text string, cfg string, filename string, settings *Settings, sink *Diagnostics) (string, error) {
	sel := NewSelector()
	selected, err := sel.GetCode(text, cfg)
	if err != nil {
		return "", err
	}

	macros := NewMacroTable()
	if settings != nil {
		seeded, err := settings.NewMacroTableFromDefines()
		if err != nil {
			return "", err
		}
		macros = seeded
	}

	return expandSelectedReporting(selected, filename, macros, sink)
}

// expandSelectedReporting is expandSelected with LineMarkers off and
// #error/#warning routed to sink rather than aborting the run.
func expandSelectedReporting(text, rootFile string, macros *MacroTable, sink *Diagnostics) (string, error) {
	type fileFrame struct {
		file string
		line int
	}
	curFile := rootFile
	curLine := 1
	var fstack []fileFrame
	inAsmBlock := false

	var out strings.Builder
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		raw := lines[i]
		trimmed := strings.TrimSpace(raw)

		if strings.HasPrefix(trimmed, "#") {
			rest := strings.TrimSpace(trimmed[1:])
			word, arg := splitDirectiveWord(rest)

			switch word {
			case "file":
				fstack = append(fstack, fileFrame{file: curFile, line: curLine})
				curFile = unquoteFilename(arg)
				curLine = 1
				continue
			case "endfile":
				if len(fstack) > 0 {
					top := fstack[len(fstack)-1]
					fstack = fstack[:len(fstack)-1]
					curFile, curLine = top.file, top.line
				}
				continue
			case "define":
				name, isFunc, params, variadic, body, perr := ParseDefineDirective(arg, SourceLoc{File: curFile, Line: curLine})
				if perr == nil {
					if isFunc {
						macros.DefineFunction(name, params, variadic, body, SourceLoc{File: curFile, Line: curLine})
					} else {
						macros.DefineObject(name, body, SourceLoc{File: curFile, Line: curLine})
					}
				}
				curLine++
				continue
			case "undef":
				macros.Undef(strings.TrimSpace(arg))
				curLine++
				continue
			case "error":
				if sink != nil {
					sink.Report(Diagnostic{Severity: SeverityError, ID: "preprocessorErrorDirective", Message: arg, File: curFile, Line: curLine})
				}
				curLine++
				continue
			case "warning":
				if sink != nil {
					sink.Report(Diagnostic{Severity: SeverityWarning, ID: "preprocessorWarningDirective", Message: arg, File: curFile, Line: curLine})
				}
				curLine++
				continue
			case "pragma":
				if strings.TrimSpace(arg) == "asm" {
					inAsmBlock = true
					out.WriteByte('\n')
					curLine++
					continue
				}
				if strings.HasPrefix(strings.TrimSpace(arg), "endasm") {
					inAsmBlock = false
				}
				if varName, ok := ParsePragmaAsm(arg); ok {
					fmt.Fprintf(&out, "asm(%s);\n", varName)
				}
				curLine++
				continue
			default:
				curLine++
				continue
			}
		}

		if inAsmBlock {
			out.WriteByte('\n')
			curLine++
			continue
		}

		if trimmed == "" {
			out.WriteByte('\n')
			curLine++
			continue
		}

		stmt, consumed := mergeLogicalStatement(lines, i)
		expanded, err := expandLine(stmt, curFile, curLine, macros)
		if err != nil {
			return "", err
		}
		out.WriteString(expanded)
		out.WriteByte('\n')
		curLine += consumed
		i += consumed - 1
	}

	return out.String(), nil
}
