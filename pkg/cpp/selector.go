// selector.go implements the per-configuration branch selection pass
// (getcode): given one Configuration, walk the already-included text and
// keep only the lines whose conditional branch is active for that
// configuration, blanking everything else while leaving #define/#undef
// and #file/#endfile lines in place so later stages can still see them.
package cpp

import "strings"

// Selector selects the code for one configuration out of enumerated text.
type Selector struct {
	eval *Evaluator
}

// NewSelector creates a Selector.
func NewSelector() *Selector {
	return &Selector{eval: NewEvaluator()}
}

type selFrame struct {
	parentActive bool
	active       bool
	anyActive    bool
	seenElse     bool
}

// GetCode returns the text of cfg's branches: #if/#ifdef/#ifndef/#elif/
// #else/#endif lines are blanked, non-taken branch bodies are blanked,
// #define/#undef lines are kept (and applied to vars, since later
// directives in the same configuration may depend on them), and every
// other line is passed through unchanged.
func (s *Selector) GetCode(text string, cfg string) (string, error) {
	vars := ParseConfigTokens(cfg)
	lines := strings.Split(text, "\n")
	out := make([]string, len(lines))

	var stack []selFrame
	active := func() bool {
		for _, f := range stack {
			if !f.active {
				return false
			}
		}
		return true
	}

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, "#") {
			if active() {
				out[i] = raw
			}
			continue
		}

		rest := strings.TrimSpace(line[1:])
		word, arg := splitDirectiveWord(rest)

		switch word {
		case "if", "ifdef", "ifndef":
			parentActive := active()
			var result bool
			var err error
			switch word {
			case "ifdef":
				_, defined := vars[arg]
				result = defined
			case "ifndef":
				_, defined := vars[arg]
				result = !defined
			default:
				result, err = s.eval.MatchCfgDef(arg, vars)
				if err != nil {
					result = false
				}
			}
			stack = append(stack, selFrame{
				parentActive: parentActive,
				active:       parentActive && result,
				anyActive:    parentActive && result,
			})

		case "elif":
			if len(stack) == 0 {
				return "", &DirectiveError{Line: i + 1, Msg: "#elif without matching #if"}
			}
			f := &stack[len(stack)-1]
			if f.seenElse {
				return "", &DirectiveError{Line: i + 1, Msg: "#elif after #else"}
			}
			if !f.parentActive || f.anyActive {
				f.active = false
			} else {
				result, err := s.eval.MatchCfgDef(arg, vars)
				if err != nil {
					result = false
				}
				f.active = result
				if result {
					f.anyActive = true
				}
			}

		case "else":
			if len(stack) == 0 {
				return "", &DirectiveError{Line: i + 1, Msg: "#else without matching #if"}
			}
			f := &stack[len(stack)-1]
			if f.seenElse {
				return "", &DirectiveError{Line: i + 1, Msg: "duplicate #else"}
			}
			f.seenElse = true
			f.active = f.parentActive && !f.anyActive
			if f.active {
				f.anyActive = true
			}

		case "endif":
			if len(stack) == 0 {
				return "", &DirectiveError{Line: i + 1, Msg: "#endif without matching #if"}
			}
			stack = stack[:len(stack)-1]

		case "define":
			if active() {
				out[i] = raw
				applyDefine(vars, arg)
			}

		case "undef":
			if active() {
				out[i] = raw
				delete(vars, strings.TrimSpace(arg))
			}

		case "file", "endfile":
			out[i] = raw

		default:
			if active() {
				out[i] = raw
			}
		}
	}

	if len(stack) > 0 {
		return "", &DirectiveError{Line: len(lines), Msg: "unterminated conditional directive"}
	}

	return strings.Join(out, "\n"), nil
}

// applyDefine keeps the Selector's working vars map in sync with #define
// lines it passes through, so a later #ifdef in the same configuration
// sees macros defined earlier in that same pass.
func applyDefine(vars map[string]string, arg string) {
	name, value := splitDirectiveWord(arg)
	if name == "" {
		return
	}
	vars[name] = value
}

// DirectiveError reports malformed conditional-directive nesting.
type DirectiveError struct {
	Line int
	Msg  string
}

func (e *DirectiveError) Error() string {
	return e.Msg
}
