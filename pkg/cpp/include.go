// include.go handles include path resolution and the recursive inlining
// of #include directives: the Includer walks normalized source text,
// resolves each #include, recursively normalizes and inlines the target
// file's contents, and wraps it in #file/#endfile markers so later stages
// (Enumerator, Selector) can tell which physical file produced which line.
package cpp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IncludeKind distinguishes between <file> and "file" includes.
type IncludeKind int

const (
	IncludeQuoted IncludeKind = iota
	IncludeAngled
)

// IncludeResolver resolves #include targets to filesystem paths and tracks
// which canonical paths have already been spliced in, so a repeat
// #include — whether an actual cycle or an ordinary unguarded diamond
// re-include — is skipped silently rather than re-inlined or rejected.
type IncludeResolver struct {
	UserPaths   []string
	SystemPaths []string
	CurrentDir  string
	openStack   []string
	seen        map[string]bool
}

// NewIncludeResolver creates a new include resolver.
func NewIncludeResolver() *IncludeResolver {
	return &IncludeResolver{seen: make(map[string]bool)}
}

func (r *IncludeResolver) AddUserPath(path string)   { r.UserPaths = append(r.UserPaths, path) }
func (r *IncludeResolver) AddSystemPath(path string) { r.SystemPaths = append(r.SystemPaths, path) }

// SetCurrentFile sets the current file being processed (for relative includes).
func (r *IncludeResolver) SetCurrentFile(filename string) {
	r.CurrentDir = filepath.Dir(filename)
}

// Resolve attempts to find the include file, searching the current file's
// directory (for quoted includes only), then -I paths, then system paths.
func (r *IncludeResolver) Resolve(filename string, kind IncludeKind) (string, error) {
	var searchPaths []string
	if kind == IncludeQuoted && r.CurrentDir != "" {
		searchPaths = append(searchPaths, r.CurrentDir)
	}
	searchPaths = append(searchPaths, r.UserPaths...)
	searchPaths = append(searchPaths, r.SystemPaths...)

	for _, dir := range searchPaths {
		fullPath := filepath.Join(dir, filename)
		if _, err := os.Stat(fullPath); err == nil {
			absPath, err := filepath.Abs(fullPath)
			if err != nil {
				absPath = fullPath
			}
			return absPath, nil
		}
	}
	return "", &IncludeError{Filename: filename, Kind: kind}
}

// PushFile pushes path onto the stack of currently-open files, tracked so
// relative includes resolve against the right directory and so a
// pathologically deep (but acyclic) include chain is still bounded. It no
// longer detects cycles itself: AlreadyIncluded, consulted before a file is
// ever opened, is what breaks cycles, per the always-seen canonical-path
// set described below.
func (r *IncludeResolver) PushFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	if len(r.openStack) >= MaxIncludeDepth {
		return fmt.Errorf("include depth exceeds %d, aborting at %s", MaxIncludeDepth, absPath)
	}
	r.openStack = append(r.openStack, absPath)
	return nil
}

// PopFile removes the current file from the stack of open files.
func (r *IncludeResolver) PopFile() {
	if len(r.openStack) > 0 {
		r.openStack = r.openStack[:len(r.openStack)-1]
	}
}

func (r *IncludeResolver) IncludeStack() []string { return r.openStack }
func (r *IncludeResolver) IncludeDepth() int      { return len(r.openStack) }

// MarkIncluded records path's canonical form in the persistent already-seen
// set, so any later #include resolving to the same file — through a
// "#pragma once" guard, an ordinary unguarded diamond re-include, or an
// a.h->b.h->a.h cycle — is recognized by AlreadyIncluded and skipped.
func (r *IncludeResolver) MarkIncluded(path string) {
	r.seen[CanonicalPath(path)] = true
}

// AlreadyIncluded reports whether path's canonical form has already been
// spliced into the output once before.
func (r *IncludeResolver) AlreadyIncluded(path string) bool {
	return r.seen[CanonicalPath(path)]
}

// MaxIncludeDepth caps include nesting, matching the original's recursion guard.
const MaxIncludeDepth = 200

// IncludeError indicates that an include file was not found.
type IncludeError struct {
	Filename string
	Kind     IncludeKind
}

func (e *IncludeError) Error() string {
	kindStr := "quoted"
	if e.Kind == IncludeAngled {
		kindStr = "angled"
	}
	return "include file not found: " + e.Filename + " (" + kindStr + ")"
}

// FileOpener abstracts reading an included file's raw bytes, letting
// callers substitute an in-memory filesystem in tests.
type FileOpener interface {
	ReadFile(path string) ([]byte, error)
}

type osFileOpener struct{}

func (osFileOpener) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// Includer recursively inlines #include directives.
type Includer struct {
	Resolver *IncludeResolver
	Reader   *Reader
	Opener   FileOpener
	Sink     *Diagnostics
	Settings *Settings
}

// NewIncluder creates an Includer with the given search paths.
func NewIncluder(userPaths, systemPaths []string, sink *Diagnostics) *Includer {
	r := NewIncludeResolver()
	r.UserPaths = userPaths
	r.SystemPaths = systemPaths
	return &Includer{Resolver: r, Reader: NewReader(), Opener: osFileOpener{}, Sink: sink}
}

// Expand reads filename, normalizes it via Reader, and recursively inlines
// every #include it finds, splicing in "#file \"path\"" / "#endfile"
// markers around each inlined body.
func (inc *Includer) Expand(filename string) (string, error) {
	src, err := inc.Opener.ReadFile(filename)
	if err != nil {
		return "", err
	}
	return inc.expandSource(src, filename)
}

// ExpandString is the entry point for already-in-memory source (used by
// Preprocess/PreprocessString, which never touch the filesystem for the
// root file).
func (inc *Includer) ExpandString(src []byte, filename string) (string, error) {
	return inc.expandSource(src, filename)
}

func (inc *Includer) expandSource(src []byte, filename string) (string, error) {
	if err := inc.Resolver.PushFile(filename); err != nil {
		return "", err
	}
	defer inc.Resolver.PopFile()

	prevDir := inc.Resolver.CurrentDir
	inc.Resolver.SetCurrentFile(filename)
	defer func() { inc.Resolver.CurrentDir = prevDir }()

	text := inc.Reader.Read(src, filename, inc.Settings, inc.Sink)
	lines := strings.Split(text, "\n")

	var out strings.Builder
	for lineNo, raw := range lines {
		trimmed := strings.TrimSpace(raw)
		name, kind, isInclude := parseIncludeLine(trimmed)
		if !isInclude {
			out.WriteString(raw)
			if lineNo != len(lines)-1 {
				out.WriteByte('\n')
			}
			continue
		}

		path, err := inc.Resolver.Resolve(name, kind)
		if err != nil {
			if inc.Sink != nil {
				inc.Sink.Report(Diagnostic{
					Severity: SeverityStyle,
					ID:       "missingInclude",
					Message:  fmt.Sprintf("include file %q not found", name),
					File:     filename,
					Line:     lineNo + 1,
				})
			}
			out.WriteByte('\n')
			continue
		}

		if inc.Resolver.AlreadyIncluded(path) {
			out.WriteByte('\n')
			continue
		}
		inc.Resolver.MarkIncluded(path)

		childSrc, err := inc.Opener.ReadFile(path)
		if err != nil {
			return "", err
		}

		body, err := inc.expandChild(childSrc, path)
		if err != nil {
			return "", err
		}

		out.WriteString(fmt.Sprintf("#file %q\n", path))
		out.WriteString(body)
		out.WriteString("\n#endfile\n")
	}

	return out.String(), nil
}

// expandChild inlines one included file. "#pragma once" is recognized and
// dropped from the output, but no longer drives deduplication itself: by
// the time expandChild runs, path has already been marked included by its
// caller, so the canonical-path seen-set is what prevents a second splice,
// whether or not the file carries the pragma.
func (inc *Includer) expandChild(src []byte, path string) (string, error) {
	if err := inc.Resolver.PushFile(path); err != nil {
		return "", err
	}
	defer inc.Resolver.PopFile()

	prevDir := inc.Resolver.CurrentDir
	inc.Resolver.SetCurrentFile(path)
	defer func() { inc.Resolver.CurrentDir = prevDir }()

	text := inc.Reader.Read(src, path, inc.Settings, inc.Sink)
	lines := strings.Split(text, "\n")

	var out strings.Builder
	for lineNo, raw := range lines {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "#pragma once" {
			out.WriteByte('\n')
			continue
		}

		name, kind, isInclude := parseIncludeLine(trimmed)
		if !isInclude {
			out.WriteString(raw)
			if lineNo != len(lines)-1 {
				out.WriteByte('\n')
			}
			continue
		}

		childPath, err := inc.Resolver.Resolve(name, kind)
		if err != nil {
			if inc.Sink != nil {
				inc.Sink.Report(Diagnostic{
					Severity: SeverityStyle,
					ID:       "missingInclude",
					Message:  fmt.Sprintf("include file %q not found", name),
					File:     path,
					Line:     lineNo + 1,
				})
			}
			out.WriteByte('\n')
			continue
		}
		if inc.Resolver.AlreadyIncluded(childPath) {
			out.WriteByte('\n')
			continue
		}
		inc.Resolver.MarkIncluded(childPath)

		grandchildSrc, err := inc.Opener.ReadFile(childPath)
		if err != nil {
			return "", err
		}
		body, err := inc.expandChild(grandchildSrc, childPath)
		if err != nil {
			return "", err
		}
		out.WriteString(fmt.Sprintf("#file %q\n", childPath))
		out.WriteString(body)
		out.WriteString("\n#endfile\n")
	}

	return out.String(), nil
}

// parseIncludeLine recognizes "#include \"name\"" and "#include <name>".
func parseIncludeLine(trimmed string) (name string, kind IncludeKind, ok bool) {
	if !strings.HasPrefix(trimmed, "#") {
		return "", 0, false
	}
	rest := strings.TrimSpace(trimmed[1:])
	word, arg := splitDirectiveWord(rest)
	if word != "include" {
		return "", 0, false
	}
	arg = strings.TrimSpace(arg)
	if len(arg) >= 2 && arg[0] == '"' {
		if end := strings.IndexByte(arg[1:], '"'); end >= 0 {
			return arg[1 : end+1], IncludeQuoted, true
		}
	}
	if len(arg) >= 2 && arg[0] == '<' {
		if end := strings.IndexByte(arg, '>'); end >= 0 {
			return arg[1:end], IncludeAngled, true
		}
	}
	return "", 0, false
}
