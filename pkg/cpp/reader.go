// reader.go normalizes raw source bytes before any directive-aware
// processing happens: line-ending normalization, BOM stripping,
// control-character and whitespace scrubbing, backslash-newline splicing,
// comment and raw-string-literal removal, asm(...) body scrubbing, and
// inline cppcheck-suppress extraction. Everything downstream (Includer,
// Enumerator, Selector) operates on the text this produces.
//
// Every operation that deletes a newline (a spliced continuation, a
// comment's interior newline, a raw string's embedded newline, an asm
// block's body) defers it rather than dropping it: a pending counter
// accumulates elided newlines and re-emits them right after the next real
// newline the scan reaches, so line numbers downstream still line up with
// the original file. If no further real newline ever arrives, the pending
// count is flushed at end of input.
package cpp

import (
	"strings"
	"unicode/utf8"
)

// Reader normalizes one file's source text.
type Reader struct{}

// NewReader creates a Reader.
func NewReader() *Reader { return &Reader{} }

// Read runs the full normalization pipeline over raw source bytes.
// settings and sink may both be nil; inline suppression registration and
// non-ASCII-byte reporting are simply skipped in that case.
func (r *Reader) Read(src []byte, filename string, settings *Settings, sink *Diagnostics) string {
	text := string(src)
	text = stripBOM(text)
	text = normalizeNewlines(text)
	text = scanNormalize(text, filename, settings, sink)
	text = collapseRedundantParens(text)
	text = spaceOutIfParens(text)
	return text
}

func stripBOM(s string) string {
	if strings.HasPrefix(s, string([]byte{0xEF, 0xBB, 0xBF})) {
		return s[3:]
	}
	if r, size := utf8.DecodeRuneInString(s); r == '\uFEFF' {
		return s[size:]
	}
	return s
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// scanNormalize is the single combined pass implementing control-char
// scrubbing, space dedup, backslash-newline splicing, comment removal,
// raw-string-literal conversion, and asm(...) scrubbing. It runs these
// together, rather than as separate string-rewrite passes, because the
// pending-newline counter has to survive across all of them: a splice
// immediately followed by a comment must still defer both elided newlines
// to the same re-emission point.
func scanNormalize(s string, filename string, settings *Settings, sink *Diagnostics) string {
	var out strings.Builder
	n := len(s)
	i := 0
	line := 1
	pending := 0
	atLineStart := true
	afterDirectiveHash := false
	lastWasSpace := false

	flushPending := func() {
		if pending > 0 {
			out.WriteString(strings.Repeat("\n", pending))
			pending = 0
		}
	}
	emitNewline := func() {
		out.WriteByte('\n')
		flushPending()
		atLineStart = true
		afterDirectiveHash = false
		lastWasSpace = false
	}
	emitByte := func(c byte) {
		out.WriteByte(c)
		if atLineStart && c == '#' {
			afterDirectiveHash = true
		} else {
			afterDirectiveHash = false
		}
		atLineStart = false
		lastWasSpace = false
	}
	emitSpace := func() {
		if atLineStart || afterDirectiveHash || lastWasSpace {
			return
		}
		out.WriteByte(' ')
		lastWasSpace = true
	}
	reportNonASCII := func() {
		if sink == nil {
			return
		}
		sink.Report(Diagnostic{
			Severity: SeverityError,
			ID:       "syntaxError",
			Message:  "non-ASCII byte outside string literal",
			File:     filename,
			Line:     line,
		})
	}
	registerSuppression := func(comment string) {
		if settings == nil || !settings.InlineSuppressions {
			return
		}
		id := extractSuppressionID(comment)
		if id != "" {
			_ = settings.AddSuppression(id, filename, line+1)
		}
	}

	for i < n {
		c := s[i]

		// #error/#warning directive lines pass through verbatim (modulo
		// splicing, which still collapses) since their message text may
		// legitimately contain "//" or "/*".
		if atLineStart && c == '#' && errorOrWarningWordAt(s, i) {
			j := i
			for j < n && s[j] != '\n' {
				if s[j] == '\\' {
					if end := spliceAt(s, j+1); end >= 0 {
						pending++
						line++
						j = end
						continue
					}
				}
				out.WriteByte(s[j])
				j++
			}
			i = j
			atLineStart = false
			afterDirectiveHash = false
			lastWasSpace = false
			continue
		}

		switch {
		case c == '\n':
			emitNewline()
			line++
			i++

		case c == '\\' && spliceAt(s, i+1) >= 0:
			end := spliceAt(s, i+1)
			pending++
			line++
			i = end

		case c == '/' && i+1 < n && s[i+1] == '/':
			lineEnd := strings.IndexByte(s[i:], '\n')
			var comment string
			if lineEnd < 0 {
				comment = s[i:]
				i = n
			} else {
				comment = s[i : i+lineEnd]
				i += lineEnd
			}
			registerSuppression(comment)
			emitSpace()

		case c == '/' && i+1 < n && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = n
				break
			}
			block := s[i : i+2+end+2]
			pending += strings.Count(block, "\n")
			line += strings.Count(block, "\n")
			i += 2 + end + 2
			emitSpace()

		case c == 'R' && isRawStringAt(s, i):
			consumed, replacement, newlines := readRawString(s, i)
			out.WriteString(replacement)
			pending += newlines
			line += newlines
			i += consumed
			atLineStart = false
			afterDirectiveHash = false
			lastWasSpace = false

		case c == '"':
			j := skipStringLiteral(s, i)
			out.WriteString(s[i:j])
			i = j
			atLineStart = false
			afterDirectiveHash = false
			lastWasSpace = false

		case c == '\'':
			j := skipCharLiteral(s, i)
			out.WriteString(s[i:j])
			i = j
			atLineStart = false
			afterDirectiveHash = false
			lastWasSpace = false

		case isAsmKeywordAt(s, i):
			consumed, newlines, ok := scrubAsmCall(s, i)
			if !ok {
				emitByte(c)
				i++
				break
			}
			out.WriteString("asm()")
			pending += newlines
			line += newlines
			i += consumed
			atLineStart = false
			afterDirectiveHash = false
			lastWasSpace = false

		case c >= 0x80:
			reportNonASCII()
			emitByte(c)
			i++

		case isControlOrSpace(c):
			emitSpace()
			i++

		default:
			emitByte(c)
			i++
		}
	}
	flushPending()
	return out.String()
}

func isControlOrSpace(c byte) bool {
	return c < 0x20 || c == 0x7f || c == ' '
}

// spliceAt reports the index just past a backslash-newline splice starting
// at a backslash already consumed, allowing optional trailing whitespace
// before the newline (a common compiler-compatibility extension). Returns
// -1 if position j is not the start of such a splice.
func spliceAt(s string, j int) int {
	k := j
	for k < len(s) && (s[k] == ' ' || s[k] == '\t') {
		k++
	}
	if k < len(s) && s[k] == '\n' {
		return k + 1
	}
	return -1
}

// errorOrWarningWordAt reports whether s[i] is a '#' beginning an
// "#error"/"#warning" directive (i is assumed to already be the first
// non-whitespace byte of its line).
func errorOrWarningWordAt(s string, i int) bool {
	rest := strings.TrimLeft(s[i+1:], " \t")
	word, _ := splitDirectiveWord(rest)
	return word == "error" || word == "warning"
}

func skipStringLiteral(s string, i int) int {
	j := i + 1
	for j < len(s) {
		if s[j] == '\\' && j+1 < len(s) {
			j += 2
			continue
		}
		if s[j] == '"' || s[j] == '\n' {
			j++
			break
		}
		j++
	}
	return j
}

func skipCharLiteral(s string, i int) int {
	j := i + 1
	for j < len(s) {
		if s[j] == '\\' && j+1 < len(s) {
			j += 2
			continue
		}
		if s[j] == '\'' || s[j] == '\n' {
			j++
			break
		}
		j++
	}
	return j
}

// extractSuppressionID finds the identifier following "cppcheck-suppress"
// in a // comment's text, or "" if the comment doesn't carry one.
func extractSuppressionID(comment string) string {
	const marker = "cppcheck-suppress"
	idx := strings.Index(comment, marker)
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(comment[idx+len(marker):])
	end := 0
	for end < len(rest) && isIdentByte(rest[end]) {
		end++
	}
	return rest[:end]
}

// isRawStringAt reports whether s[i:] starts a C++11 raw string literal:
// R"delim(...)delim" for some delimiter of zero or more non-paren,
// non-whitespace characters.
func isRawStringAt(s string, i int) bool {
	j := i + 1
	if j >= len(s) || s[j] != '"' {
		return false
	}
	j++
	for j < len(s) && s[j] != '(' {
		if s[j] == '"' || s[j] == '\\' || s[j] == ' ' || s[j] == '\t' || s[j] == '\n' {
			return false
		}
		j++
	}
	return j < len(s) && s[j] == '('
}

// readRawString converts the raw string literal starting at s[i] (s[i]
// must be 'R', already confirmed by isRawStringAt) into an ordinary quoted
// string: embedded newlines become "\n" escapes (and are counted so the
// caller can defer them), other control bytes become spaces, and existing
// quotes/backslashes are escaped. If no matching closing delimiter is
// found, consumed is 1 so the caller falls back to treating 'R' as an
// ordinary identifier byte.
func readRawString(s string, i int) (consumed int, replacement string, newlines int) {
	j := i + 2 // past 'R"'
	delimStart := j
	for j < len(s) && s[j] != '(' {
		j++
	}
	delim := s[delimStart:j]
	j++ // past '('
	contentStart := j
	closer := ")" + delim + "\""
	idx := strings.Index(s[j:], closer)
	if idx < 0 {
		return 1, "R", 0
	}
	content := s[contentStart : j+idx]

	var sb strings.Builder
	sb.WriteByte('"')
	for k := 0; k < len(content); k++ {
		switch c := content[k]; {
		case c == '\n':
			sb.WriteString(`\n`)
			newlines++
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c < 0x20:
			sb.WriteByte(' ')
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')

	end := j + idx + len(closer)
	return end - i, sb.String(), newlines
}

func isIdentContinueByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

// isAsmKeywordAt reports whether s[i:] starts a standalone "asm" keyword
// (not a longer identifier like "asmfoo").
func isAsmKeywordAt(s string, i int) bool {
	if !strings.HasPrefix(s[i:], "asm") {
		return false
	}
	if i > 0 && isIdentContinueByte(s[i-1]) {
		return false
	}
	end := i + 3
	return end >= len(s) || !isIdentContinueByte(s[end])
}

// scrubAsmCall elides the balanced-paren body of an "asm(...)",
// "asm (...)", or "asm __volatile(...)" construct, replacing the whole
// thing with "asm()" while the caller writes that replacement and counts
// the newlines this function reports as pending. Returns ok=false (and the
// "asm" keyword is then emitted as ordinary text) if no "(" follows, or the
// parens never balance before the input ends.
func scrubAsmCall(s string, i int) (consumed int, newlines int, ok bool) {
	j := i + 3
	for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
		j++
	}
	if strings.HasPrefix(s[j:], "__volatile") {
		j += len("__volatile")
		for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
			j++
		}
	}
	if j >= len(s) || s[j] != '(' {
		return 0, 0, false
	}

	depth := 0
	k := j
	for k < len(s) {
		switch s[k] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return k + 1 - i, newlines, true
			}
		case '\n':
			newlines++
		}
		k++
	}
	return 0, 0, false
}

// collapseRedundantParens repeatedly collapses "#if ((X))"-style doubled
// parens on conditional directive lines down to a single level, mirroring
// the original preprocessor's repeated single-level collapse rather than a
// full balanced strip (so "#if ((A)) && (B)" only simplifies its first
// pair, leaving "(B)" untouched).
func collapseRedundantParens(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !isCondDirective(trimmed) {
			continue
		}
		for strings.Contains(line, "((") {
			replaced := strings.Replace(line, "((", "(", 1)
			replaced = replaceMatchingDoubledClose(replaced)
			if replaced == line {
				break
			}
			line = replaced
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func replaceMatchingDoubledClose(line string) string {
	idx := strings.Index(line, "))")
	if idx < 0 {
		return line
	}
	return line[:idx] + ")" + line[idx+2:]
}

func isCondDirective(trimmed string) bool {
	if !strings.HasPrefix(trimmed, "#") {
		return false
	}
	word, _ := splitDirectiveWord(strings.TrimSpace(trimmed[1:]))
	return word == "if" || word == "elif"
}

// spaceOutIfParens inserts a space after "#if"/"#elif" when the directive
// is immediately followed by '(' AND that opening paren's matching close
// is the very last non-whitespace character of the line (i.e. the
// parenthesis wraps the entire condition). "#if(defined A) || defined(B)"
// is left alone since the first paren does not span to end of line.
func spaceOutIfParens(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = spaceOutLine(line)
	}
	return strings.Join(lines, "\n")
}

func spaceOutLine(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(trimmed)]

	var kw string
	switch {
	case strings.HasPrefix(trimmed, "#if("):
		kw = "#if"
	case strings.HasPrefix(trimmed, "#elif("):
		kw = "#elif"
	default:
		return line
	}

	rest := trimmed[len(kw):] // starts with '('
	end := strings.TrimRight(rest, " \t")
	if !strings.HasSuffix(end, ")") {
		return line
	}
	depth := 0
	for i := 0; i < len(end); i++ {
		switch end[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(end)-1 {
				return line
			}
		}
	}
	return indent + kw + " " + rest
}
