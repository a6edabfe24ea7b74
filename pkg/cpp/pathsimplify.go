// pathsimplify.go canonicalizes include-target paths so the Includer's
// already-seen set compares files by identity rather than by whichever
// spelling a particular #include happened to use: absolute vs. relative,
// forward vs. backslash separators, mixed case on case-insensitive
// filesystems, or a ".."-laden detour back to the same file.
package cpp

import (
	"path/filepath"
	"strings"
)

// CanonicalPath resolves path to an absolute form, simplifies any "."/".."
// segments, normalizes path separators to "/", and case-folds it, so two
// spellings of the same file compare equal regardless of how each
// #include wrote it.
func CanonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	abs = filepath.Clean(abs)
	abs = filepath.ToSlash(abs)
	return strings.ToLower(abs)
}
