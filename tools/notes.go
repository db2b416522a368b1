package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/studyagent/errors"
)

// maxNoteBytes caps how much of a note is handed back to the model.
const maxNoteBytes = 16 * 1024

// ReadNotesTool reads a study note below a fixed directory. It never writes
// and refuses paths that escape dir or match a hidden pattern.
type ReadNotesTool struct {
	dir    string
	hidden []string
}

func (t *ReadNotesTool) Name() string { return "read_notes" }
func (t *ReadNotesTool) Description() string {
	return "Read one of the learner's study notes. path is relative to the notes folder."
}
func (t *ReadNotesTool) Params() []Param { return []Param{{Name: "path", Type: TypeString}} }

func (t *ReadNotesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || strings.TrimSpace(path) == "" {
		return "", errors.New("missing or invalid 'path' argument")
	}

	rel, err := t.relative(path)
	if err != nil {
		return "", err
	}

	hidden, err := isPathRestricted(rel, t.hidden)
	if err != nil {
		return "", err
	}
	if hidden {
		return "", errors.New("access denied: note '%s' is hidden", path)
	}

	// Reads go through an os.Root so symlinks cannot lead out of dir.
	root, err := os.OpenRoot(t.dir)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open notes folder")
	}
	defer root.Close()
	f, err := root.Open(filepath.FromSlash(rel))
	if err != nil {
		return "", errors.Wrapf(err, "failed to read note '%s'", path)
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, maxNoteBytes+1))
	if err != nil {
		return "", errors.Wrapf(err, "failed to read note '%s'", path)
	}
	if len(content) > maxNoteBytes {
		return truncateRunes(content, maxNoteBytes) + fmt.Sprintf("\n[... truncated to %d bytes ...]", maxNoteBytes), nil
	}
	return string(content), nil
}

// truncateRunes cuts b to at most n bytes without splitting a UTF-8 sequence.
func truncateRunes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return string(b[:n])
}

// relative cleans path and checks it stays inside the notes directory.
func (t *ReadNotesTool) relative(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) {
		r, err := filepath.Rel(t.dir, clean)
		if err != nil {
			return "", errors.New("access denied: note '%s' is outside the notes folder", path)
		}
		clean = r
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("access denied: note '%s' is outside the notes folder", path)
	}
	return filepath.ToSlash(clean), nil
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.Match(pattern, path)
		if err != nil {
			return false, errors.Wrapf(err, "invalid glob pattern '%s'", pattern)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}
