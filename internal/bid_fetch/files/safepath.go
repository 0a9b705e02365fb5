// Package files manages the downloads directory tree: the attachments, json and reports
// directories plus one directory per search.
package files

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode"
)

var (
	ErrInvalidFilename   = errors.New("invalid file name")
	ErrInvalidPath       = errors.New("invalid file path")
	ErrInvalidFileType   = errors.New("invalid file type")
	ErrNotFound          = errors.New("file not found")
	ErrTooLarge          = errors.New("file too large")
	ErrNothingToDownload = errors.New("nothing to download")
)

// SanitizeFilename keeps the base name and drops every rune that is not a letter, digit,
// '.', '_', '-' or space. Leading and trailing spaces are trimmed.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// SafePath resolves name inside base. Names carrying a directory part are rejected with
// ErrInvalidPath; otherwise the name is sanitized and an empty result, "." or "..", or a
// path that would resolve outside base is rejected.
func SafePath(base, name string) (string, error) {
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", ErrInvalidPath
	}
	safe := SanitizeFilename(name)
	if safe == "" || strings.Trim(safe, ".") == "" {
		return "", ErrInvalidFilename
	}

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", ErrInvalidPath
	}
	full := filepath.Join(absBase, safe)
	rel, err := filepath.Rel(absBase, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	if resolved, err := filepath.EvalSymlinks(full); err == nil {
		if realBase, err := filepath.EvalSymlinks(absBase); err == nil {
			if r, err := filepath.Rel(realBase, resolved); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
				return "", ErrInvalidPath
			}
		}
	}
	return full, nil
}
