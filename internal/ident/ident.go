package ident

import (
	"crypto/rand"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Record identifiers and blob names double as file names, so both are
// validated against conservative patterns before any path is composed.
var (
	idPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	extPattern  = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)
)

const (
	maxIDLen   = 64
	maxNameLen = 128
)

// Valid reports whether id is safe to use as a record identifier.
// Valid identifiers contain no path separators, dots or relative components.
func Valid(id string) bool {
	return id != "" && len(id) <= maxIDLen && idPattern.MatchString(id)
}

// New generates a record identifier: 12 random bytes, hex-encoded.
func New() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// BlobName generates the stored name for an uploaded blob: a fresh UUID
// plus the original file's extension. Nothing from the caller-supplied
// filename survives except a sanitized extension.
func BlobName(originalFilename string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String() + safeExt(originalFilename), nil
}

func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

// CleanFilename reduces a caller-supplied blob name to its last path
// segment and validates it, so a serve or delete request cannot reach
// outside its bucket directory. The second return is false for anything
// that could not name a stored blob.
func CleanFilename(name string) (string, bool) {
	// Strip directory components, treating both separator styles as such.
	if i := strings.LastIndexAny(name, `/\`); i != -1 {
		name = name[i+1:]
	}
	if name == "" || len(name) > maxNameLen {
		return "", false
	}
	if !namePattern.MatchString(name) {
		return "", false
	}
	return name, true
}
