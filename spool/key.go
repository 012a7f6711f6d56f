package spool

import (
	"fmt"
	"strings"
)

// StudyKey is a StudyInstanceUID after sanitisation: safe to embed in a
// filesystem path, never containing separators or traversal sequences.
type StudyKey string

// SafeKey validates a raw study identifier as received over the wire. It
// rejects path separators, NUL bytes, leading dots and "..", surfacing the
// failure as a malformed-identifier condition. The Listener answers such an
// instance with a DIMSE failure status; the association itself is not
// refused. Nothing is written to disk before this check runs.
func SafeKey(raw string) (StudyKey, error) {
	if raw == "" {
		return "", fmt.Errorf("spool: empty study identifier")
	}
	if strings.ContainsAny(raw, "/\\\x00") {
		return "", fmt.Errorf("spool: study identifier %q contains an illegal character", raw)
	}
	if strings.HasPrefix(raw, ".") {
		return "", fmt.Errorf("spool: study identifier %q has a leading dot", raw)
	}
	if strings.Contains(raw, "..") {
		return "", fmt.Errorf("spool: study identifier %q contains a traversal sequence", raw)
	}
	return StudyKey(raw), nil
}

// DirName is the on-disk directory name for a study key.
func (k StudyKey) DirName() string {
	return "UID_" + string(k)
}

// KeyFromDirName recovers a StudyKey from a directory name previously
// produced by DirName, for callers that discover studies by walking the
// filesystem rather than tracking keys directly.
func KeyFromDirName(name string) (StudyKey, bool) {
	if !strings.HasPrefix(name, "UID_") {
		return "", false
	}
	return StudyKey(strings.TrimPrefix(name, "UID_")), true
}
