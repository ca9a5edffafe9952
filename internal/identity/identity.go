// Package identity maps feed UIDs onto identifiers the external services
// accept.
//
// Calendar event ids are restricted to a short lowercase alphabet, so the
// UID is hashed. Tasks have no custom id field at all: their identity is a
// tag embedded in the notes text and recovered by scanning existing tasks.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// TagPrefix starts the identity tag embedded in task notes.
const TagPrefix = "ics_uid:"

// EventID returns the first 32 hex characters of SHA-256(uid).
func EventID(uid string) string {
	sum := sha256.Sum256([]byte(uid))
	return hex.EncodeToString(sum[:])[:32]
}

// TaskTag returns the tag that identifies uid inside task notes.
func TaskTag(uid string) string {
	return TagPrefix + uid
}

// Tagged reports whether notes carry any identity tag.
func Tagged(notes string) bool {
	return strings.Contains(notes, TagPrefix)
}

// HasTag reports whether notes carry the tag for exactly uid. The tag may
// appear anywhere in the text but must be followed by the end of its line,
// optionally after trailing blanks. UIDs may contain spaces, so the tag is
// never split on whitespace, and "ics_uid:ABC" does not match notes tagged
// "ics_uid:ABC123" or "ics_uid:ABC 123".
func HasTag(notes, uid string) bool {
	if uid == "" {
		return false
	}
	tag := TaskTag(uid)
	rest := notes
	for {
		i := strings.Index(rest, tag)
		if i < 0 {
			return false
		}
		rest = rest[i+len(tag):]
		if endsLine(rest) {
			return true
		}
	}
}

// endsLine reports whether s holds only blanks up to a line break or the
// end of the text.
func endsLine(s string) bool {
	for _, r := range s {
		switch r {
		case '\n', '\r':
			return true
		case ' ', '\t':
			continue
		default:
			return false
		}
	}
	return true
}

// AppendTag appends the tag for uid to description, separated by a blank
// line.
func AppendTag(description, uid string) string {
	description = strings.TrimRight(description, " \t\r\n")
	if description == "" {
		return TaskTag(uid)
	}
	return description + "\n\n" + TaskTag(uid)
}
