// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "strings"

// Level identifies one tier of the archive hierarchy.
type Level string

const (
	LevelProject Level = "project"
	LevelSubject Level = "subject"
	LevelSession Level = "session"
	LevelScan    Level = "scan"
)

// ParseLevel converts a user-supplied datatype string to a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(s)) {
	case LevelProject, LevelSubject, LevelSession, LevelScan:
		return Level(strings.ToLower(s)), nil
	}
	return "", Usagef("unknown datatype %q (expected project, subject, session, or scan)", s)
}

// Scan is one acquisition within a session, identified by a numeric-ish
// server id and a free-text type string. Resources lists the format labels
// of the file collections attached to the scan.
type Scan struct {
	ID        string
	Type      string
	Resources []string
}

// Session is an imaging visit. Its label carries the hierarchy: exactly
// three underscore-separated components {project}_{subject}_{suffix}.
type Session struct {
	ID      string
	Label   string
	Project string
	Subject string
	Suffix  string
	Scans   []Scan
}

// SplitSessionLabel decomposes a session label into its project, subject,
// and session-suffix components. Labels with any other shape are rejected.
func SplitSessionLabel(label string) (project, subject, suffix string, err error) {
	parts := strings.Split(label, "_")
	if len(parts) != 3 {
		return "", "", "", Usagef("invalid session label %q (expected {project}_{subject}_{suffix})", label)
	}
	return parts[0], parts[1], parts[2], nil
}
