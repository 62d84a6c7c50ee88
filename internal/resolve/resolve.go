// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resolve turns classified identifier sets into concrete archive
// entities. Pattern sets are matched against a full listing of the target
// level; literal sets walk the explicit parent-to-child listings instead.
package resolve

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/pdiddy/xnatget/internal/archive"
	"github.com/pdiddy/xnatget/internal/identify"
	"github.com/pdiddy/xnatget/pkg/types"
)

// listPath maps a hierarchy level to its archive-wide listing path.
func listPath(level types.Level) string {
	switch level {
	case types.LevelProject:
		return "projects"
	case types.LevelSubject:
		return "subjects"
	default:
		return "experiments"
	}
}

// sortedSet deduplicates labels and returns them sorted. Resolution has
// set semantics; sorting keeps output deterministic for callers.
func sortedSet(labels map[string]struct{}) []string {
	out := make([]string, 0, len(labels))
	for l := range labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// byPattern lists every entity at level and keeps the labels matched by
// any pattern in the set.
func byPattern(ctx context.Context, c archive.Client, level types.Level, set identify.IDSet) ([]string, error) {
	all, err := c.ListChildren(ctx, listPath(level), "label")
	if err != nil {
		return nil, err
	}
	matched := make(map[string]struct{})
	for _, label := range all {
		if set.MatchAny(label) {
			matched[label] = struct{}{}
		}
	}
	return sortedSet(matched), nil
}

// Sessions resolves an identifier set to session labels. Literal ids
// dispatch on underscore count: a bare project id lists the project's
// sessions, a subject label lists the subject's sessions, and a full
// session label is taken verbatim without a listing call.
func Sessions(ctx context.Context, c archive.Client, set identify.IDSet) ([]string, error) {
	if set.IsPattern() {
		return byPattern(ctx, c, types.LevelSession, set)
	}

	sessions := make(map[string]struct{})
	for _, id := range set.Literal {
		switch strings.Count(id, "_") {
		case 0:
			labels, err := c.ListChildren(ctx, "projects/"+id+"/experiments", "label")
			if err != nil {
				return nil, missingParent(err, "project", id)
			}
			addAll(sessions, labels)
		case 1:
			labels, err := c.ListChildren(ctx, "subjects/"+id+"/experiments", "label")
			if err != nil {
				return nil, missingParent(err, "subject", id)
			}
			addAll(sessions, labels)
		case 2:
			sessions[id] = struct{}{}
		default:
			return nil, types.Usagef("invalid ID %q for listing sessions", id)
		}
	}
	return sortedSet(sessions), nil
}

// Subjects resolves an identifier set to subject labels. Literal ids are
// either project ids (listing the project's subjects) or full subject
// labels taken verbatim.
func Subjects(ctx context.Context, c archive.Client, set identify.IDSet) ([]string, error) {
	if set.IsPattern() {
		return byPattern(ctx, c, types.LevelSubject, set)
	}

	subjects := make(map[string]struct{})
	for _, id := range set.Literal {
		switch strings.Count(id, "_") {
		case 0:
			labels, err := c.ListChildren(ctx, "projects/"+id+"/subjects", "label")
			if err != nil {
				return nil, missingParent(err, "project", id)
			}
			addAll(subjects, labels)
		case 1:
			subjects[id] = struct{}{}
		default:
			return nil, types.Usagef("invalid ID %q for listing subjects", id)
		}
	}
	return sortedSet(subjects), nil
}

// Projects resolves an identifier set to project ids. With no ids every
// project visible to the user is listed.
func Projects(ctx context.Context, c archive.Client, set identify.IDSet) ([]string, error) {
	if set.IsPattern() {
		return byPattern(ctx, c, types.LevelProject, set)
	}
	if set.Empty() {
		labels, err := c.ListChildren(ctx, "projects", "label")
		if err != nil {
			return nil, err
		}
		sort.Strings(labels)
		return labels, nil
	}
	projects := make(map[string]struct{})
	addAll(projects, set.Literal)
	return sortedSet(projects), nil
}

// Entities dispatches resolution by level. The scan level resolves the
// sessions first and returns each matched session's scan labels.
func Entities(ctx context.Context, c archive.Client, level types.Level, set identify.IDSet) ([]string, error) {
	switch level {
	case types.LevelProject:
		return Projects(ctx, c, set)
	case types.LevelSubject:
		return Subjects(ctx, c, set)
	case types.LevelSession:
		return Sessions(ctx, c, set)
	case types.LevelScan:
		sessions, err := Sessions(ctx, c, set)
		if err != nil {
			return nil, err
		}
		scans := make(map[string]struct{})
		for _, label := range sessions {
			sess, err := c.Session(ctx, label)
			if err != nil {
				return nil, missingParent(err, "session", label)
			}
			for _, scan := range sess.Scans {
				scans[ScanLabel(scan)] = struct{}{}
			}
		}
		return sortedSet(scans), nil
	}
	return nil, types.Usagef("unknown hierarchy level %q", level)
}

func addAll(set map[string]struct{}, labels []string) {
	for _, l := range labels {
		set[l] = struct{}{}
	}
}

// missingParent turns a LookupError from a parent-scoped listing into a
// UsageError naming the missing parent. Other errors pass through.
func missingParent(err error, kind, id string) error {
	var lerr *types.LookupError
	if errors.As(err, &lerr) {
		return types.Usagef("no %s named %q (that you have access to)", kind, id)
	}
	return err
}
