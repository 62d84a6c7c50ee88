// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package identify classifies user-supplied archive identifiers as literal
// ids or regular-expression patterns and infers which hierarchy level they
// address. Classification happens once at the boundary; downstream code
// dispatches on the resulting IDSet variant and never re-inspects the raw
// strings.
package identify

import (
	"regexp"
	"strings"

	"github.com/pdiddy/xnatget/pkg/types"
)

// wordPattern matches identifiers made entirely of word characters. Any
// other character makes the whole set a pattern set.
var wordPattern = regexp.MustCompile(`^\w+$`)

// IDSet is the closed two-variant result of classification: either all
// identifiers are literals, or all are compiled patterns. Mixed sets do
// not exist.
type IDSet struct {
	Literal  []string
	Patterns []*regexp.Regexp
}

// IsPattern reports whether the set holds regular expressions.
func (s IDSet) IsPattern() bool { return len(s.Patterns) > 0 }

// Empty reports whether no identifiers were supplied.
func (s IDSet) Empty() bool { return len(s.Literal) == 0 && len(s.Patterns) == 0 }

// MatchAny reports whether any pattern in the set matches label, anchored
// at the start and open at the end.
func (s IDSet) MatchAny(label string) bool {
	for _, p := range s.Patterns {
		if p.MatchString(label) {
			return true
		}
	}
	return false
}

// Classify decides whether ids are literal identifiers or patterns. A set
// is literal only when every element matches ^\w+$; otherwise every
// element is compiled as a regular expression anchored at the start.
func Classify(ids []string) (IDSet, error) {
	literal := true
	for _, id := range ids {
		if !wordPattern.MatchString(id) {
			literal = false
			break
		}
	}
	if literal {
		return IDSet{Literal: append([]string(nil), ids...)}, nil
	}

	set := IDSet{Patterns: make([]*regexp.Regexp, 0, len(ids))}
	for _, id := range ids {
		p, err := regexp.Compile("^(?:" + id + ")")
		if err != nil {
			return IDSet{}, types.Usagef("invalid identifier pattern %q: %v", id, err)
		}
		set.Patterns = append(set.Patterns, p)
	}
	return set, nil
}

// InferLevel decides which hierarchy level a classified identifier set
// addresses. With an explicit hint the ids only need to satisfy the hint's
// presence rules: the project level takes no ids, every other level
// requires at least one. Without a hint the set must be literal, and the
// underscore count of each id picks the level of the entities to list:
// 0 (a project id) lists subjects, 1 (a subject label) lists sessions,
// 2 (a session label) lists scans.
func InferLevel(ids []string, set IDSet, hint types.Level) (types.Level, error) {
	if hint != "" {
		if hint == types.LevelProject && !set.Empty() {
			return "", types.Usagef("datatype %q does not take identifiers (got %s)", hint, strings.Join(ids, ", "))
		}
		if hint != types.LevelProject && set.Empty() {
			return "", types.Usagef("datatype %q requires at least one identifier", hint)
		}
		return hint, nil
	}

	if set.Empty() {
		return types.LevelProject, nil
	}
	if set.IsPattern() {
		return "", types.Usagef("cannot infer a datatype from pattern identifiers (%s); pass an explicit datatype", strings.Join(ids, ", "))
	}

	level := types.Level("")
	var bad []string
	for _, id := range set.Literal {
		var l types.Level
		switch strings.Count(id, "_") {
		case 0:
			l = types.LevelSubject
		case 1:
			l = types.LevelSession
		case 2:
			l = types.LevelScan
		default:
			bad = append(bad, id)
			continue
		}
		if level == "" {
			level = l
		} else if level != l {
			return "", types.Usagef("identifiers address different hierarchy levels (%s); pass an explicit datatype", strings.Join(ids, ", "))
		}
	}
	if len(bad) > 0 {
		return "", types.Usagef("invalid identifier(s) %s: too many underscore-separated components", strings.Join(bad, ", "))
	}
	return level, nil
}
