// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"regexp"

	"github.com/pdiddy/xnatget/internal/format"
	"github.com/pdiddy/xnatget/pkg/types"
)

// ScanLabel is the scan's identity within a session:
// {scanID}-{sanitizedType}.
func ScanLabel(s types.Scan) string {
	return s.ID + "-" + format.Sanitize(s.Type)
}

// MatchScans filters a session's scans by type patterns. A nil or empty
// pattern list matches every scan; otherwise a scan is kept when its type
// fully matches (anchored at both ends) at least one pattern.
func MatchScans(sess *types.Session, typePatterns []string) ([]types.Scan, error) {
	if len(typePatterns) == 0 {
		return sess.Scans, nil
	}

	compiled := make([]*regexp.Regexp, 0, len(typePatterns))
	for _, p := range typePatterns {
		re, err := regexp.Compile("^(?:" + p + ")$")
		if err != nil {
			return nil, types.Usagef("invalid scan type pattern %q: %v", p, err)
		}
		compiled = append(compiled, re)
	}

	var matched []types.Scan
	for _, scan := range sess.Scans {
		for _, re := range compiled {
			if re.MatchString(scan.Type) {
				matched = append(matched, scan)
				break
			}
		}
	}
	return matched, nil
}
