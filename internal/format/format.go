// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package format maps archive data-format labels to canonical file
// extensions and back.
package format

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/xnatget/pkg/types"
)

// extensions is the closed table of known data formats. DICOM and secondary
// are multi-file formats with no single canonical extension.
var extensions = map[string]string{
	"NIFTI":       ".nii",
	"NIFTI_GZ":    ".nii.gz",
	"MRTRIX":      ".mif",
	"DICOM":       "",
	"secondary":   "",
	"TEXT_MATRIX": ".mat",
	"MRTRIX_GRAD": ".b",
	"FSL_BVECS":   ".bvec",
	"FSL_BVALS":   ".bval",
	"MATLAB":      ".mat",
	"ANALYZE":     ".img",
	"ZIP":         ".zip",
	"RDATA":       ".rdata",
}

var sanitizePattern = regexp.MustCompile(`[^a-zA-Z_0-9]`)

// Known reports whether label is a registered data format.
func Known(label string) bool {
	_, ok := extensions[label]
	return ok
}

// Labels returns all registered format labels in sorted order.
func Labels() []string {
	labels := make([]string, 0, len(extensions))
	for l := range extensions {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Extension returns the canonical file extension for a format label.
func Extension(label string) (string, error) {
	ext, ok := extensions[label]
	if !ok {
		return "", types.Usagef("unknown data format %q", label)
	}
	return ext, nil
}

// FromFilename returns the format label whose canonical extension matches
// the filename. A trailing .gz is folded into the extension together with
// the component before it, so "scan.nii.gz" resolves to NIFTI_GZ rather
// than failing on ".gz".
func FromFilename(filename string) (string, error) {
	ext := ExtractExtension(filename)
	// Sorted iteration keeps the winner stable for extensions shared by
	// two labels (".mat" belongs to both MATLAB and TEXT_MATRIX).
	for _, label := range Labels() {
		if e := extensions[label]; e == ext && e != "" {
			return label, nil
		}
	}
	return "", types.Usagef("no format matching extension %q (of %q)", ext, filename)
}

// ExtractExtension returns the extension of filename, treating ".gz" as
// part of a two-component extension.
func ExtractExtension(filename string) string {
	parts := strings.Split(filepath.Base(filename), ".")
	if len(parts) == 1 {
		return ""
	}
	n := 1
	if parts[len(parts)-1] == "gz" && len(parts) > 2 {
		n = 2
	}
	return "." + strings.Join(parts[len(parts)-n:], ".")
}

// Generic reports whether label is a multi-file format whose resources are
// kept as a directory of files rather than a single artifact.
func Generic(label string) bool {
	return label == "DICOM" || label == "secondary"
}

// Sanitize replaces every character outside [a-zA-Z0-9_] with an
// underscore, matching the archive's own scan-label convention.
func Sanitize(s string) string {
	return sanitizePattern.ReplaceAllString(s, "_")
}
