// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert discovers and runs the external neuroimaging converter
// binaries: dcm2niix for DICOM-to-NIfTI and mrconvert as the generic
// fallback.
package convert

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	// BinDcm2niix converts a DICOM directory to NIfTI.
	BinDcm2niix = "dcm2niix"
	// BinMrconvert converts between formats from its input/output paths.
	BinMrconvert = "mrconvert"
)

// ConversionError reports a converter subprocess that exited non-zero.
// Output carries the combined stdout/stderr verbatim for the warning the
// pipeline records.
type ConversionError struct {
	Tool   string
	Output string
	Err    error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Err }

// executor abstracts subprocess execution for testing.
type executor interface {
	RunCombined(name string, args ...string) ([]byte, error)
}

type osExecutor struct{}

func (osExecutor) RunCombined(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// FindExecutable scans every directory on the system path for name and
// returns the full path of the match, or "" when absent. The last match
// wins: later path entries override earlier ones. That inverts the usual
// first-match shell semantics but matches how this tool has always
// resolved converters, so it is kept.
func FindExecutable(name string) string {
	return findExecutableIn(os.Getenv("PATH"), name)
}

func findExecutableIn(pathEnv, name string) string {
	found := ""
	for _, prefix := range filepath.SplitList(pathEnv) {
		candidate := filepath.Join(prefix, name)
		if _, err := os.Stat(candidate); err == nil {
			found = candidate
		}
	}
	return found
}

// Toolset holds the converter binaries discovered on the system path.
type Toolset struct {
	dcm2niix  string
	mrconvert string
	exec      executor
}

// Discover locates both converter binaries. Either may be absent; the
// pipeline decides whether that is fatal.
func Discover() *Toolset {
	return &Toolset{
		dcm2niix:  FindExecutable(BinDcm2niix),
		mrconvert: FindExecutable(BinMrconvert),
		exec:      osExecutor{},
	}
}

// HasDcm2niix reports whether the DICOM-to-NIfTI converter was found.
func (t *Toolset) HasDcm2niix() bool { return t.dcm2niix != "" }

// HasMrconvert reports whether the generic converter was found.
func (t *Toolset) HasMrconvert() bool { return t.mrconvert != "" }

// DICOMToNIfTI runs dcm2niix over srcDir, writing {base}.nii or
// {base}.nii.gz into outDir depending on gzip.
func (t *Toolset) DICOMToNIfTI(srcDir, outDir, base string, gzip bool) error {
	compress := "n"
	if gzip {
		compress = "y"
	}
	out, err := t.exec.RunCombined(t.dcm2niix, "-z", compress, "-o", outDir, "-f", base, srcDir)
	if err != nil {
		return &ConversionError{Tool: BinDcm2niix, Output: string(out), Err: err}
	}
	return nil
}

// Convert runs mrconvert with the source and destination as positional
// arguments, inferring formats from the file extensions.
func (t *Toolset) Convert(src, dst string) error {
	out, err := t.exec.RunCombined(t.mrconvert, src, dst)
	if err != nil {
		return &ConversionError{Tool: BinMrconvert, Output: string(out), Err: err}
	}
	return nil
}
