// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieve orchestrates scan downloads: format selection, target
// layout, staged download, conversion with fallback recovery, and staging
// cleanup. Sessions and scans are processed strictly one at a time.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/xnatget/internal/archive"
	"github.com/pdiddy/xnatget/internal/convert"
	"github.com/pdiddy/xnatget/internal/format"
	"github.com/pdiddy/xnatget/internal/identify"
	"github.com/pdiddy/xnatget/internal/resolve"
	"github.com/pdiddy/xnatget/pkg/types"
)

// Tools is the converter capability the pipeline depends on. Implemented
// by convert.Toolset; tests substitute a fake.
type Tools interface {
	HasDcm2niix() bool
	HasMrconvert() bool
	DICOMToNIfTI(srcDir, outDir, base string, gzip bool) error
	Convert(src, dst string) error
}

// Recorder receives one record per processed scan. A nil Recorder
// disables recording.
type Recorder interface {
	Record(session, scanLabel, formatLabel, path, status, warning string) error
}

// Options configures one retrieval run.
type Options struct {
	// TargetDir is the root of the local layout.
	TargetDir string
	// ScanTypes filters scans by type pattern; nil keeps every scan.
	ScanTypes []string
	// Format forces the source data format instead of inferring it.
	Format string
	// ConvertTo requests conversion to another format.
	ConvertTo string
	// Converter forces dcm2niix or mrconvert instead of automatic choice.
	Converter string
	// SubjectDirs selects the {project}_{subject}/{suffix} layout.
	SubjectDirs bool
	// StripName renumbers DICOM files to a zero-padded sequence.
	StripName bool
}

// Result aggregates one run: counts and the non-fatal conversion warnings
// accumulated along the way.
type Result struct {
	Sessions int
	Scans    int
	Warnings []string
}

// HasWarnings reports whether any scan fell back to its raw format.
func (r Result) HasWarnings() bool { return len(r.Warnings) > 0 }

const (
	statusRetrieved   = "retrieved"
	statusUnconverted = "unconverted"
)

type pipeline struct {
	client    archive.Client
	tools     Tools
	rec       Recorder
	opts      Options
	convertTo string
	w         io.Writer
	result    Result
}

// Run resolves the identifier set to sessions and retrieves every matched
// scan. Structural errors (bad identifiers, missing entities, ambiguous
// formats, missing required tools) abort the run; per-scan conversion
// failures are recovered by keeping the raw artifact and recording a
// warning.
func Run(ctx context.Context, c archive.Client, set identify.IDSet, opts Options, tools Tools, rec Recorder, w io.Writer) (Result, error) {
	p := &pipeline{
		client:    c,
		tools:     tools,
		rec:       rec,
		opts:      opts,
		convertTo: strings.ToUpper(opts.ConvertTo),
		w:         w,
	}
	if err := p.validate(); err != nil {
		return p.result, err
	}
	return p.run(ctx, set)
}

// validate rejects impossible requests before anything touches the
// archive: unknown target formats and explicitly forced converters that
// are not on the system path.
func (p *pipeline) validate() error {
	if p.convertTo != "" && !format.Known(p.convertTo) {
		return types.Usagef("unknown data format %q", p.opts.ConvertTo)
	}
	switch p.opts.Converter {
	case "":
	case convert.BinDcm2niix:
		if !p.tools.HasDcm2niix() {
			return types.Usagef("converter %q requested but not found on the system path", convert.BinDcm2niix)
		}
	case convert.BinMrconvert:
		if !p.tools.HasMrconvert() {
			return types.Usagef("converter %q requested but not found on the system path", convert.BinMrconvert)
		}
	default:
		return types.Usagef("unknown converter %q (expected %s or %s)",
			p.opts.Converter, convert.BinDcm2niix, convert.BinMrconvert)
	}
	return nil
}

func (p *pipeline) run(ctx context.Context, set identify.IDSet) (Result, error) {
	sessions, err := resolve.Sessions(ctx, p.client, set)
	if err != nil {
		return p.result, err
	}

	for _, label := range sessions {
		sess, err := p.client.Session(ctx, label)
		if err != nil {
			var lerr *types.LookupError
			if errors.As(err, &lerr) {
				return p.result, types.Usagef("no session named %q (that you have access to)", label)
			}
			return p.result, err
		}

		scans, err := resolve.MatchScans(sess, p.opts.ScanTypes)
		if err != nil {
			return p.result, err
		}
		if len(scans) == 0 {
			continue
		}

		for _, scan := range scans {
			if err := p.retrieveScan(ctx, sess, scan); err != nil {
				return p.result, err
			}
			p.result.Scans++
		}
		p.result.Sessions++
	}

	if p.result.Scans == 0 {
		return p.result, types.Usagef("no scans matched the supplied identifiers")
	}

	fmt.Fprintf(p.w, "\nRetrieved %d scan(s) across %d session(s)", p.result.Scans, p.result.Sessions)
	if p.result.HasWarnings() {
		fmt.Fprintf(p.w, " with %d warning(s)", len(p.result.Warnings))
	}
	fmt.Fprintln(p.w)
	return p.result, nil
}

// retrieveScan runs one scan through format selection, staged download,
// conversion or relocation, and staging cleanup. The staging directory is
// released on every exit path.
func (p *pipeline) retrieveScan(ctx context.Context, sess *types.Session, scan types.Scan) error {
	scanLabel := resolve.ScanLabel(scan)

	srcFormat, err := p.selectFormat(sess, scan, scanLabel)
	if err != nil {
		return err
	}
	srcExt, err := format.Extension(srcFormat)
	if err != nil {
		return err
	}

	converting := p.convertTo != "" && p.convertTo != srcFormat
	ext := srcExt
	if converting {
		ext, _ = format.Extension(p.convertTo)
	}

	dir := p.targetDir(sess)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating target directory %s: %w", dir, err)
	}
	target := filepath.Join(dir, scanLabel+ext)

	staging := target + ".download"
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("creating staging directory %s: %w", staging, err)
	}
	defer os.RemoveAll(staging)

	if err := p.client.DownloadResource(ctx, sess, scan, srcFormat, staging); err != nil {
		return fmt.Errorf("downloading %s %s: %w", sess.Label, scanLabel, err)
	}

	// The client mirrors the archive hierarchy inside the staging area.
	src := filepath.Join(staging, sess.Label, "scans", scanLabel, "resources", srcFormat, "files")
	if !format.Generic(srcFormat) {
		src = filepath.Join(src, scanLabel+srcExt)
	}

	status, warning := statusRetrieved, ""
	finalPath := target

	switch {
	case !converting:
		if p.opts.StripName && format.Generic(srcFormat) {
			err = renumberDICOM(src, target)
		} else {
			err = moveArtifact(src, target)
		}
		if err != nil {
			return fmt.Errorf("placing %s %s: %w", sess.Label, scanLabel, err)
		}

	case isNIfTI(p.convertTo) && srcFormat == "DICOM" && p.useDcm2niix():
		err = p.tools.DICOMToNIfTI(src, dir, scanLabel, p.convertTo == "NIFTI_GZ")

	case p.useMrconvert():
		err = p.tools.Convert(src, target)

	default:
		return p.missingToolError(srcFormat)
	}

	if err != nil {
		// A failed converter subprocess is non-fatal: keep the raw
		// artifact under its own extension and continue.
		var cerr *convert.ConversionError
		if !errors.As(err, &cerr) {
			return err
		}
		finalPath = filepath.Join(dir, scanLabel+srcExt)
		if mvErr := moveArtifact(src, finalPath); mvErr != nil {
			return fmt.Errorf("recovering raw %s %s: %w", sess.Label, scanLabel, mvErr)
		}
		warning = fmt.Sprintf("conversion of %s %s to %s failed, kept raw %s: %v",
			sess.Label, scanLabel, p.convertTo, srcFormat, cerr)
		status = statusUnconverted
		p.result.Warnings = append(p.result.Warnings, warning)
		fmt.Fprintf(p.w, "warning: %s\n", warning)
	} else {
		fmt.Fprintf(p.w, "retrieved: %s %s (%s)\n", sess.Label, scanLabel, srcFormat)
	}

	if p.rec != nil {
		if recErr := p.rec.Record(sess.Label, scanLabel, srcFormat, finalPath, status, warning); recErr != nil {
			fmt.Fprintf(p.w, "warning: manifest record failed: %v\n", recErr)
		}
	}
	return nil
}

// selectFormat picks the source data format for a scan. An explicit
// request is used uppercased; otherwise exactly one of the scan's
// resources must carry a known format label.
func (p *pipeline) selectFormat(sess *types.Session, scan types.Scan, scanLabel string) (string, error) {
	if p.opts.Format != "" {
		u := strings.ToUpper(p.opts.Format)
		if !format.Known(u) {
			return "", types.Usagef("unknown data format %q", p.opts.Format)
		}
		return u, nil
	}

	var candidates []string
	for _, r := range scan.Resources {
		if format.Known(r) {
			candidates = append(candidates, r)
		}
	}
	sort.Strings(candidates)

	switch len(candidates) {
	case 0:
		return "", types.Usagef("no valid scan formats for %s in %s (resources: %s)",
			scanLabel, sess.Label, strings.Join(scan.Resources, ", "))
	case 1:
		return candidates[0], nil
	}
	return "", types.Usagef("multiple valid scan formats for %s in %s (%s); pass an explicit format to disambiguate",
		scanLabel, sess.Label, strings.Join(candidates, ", "))
}

// targetDir builds the session's directory in the local layout.
func (p *pipeline) targetDir(sess *types.Session) string {
	if p.opts.SubjectDirs {
		return filepath.Join(p.opts.TargetDir, sess.Project+"_"+sess.Subject, sess.Suffix)
	}
	return filepath.Join(p.opts.TargetDir, sess.Label)
}

func (p *pipeline) useDcm2niix() bool {
	return (p.opts.Converter == "" || p.opts.Converter == convert.BinDcm2niix) && p.tools.HasDcm2niix()
}

func (p *pipeline) useMrconvert() bool {
	return (p.opts.Converter == "" || p.opts.Converter == convert.BinMrconvert) && p.tools.HasMrconvert()
}

// missingToolError explains why a required conversion cannot run.
func (p *pipeline) missingToolError(srcFormat string) error {
	if p.opts.Converter == convert.BinDcm2niix {
		return types.Usagef("%s only converts DICOM to NIFTI or NIFTI_GZ (requested %s from %s)",
			convert.BinDcm2niix, p.convertTo, srcFormat)
	}
	var missing []string
	if !p.tools.HasDcm2niix() {
		missing = append(missing, convert.BinDcm2niix)
	}
	if !p.tools.HasMrconvert() {
		missing = append(missing, convert.BinMrconvert)
	}
	return types.Usagef("cannot convert %s to %s: converter tool(s) not found on the system path: %s",
		srcFormat, p.convertTo, strings.Join(missing, ", "))
}

func isNIfTI(label string) bool {
	return label == "NIFTI" || label == "NIFTI_GZ"
}

// renumberDICOM places the files of srcDir into a freshly created
// directory at dst, renamed to a 4-digit zero-padded sequence in sorted
// source order.
func renumberDICOM(srcDir, dst string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n++
		if err := moveArtifact(filepath.Join(srcDir, e.Name()), filepath.Join(dst, fmt.Sprintf("%04d.dcm", n))); err != nil {
			return err
		}
	}
	return nil
}

// moveArtifact relocates a file or directory, falling back to a copy when
// the staging area and target live on different filesystems.
func moveArtifact(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if err := copyTree(src, dst); err != nil {
			return err
		}
	} else if err := copyFile(src, dst, info.Mode()); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		s, d := filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyTree(s, d); err != nil {
				return err
			}
			continue
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		if err := copyFile(s, d, info.Mode()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}
