// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdiddy/xnatget/internal/convert"
	"github.com/pdiddy/xnatget/internal/identify"
	"github.com/pdiddy/xnatget/internal/resolve"
	"github.com/pdiddy/xnatget/pkg/types"
)

// fakeArchive materializes staged downloads from an in-memory file table.
type fakeArchive struct {
	children map[string][]string
	sessions map[string]*types.Session
	// files maps "session/scanID/format" to the file names of that resource.
	files map[string][]string

	created []string
	deleted []string
	uploads []string
}

func (f *fakeArchive) ListChildren(_ context.Context, path, _ string) ([]string, error) {
	labels, ok := f.children[path]
	if !ok {
		return nil, &types.LookupError{Path: path}
	}
	return labels, nil
}

func (f *fakeArchive) Session(_ context.Context, label string) (*types.Session, error) {
	sess, ok := f.sessions[label]
	if !ok {
		return nil, &types.LookupError{Path: "experiments/" + label}
	}
	return sess, nil
}

func (f *fakeArchive) DownloadResource(_ context.Context, sess *types.Session, scan types.Scan, formatLabel, destDir string) error {
	key := sess.Label + "/" + scan.ID + "/" + formatLabel
	names, ok := f.files[key]
	if !ok {
		return &types.LookupError{Path: key}
	}
	dir := filepath.Join(destDir, sess.Label, "scans", resolve.ScanLabel(scan), "resources", formatLabel, "files")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("data:"+name), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeArchive) CreateResource(_ context.Context, sessionLabel, scanID, formatLabel string) error {
	f.created = append(f.created, sessionLabel+"/"+scanID+"/"+formatLabel)
	return nil
}

func (f *fakeArchive) Upload(_ context.Context, sessionLabel, scanID, formatLabel, _, remoteName string) error {
	f.uploads = append(f.uploads, sessionLabel+"/"+scanID+"/"+formatLabel+"/"+remoteName)
	return nil
}

func (f *fakeArchive) DeleteResource(_ context.Context, sessionLabel, scanID, formatLabel string) error {
	f.deleted = append(f.deleted, sessionLabel+"/"+scanID+"/"+formatLabel)
	return nil
}
func (f *fakeArchive) GetField(context.Context, string, string) (string, error)     { return "", nil }
func (f *fakeArchive) SetField(context.Context, string, string, string) error       { return nil }

// fakeTools scripts converter availability and outcomes. Successful
// conversions write a placeholder output file like the real tools would.
type fakeTools struct {
	dcm2niix  bool
	mrconvert bool
	fail      *convert.ConversionError
	calls     []string
}

func (f *fakeTools) HasDcm2niix() bool  { return f.dcm2niix }
func (f *fakeTools) HasMrconvert() bool { return f.mrconvert }

func (f *fakeTools) DICOMToNIfTI(srcDir, outDir, base string, gzip bool) error {
	f.calls = append(f.calls, fmt.Sprintf("dcm2niix gzip=%v base=%s", gzip, base))
	if f.fail != nil {
		return f.fail
	}
	ext := ".nii"
	if gzip {
		ext = ".nii.gz"
	}
	return os.WriteFile(filepath.Join(outDir, base+ext), []byte("converted"), 0o644)
}

func (f *fakeTools) Convert(src, dst string) error {
	f.calls = append(f.calls, fmt.Sprintf("mrconvert %s -> %s", filepath.Base(src), filepath.Base(dst)))
	if f.fail != nil {
		return f.fail
	}
	return os.WriteFile(dst, []byte("converted"), 0o644)
}

// recordingRecorder collects manifest records.
type recordingRecorder struct {
	records []string
}

func (r *recordingRecorder) Record(session, scanLabel, formatLabel, path, status, warning string) error {
	r.records = append(r.records, strings.Join([]string{session, scanLabel, formatLabel, status}, "|"))
	return nil
}

const testSession = "TEST001_001_MR01"

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		children: map[string][]string{},
		sessions: map[string]*types.Session{
			testSession: {
				Label:   testSession,
				Project: "TEST001",
				Subject: "001",
				Suffix:  "MR01",
				Scans: []types.Scan{
					{ID: "2", Type: "t1_mprage", Resources: []string{"NIFTI_GZ", "SNAPSHOTS"}},
					{ID: "3", Type: "ep2d diff", Resources: []string{"DICOM"}},
				},
			},
		},
		files: map[string][]string{
			testSession + "/2/NIFTI_GZ": {"2-t1_mprage.nii.gz"},
			testSession + "/3/DICOM":    {"img-0002.dcm", "img-0001.dcm"},
		},
	}
}

func literalSet(t *testing.T, ids ...string) identify.IDSet {
	t.Helper()
	set, err := identify.Classify(ids)
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func run(t *testing.T, f *fakeArchive, opts Options, tools Tools, rec Recorder) (Result, error) {
	t.Helper()
	var buf strings.Builder
	res, err := Run(context.Background(), f, literalSet(t, testSession), opts, tools, rec, &buf)
	t.Log(buf.String())
	return res, err
}

func TestRunMovesSingleFileFormat(t *testing.T) {
	f := newFakeArchive()
	root := t.TempDir()

	res, err := run(t, f, Options{TargetDir: root, ScanTypes: []string{"t1_mprage"}}, &fakeTools{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Sessions != 1 || res.Scans != 1 {
		t.Errorf("result = %d sessions / %d scans, want 1/1", res.Sessions, res.Scans)
	}

	target := filepath.Join(root, testSession, "2-t1_mprage.nii.gz")
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading target: %v", err)
	}
	if string(data) != "data:2-t1_mprage.nii.gz" {
		t.Errorf("target content = %q", data)
	}
}

func TestRunCleansStaging(t *testing.T) {
	f := newFakeArchive()
	root := t.TempDir()

	_, err := run(t, f, Options{TargetDir: root, ScanTypes: []string{"t1_mprage"}}, &fakeTools{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(root, testSession))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".download") {
			t.Errorf("staging directory %s survived the run", e.Name())
		}
	}
}

// Staging is released even when conversion fails and the raw artifact is
// recovered.
func TestRunCleansStagingAfterRecovery(t *testing.T) {
	f := newFakeArchive()
	root := t.TempDir()
	tools := &fakeTools{mrconvert: true, fail: &convert.ConversionError{
		Tool: "mrconvert", Output: "bad layout", Err: errors.New("exit status 1"),
	}}

	_, err := run(t, f, Options{
		TargetDir: root,
		ScanTypes: []string{"t1_mprage"},
		ConvertTo: "mrtrix",
	}, tools, nil)
	if err != nil {
		t.Fatal(err)
	}

	entries, _ := os.ReadDir(filepath.Join(root, testSession))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".download") {
			t.Errorf("staging directory %s survived recovery", e.Name())
		}
	}
}

func TestRunDICOMNoConversionKeepsDirectory(t *testing.T) {
	f := newFakeArchive()
	root := t.TempDir()

	res, err := run(t, f, Options{TargetDir: root, ScanTypes: []string{"ep2d diff"}}, &fakeTools{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Scans != 1 {
		t.Fatalf("Scans = %d, want 1", res.Scans)
	}

	// DICOM has no extension; the target is a directory of archive files.
	dir := filepath.Join(root, testSession, "3-ep2d_diff")
	for _, name := range []string{"img-0001.dcm", "img-0002.dcm"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s in target directory: %v", name, err)
		}
	}
}

func TestRunStripNameRenumbers(t *testing.T) {
	f := newFakeArchive()
	root := t.TempDir()

	_, err := run(t, f, Options{TargetDir: root, ScanTypes: []string{"ep2d diff"}, StripName: true}, &fakeTools{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	dir := filepath.Join(root, testSession, "3-ep2d_diff")
	// Sorted source order: img-0001.dcm becomes 0001.dcm.
	data, err := os.ReadFile(filepath.Join(dir, "0001.dcm"))
	if err != nil {
		t.Fatalf("reading 0001.dcm: %v", err)
	}
	if string(data) != "data:img-0001.dcm" {
		t.Errorf("0001.dcm content = %q, want the first file in sorted order", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "0002.dcm")); err != nil {
		t.Errorf("expected 0002.dcm: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "img-0001.dcm")); !os.IsNotExist(err) {
		t.Error("original archive filenames should not survive strip-name")
	}
}

func TestRunSubjectDirsLayout(t *testing.T) {
	f := newFakeArchive()
	root := t.TempDir()

	_, err := run(t, f, Options{TargetDir: root, ScanTypes: []string{"t1_mprage"}, SubjectDirs: true}, &fakeTools{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	target := filepath.Join(root, "TEST001_001", "MR01", "2-t1_mprage.nii.gz")
	if _, err := os.Stat(target); err != nil {
		t.Errorf("expected subject-grouped layout at %s: %v", target, err)
	}
}

func TestRunTargetDirIdempotent(t *testing.T) {
	f := newFakeArchive()
	root := t.TempDir()

	// Pre-existing session directory must not fail the run.
	if err := os.MkdirAll(filepath.Join(root, testSession), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, f, Options{TargetDir: root, ScanTypes: []string{"t1_mprage"}}, &fakeTools{}, nil); err != nil {
		t.Fatalf("Run with pre-existing target dir: %v", err)
	}
}

func TestRunDcm2niixInvocation(t *testing.T) {
	f := newFakeArchive()
	root := t.TempDir()
	tools := &fakeTools{dcm2niix: true}

	res, err := run(t, f, Options{
		TargetDir: root,
		ScanTypes: []string{"ep2d diff"},
		ConvertTo: "nifti_gz",
	}, tools, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.HasWarnings() {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
	if len(tools.calls) != 1 || tools.calls[0] != "dcm2niix gzip=true base=3-ep2d_diff" {
		t.Errorf("calls = %v, want one gzipped dcm2niix invocation", tools.calls)
	}
	if _, err := os.Stat(filepath.Join(root, testSession, "3-ep2d_diff.nii.gz")); err != nil {
		t.Errorf("expected converted output: %v", err)
	}
}

func TestRunDcm2niixPlainNIfTI(t *testing.T) {
	f := newFakeArchive()
	tools := &fakeTools{dcm2niix: true}

	_, err := run(t, f, Options{
		TargetDir: t.TempDir(),
		ScanTypes: []string{"ep2d diff"},
		ConvertTo: "nifti",
	}, tools, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(tools.calls) != 1 || !strings.Contains(tools.calls[0], "gzip=false") {
		t.Errorf("calls = %v, want an uncompressed dcm2niix invocation", tools.calls)
	}
}

func TestRunGenericConverterFallsBackToMrconvert(t *testing.T) {
	f := newFakeArchive()
	root := t.TempDir()
	tools := &fakeTools{mrconvert: true}

	_, err := run(t, f, Options{
		TargetDir: root,
		ScanTypes: []string{"t1_mprage"},
		ConvertTo: "mrtrix",
	}, tools, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(tools.calls) != 1 || !strings.HasPrefix(tools.calls[0], "mrconvert") {
		t.Errorf("calls = %v, want one mrconvert invocation", tools.calls)
	}
	if _, err := os.Stat(filepath.Join(root, testSession, "2-t1_mprage.mif")); err != nil {
		t.Errorf("expected converted .mif target: %v", err)
	}
}

func TestRunConversionMissingTools(t *testing.T) {
	f := newFakeArchive()

	_, err := run(t, f, Options{
		TargetDir: t.TempDir(),
		ScanTypes: []string{"ep2d diff"},
		ConvertTo: "nifti_gz",
	}, &fakeTools{}, nil)
	if err == nil {
		t.Fatal("expected error with no converter tools")
	}
	var uerr *types.UsageError
	if !errors.As(err, &uerr) {
		t.Fatalf("error type = %T, want *types.UsageError", err)
	}
	for _, tool := range []string{"dcm2niix", "mrconvert"} {
		if !strings.Contains(err.Error(), tool) {
			t.Errorf("error %q should name missing tool %s", err.Error(), tool)
		}
	}
}

func TestRunForcedConverterMissingFailsFast(t *testing.T) {
	f := newFakeArchive()

	_, err := run(t, f, Options{
		TargetDir: t.TempDir(),
		ConvertTo: "nifti_gz",
		Converter: "dcm2niix",
	}, &fakeTools{mrconvert: true}, nil)
	if err == nil {
		t.Fatal("expected fail-fast error for forced missing converter")
	}
	if !strings.Contains(err.Error(), "dcm2niix") {
		t.Errorf("error %q should name the forced converter", err.Error())
	}
}

func TestRunConversionFailureRecoversRaw(t *testing.T) {
	f := newFakeArchive()
	root := t.TempDir()
	tools := &fakeTools{mrconvert: true, fail: &convert.ConversionError{
		Tool: "mrconvert", Output: "unsupported layout", Err: errors.New("exit status 1"),
	}}
	rec := &recordingRecorder{}

	res, err := run(t, f, Options{
		TargetDir: root,
		ScanTypes: []string{"t1_mprage"},
		ConvertTo: "mrtrix",
	}, tools, rec)
	if err != nil {
		t.Fatalf("conversion failure must not abort the run: %v", err)
	}
	if res.Scans != 1 {
		t.Errorf("Scans = %d, want 1", res.Scans)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want exactly one", res.Warnings)
	}
	if !strings.Contains(res.Warnings[0], "unsupported layout") {
		t.Errorf("warning %q should carry converter output", res.Warnings[0])
	}

	// Raw artifact lands under the source format's own extension.
	raw := filepath.Join(root, testSession, "2-t1_mprage.nii.gz")
	if _, err := os.Stat(raw); err != nil {
		t.Errorf("expected recovered raw artifact at %s: %v", raw, err)
	}
	if _, err := os.Stat(filepath.Join(root, testSession, "2-t1_mprage.mif")); !os.IsNotExist(err) {
		t.Error("failed conversion should not leave a .mif target")
	}

	if len(rec.records) != 1 || !strings.HasSuffix(rec.records[0], "|unconverted") {
		t.Errorf("records = %v, want one unconverted record", rec.records)
	}
}

func TestRunAmbiguousFormat(t *testing.T) {
	f := newFakeArchive()
	f.sessions[testSession].Scans = []types.Scan{
		{ID: "2", Type: "t1_mprage", Resources: []string{"NIFTI_GZ", "MRTRIX"}},
	}

	_, err := run(t, f, Options{TargetDir: t.TempDir()}, &fakeTools{}, nil)
	if err == nil {
		t.Fatal("expected error for ambiguous format")
	}
	for _, label := range []string{"NIFTI_GZ", "MRTRIX"} {
		if !strings.Contains(err.Error(), label) {
			t.Errorf("error %q should name candidate %s", err.Error(), label)
		}
	}
}

func TestRunNoValidFormats(t *testing.T) {
	f := newFakeArchive()
	f.sessions[testSession].Scans = []types.Scan{
		{ID: "2", Type: "t1_mprage", Resources: []string{"SNAPSHOTS"}},
	}

	_, err := run(t, f, Options{TargetDir: t.TempDir()}, &fakeTools{}, nil)
	if err == nil {
		t.Fatal("expected error for no valid formats")
	}
	if !strings.Contains(err.Error(), "no valid scan formats") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestRunExplicitFormatSkipsInference(t *testing.T) {
	f := newFakeArchive()
	f.sessions[testSession].Scans = []types.Scan{
		{ID: "2", Type: "t1_mprage", Resources: []string{"NIFTI_GZ", "MRTRIX"}},
	}
	f.files[testSession+"/2/NIFTI_GZ"] = []string{"2-t1_mprage.nii.gz"}
	root := t.TempDir()

	// Lowercase on purpose: explicit formats are uppercased.
	_, err := run(t, f, Options{TargetDir: root, Format: "nifti_gz"}, &fakeTools{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, testSession, "2-t1_mprage.nii.gz")); err != nil {
		t.Errorf("expected target from explicit format: %v", err)
	}
}

func TestRunNoScansMatched(t *testing.T) {
	f := newFakeArchive()

	_, err := run(t, f, Options{TargetDir: t.TempDir(), ScanTypes: []string{"flair"}}, &fakeTools{}, nil)
	if err == nil {
		t.Fatal("expected a descriptive no-scans outcome")
	}
	if !strings.Contains(err.Error(), "no scans matched") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestRunConvertToSameFormatIsAMove(t *testing.T) {
	f := newFakeArchive()
	root := t.TempDir()
	tools := &fakeTools{}

	_, err := run(t, f, Options{
		TargetDir: root,
		ScanTypes: []string{"t1_mprage"},
		ConvertTo: "nifti_gz",
	}, tools, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(tools.calls) != 0 {
		t.Errorf("no converter should run when formats already match, got %v", tools.calls)
	}
}

func TestPut(t *testing.T) {
	f := newFakeArchive()
	dir := t.TempDir()
	path := filepath.Join(dir, "grads.bvec")
	if err := os.WriteFile(path, []byte("0 0 0"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf strings.Builder
	if err := Put(context.Background(), f, testSession, "5", []string{path}, false, &buf); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.Contains(buf.String(), "uploaded: grads.bvec (FSL_BVECS)") {
		t.Errorf("output = %q", buf.String())
	}
	if len(f.created) != 1 || f.created[0] != testSession+"/5/FSL_BVECS" {
		t.Errorf("created = %v", f.created)
	}
	if len(f.uploads) != 1 || f.uploads[0] != testSession+"/5/FSL_BVECS/grads.bvec" {
		t.Errorf("uploads = %v", f.uploads)
	}
	if len(f.deleted) != 0 {
		t.Errorf("deleted = %v, want none without overwrite", f.deleted)
	}
}

func TestPutOverwrite(t *testing.T) {
	f := newFakeArchive()
	dir := t.TempDir()
	path := filepath.Join(dir, "grads.bvec")
	if err := os.WriteFile(path, []byte("0 0 0"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Put(context.Background(), f, testSession, "5", []string{path}, true, io.Discard); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(f.deleted) != 1 || f.deleted[0] != testSession+"/5/FSL_BVECS" {
		t.Errorf("deleted = %v, want the replaced resource", f.deleted)
	}
}

func TestPutMixedFormats(t *testing.T) {
	f := newFakeArchive()
	dir := t.TempDir()
	a := filepath.Join(dir, "grads.bvec")
	b := filepath.Join(dir, "vals.bval")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	err := Put(context.Background(), f, testSession, "5", []string{a, b}, false, io.Discard)
	if err == nil {
		t.Fatal("expected error for mixed formats")
	}
	if !strings.Contains(err.Error(), "mixed data formats") {
		t.Errorf("error = %q", err.Error())
	}
}
