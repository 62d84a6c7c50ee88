// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func touchExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindExecutableLastMatchWins(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	touchExecutable(t, first, "dcm2niix")
	want := touchExecutable(t, second, "dcm2niix")

	pathEnv := strings.Join([]string{first, second}, string(os.PathListSeparator))
	got := findExecutableIn(pathEnv, "dcm2niix")
	if got != want {
		t.Errorf("findExecutableIn = %q, want the later path entry %q", got, want)
	}
}

func TestFindExecutableAbsent(t *testing.T) {
	if got := findExecutableIn(t.TempDir(), "dcm2niix"); got != "" {
		t.Errorf("findExecutableIn = %q, want empty", got)
	}
}

// fakeExec records invocations and returns a scripted result.
type fakeExec struct {
	name   string
	args   []string
	output []byte
	err    error
}

func (f *fakeExec) RunCombined(name string, args ...string) ([]byte, error) {
	f.name = name
	f.args = args
	return f.output, f.err
}

func TestDICOMToNIfTIArgs(t *testing.T) {
	tests := []struct {
		name string
		gzip bool
		want string
	}{
		{"gzipped", true, "y"},
		{"plain", false, "n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := &fakeExec{}
			ts := &Toolset{dcm2niix: "/opt/bin/dcm2niix", exec: fe}

			if err := ts.DICOMToNIfTI("/stage/files", "/out", "2-t1_mprage", tt.gzip); err != nil {
				t.Fatalf("DICOMToNIfTI: %v", err)
			}
			if fe.name != "/opt/bin/dcm2niix" {
				t.Errorf("ran %q, want the discovered binary", fe.name)
			}
			want := []string{"-z", tt.want, "-o", "/out", "-f", "2-t1_mprage", "/stage/files"}
			if !reflect.DeepEqual(fe.args, want) {
				t.Errorf("args = %v, want %v", fe.args, want)
			}
		})
	}
}

func TestConvertArgs(t *testing.T) {
	fe := &fakeExec{}
	ts := &Toolset{mrconvert: "/usr/bin/mrconvert", exec: fe}

	if err := ts.Convert("/stage/scan.nii.gz", "/out/scan.mif"); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := []string{"/stage/scan.nii.gz", "/out/scan.mif"}
	if !reflect.DeepEqual(fe.args, want) {
		t.Errorf("args = %v, want %v", fe.args, want)
	}
}

func TestConversionErrorCarriesOutput(t *testing.T) {
	fe := &fakeExec{output: []byte("mrconvert: unsupported voxel layout\n"), err: errors.New("exit status 1")}
	ts := &Toolset{mrconvert: "/usr/bin/mrconvert", exec: fe}

	err := ts.Convert("/a", "/b")
	if err == nil {
		t.Fatal("expected error")
	}
	var cerr *ConversionError
	if !errors.As(err, &cerr) {
		t.Fatalf("error type = %T, want *ConversionError", err)
	}
	if !strings.Contains(cerr.Output, "unsupported voxel layout") {
		t.Errorf("Output = %q, should carry subprocess output verbatim", cerr.Output)
	}
	if !strings.Contains(err.Error(), "mrconvert failed") {
		t.Errorf("Error() = %q", err.Error())
	}
}
