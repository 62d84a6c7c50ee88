// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings for archive requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with archive requests
	// (e.g. "xnatget/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// ServerConfig identifies the archive server and how to talk to it.
type ServerConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the archive root, e.g. "https://xnat.example.edu".
	BaseURL string `json:"base_url" yaml:"base_url"`

	// User overrides the credentials file/environment lookup when set.
	User string `json:"user,omitempty" yaml:"user,omitempty"`
}

// RetrievalConfig holds settings for the download pipeline.
type RetrievalConfig struct {
	// TargetDir is the root of the local directory layout.
	TargetDir string `json:"target_dir" yaml:"target_dir"`

	// SubjectDirs selects the {project}_{subject}/{suffix} layout instead
	// of one directory per session label.
	SubjectDirs bool `json:"subject_dirs" yaml:"subject_dirs"`

	// StripName renumbers DICOM files to 0001.dcm, 0002.dcm, ... instead
	// of keeping archive filenames.
	StripName bool `json:"strip_name" yaml:"strip_name"`

	// Format forces the source data format instead of inferring it from
	// the scan's resources.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// ConvertTo requests conversion to another data format.
	ConvertTo string `json:"convert_to,omitempty" yaml:"convert_to,omitempty"`

	// Converter forces a specific converter tool ("dcm2niix" or "mrconvert").
	Converter string `json:"converter,omitempty" yaml:"converter,omitempty"`
}

// ManifestConfig holds settings for the local retrieval log.
type ManifestConfig struct {
	// Dir is the directory holding the manifest database.
	Dir string `json:"dir" yaml:"dir"`

	// Disabled turns off manifest recording entirely.
	Disabled bool `json:"disabled" yaml:"disabled"`
}
