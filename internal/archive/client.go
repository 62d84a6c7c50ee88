// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive talks to the remote imaging archive: a hierarchical
// REST namespace of projects, subjects, sessions (experiments), scans,
// and per-scan file resources.
package archive

import (
	"context"

	"github.com/pdiddy/xnatget/pkg/types"
)

// Client is the capability the resolution and retrieval layers depend on.
// Paths are relative to the archive root, e.g. "projects/MRH001/subjects".
// A missing path surfaces as *types.LookupError; any other remote failure
// surfaces as *types.UsageError carrying the server message.
type Client interface {
	// ListChildren lists the entities under path and returns the value of
	// attr (usually "label") for each row.
	ListChildren(ctx context.Context, path, attr string) ([]string, error)

	// Session fetches a session by label, including its scans and each
	// scan's resource labels.
	Session(ctx context.Context, label string) (*types.Session, error)

	// DownloadResource downloads every file of one scan resource into
	// destDir, mirroring the archive's own
	// {session}/scans/{scanLabel}/resources/{format}/files hierarchy.
	DownloadResource(ctx context.Context, sess *types.Session, scan types.Scan, formatLabel, destDir string) error

	// CreateResource creates an empty resource of the given format on a
	// scan, creating the scan implicitly if the archive supports it.
	CreateResource(ctx context.Context, sessionLabel, scanID, formatLabel string) error

	// Upload stores a local file under a scan resource.
	Upload(ctx context.Context, sessionLabel, scanID, formatLabel, localPath, remoteName string) error

	// DeleteResource removes a scan resource and its files.
	DeleteResource(ctx context.Context, sessionLabel, scanID, formatLabel string) error

	// GetField reads a single metadata field of a session.
	GetField(ctx context.Context, sessionLabel, field string) (string, error)

	// SetField writes a single metadata field of a session.
	SetField(ctx context.Context, sessionLabel, field, value string) error
}
