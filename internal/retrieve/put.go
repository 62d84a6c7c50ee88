// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/pdiddy/xnatget/internal/archive"
	"github.com/pdiddy/xnatget/internal/format"
	"github.com/pdiddy/xnatget/pkg/types"
)

// Put uploads local files as one scan resource. The data format is
// inferred from the file extensions and must be the same for every file.
// With overwrite an existing resource of that format is deleted first.
// This is a single best-effort write: there is no conversion and no
// fallback.
func Put(ctx context.Context, c archive.Client, sessionLabel, scanID string, files []string, overwrite bool, w io.Writer) error {
	if len(files) == 0 {
		return types.Usagef("provide at least one file to upload")
	}

	label, err := format.FromFilename(files[0])
	if err != nil {
		return err
	}
	for _, f := range files[1:] {
		other, err := format.FromFilename(f)
		if err != nil {
			return err
		}
		if other != label {
			return types.Usagef("files have mixed data formats (%s vs %s); upload one format at a time", label, other)
		}
	}

	if overwrite {
		err := c.DeleteResource(ctx, sessionLabel, scanID, label)
		var lerr *types.LookupError
		if err != nil && !errors.As(err, &lerr) {
			return fmt.Errorf("deleting existing %s resource on %s scan %s: %w", label, sessionLabel, scanID, err)
		}
	}

	if err := c.CreateResource(ctx, sessionLabel, scanID, label); err != nil {
		return fmt.Errorf("creating %s resource on %s scan %s: %w", label, sessionLabel, scanID, err)
	}

	for _, f := range files {
		name := filepath.Base(f)
		if err := c.Upload(ctx, sessionLabel, scanID, label, f, name); err != nil {
			return fmt.Errorf("uploading %s: %w", name, err)
		}
		fmt.Fprintf(w, "uploaded: %s (%s)\n", name, label)
	}
	return nil
}
