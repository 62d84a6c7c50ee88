// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/xnatget/internal/format"
	"github.com/pdiddy/xnatget/internal/httputil"
	"github.com/pdiddy/xnatget/pkg/types"
)

// REST implements Client against the archive's JSON REST API.
type REST struct {
	base      string
	http      *http.Client
	user      string
	password  string
	userAgent string
}

// NewREST builds a REST client for the archive at cfg.BaseURL using HTTP
// basic authentication.
func NewREST(cfg types.ServerConfig, user, password string) *REST {
	return &REST{
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		http:      &http.Client{Timeout: cfg.Timeout},
		user:      user,
		password:  password,
		userAgent: cfg.UserAgent,
	}
}

// listing covers both JSON shapes the archive returns: flat ResultSet rows
// for collection listings, and nested items for single entities.
type listing struct {
	ResultSet *struct {
		Result []map[string]any `json:"Result"`
	} `json:"ResultSet"`
	Items []struct {
		DataFields map[string]any `json:"data_fields"`
		Children   []struct {
			Items []struct {
				DataFields map[string]any `json:"data_fields"`
			} `json:"items"`
		} `json:"children"`
	} `json:"items"`
}

func (c *REST) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// archiveURL joins a relative archive path onto the /data/archive root.
func (c *REST) archiveURL(path string) string {
	return c.base + "/data/archive/" + strings.TrimLeft(path, "/")
}

// getListing fetches an archive path as JSON. A 404 becomes a LookupError
// naming the path; any other failure becomes a UsageError carrying the
// server message.
func (c *REST) getListing(ctx context.Context, path string) (*listing, error) {
	u := c.archiveURL(path)
	if strings.Contains(u, "?") {
		u += "&format=json"
	} else {
		u += "?format=json"
	}
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httputil.DoWithRetry(ctx, c.http, req, 0)
	if err != nil {
		return nil, fmt.Errorf("archive request for %q: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &types.LookupError{Path: path}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, types.Usagef("archive request for %q failed (status %d): %s",
			path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, types.Usagef("archive returned malformed JSON for %q: %v", path, err)
	}
	return &l, nil
}

// rows flattens a listing into one field map per entity, whichever JSON
// shape the server chose.
func (l *listing) rows() []map[string]any {
	if l.ResultSet != nil {
		return l.ResultSet.Result
	}
	if len(l.Items) > 0 && len(l.Items[0].Children) > 0 {
		items := l.Items[0].Children[0].Items
		rows := make([]map[string]any, 0, len(items))
		for _, it := range items {
			rows = append(rows, it.DataFields)
		}
		return rows
	}
	return nil
}

func fieldString(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}

func (c *REST) ListChildren(ctx context.Context, path, attr string) ([]string, error) {
	l, err := c.getListing(ctx, path)
	if err != nil {
		return nil, err
	}
	rows := l.rows()
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		values = append(values, fieldString(row, attr))
	}
	return values, nil
}

func (c *REST) Session(ctx context.Context, label string) (*types.Session, error) {
	project, subject, suffix, err := types.SplitSessionLabel(label)
	if err != nil {
		return nil, err
	}

	l, err := c.getListing(ctx, "experiments/"+label+"/scans")
	if err != nil {
		return nil, err
	}

	sess := &types.Session{
		Label:   label,
		Project: project,
		Subject: subject,
		Suffix:  suffix,
	}
	for _, row := range l.rows() {
		scan := types.Scan{
			ID:   fieldString(row, "ID"),
			Type: fieldString(row, "type"),
		}
		resources, err := c.ListChildren(ctx,
			fmt.Sprintf("experiments/%s/scans/%s/resources", label, scan.ID), "label")
		if err != nil {
			return nil, err
		}
		scan.Resources = resources
		sess.Scans = append(sess.Scans, scan)
	}
	return sess, nil
}

func (c *REST) DownloadResource(ctx context.Context, sess *types.Session, scan types.Scan, formatLabel, destDir string) error {
	filesPath := fmt.Sprintf("experiments/%s/scans/%s/resources/%s/files", sess.Label, scan.ID, formatLabel)
	l, err := c.getListing(ctx, filesPath)
	if err != nil {
		return err
	}

	scanLabel := scan.ID + "-" + format.Sanitize(scan.Type)
	dir := filepath.Join(destDir, sess.Label, "scans", scanLabel, "resources", formatLabel, "files")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating download directory %s: %w", dir, err)
	}

	for _, row := range l.rows() {
		name := fieldString(row, "Name")
		uri := fieldString(row, "URI")
		if name == "" || uri == "" {
			continue
		}
		if err := c.downloadFile(ctx, uri, filepath.Join(dir, filepath.Base(name))); err != nil {
			return fmt.Errorf("downloading %s: %w", name, err)
		}
	}
	return nil
}

// downloadFile fetches one archive file URI to destPath.
func (c *REST) downloadFile(ctx context.Context, uri, destPath string) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.base+uri, nil)
	if err != nil {
		return err
	}
	resp, err := httputil.DoWithRetry(ctx, c.http, req, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Usagef("archive file %q failed (status %d)", uri, resp.StatusCode)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(destPath)
		return copyErr
	}
	if closeErr != nil {
		os.Remove(destPath)
		return closeErr
	}
	return nil
}

// send performs a state-changing request and maps failure codes.
func (c *REST) send(ctx context.Context, method, path string, body io.Reader) error {
	req, err := c.newRequest(ctx, method, c.archiveURL(path), body)
	if err != nil {
		return err
	}
	var resp *http.Response
	if body != nil {
		// A streamed body cannot be replayed, so uploads are single-shot.
		resp, err = c.http.Do(req)
	} else {
		resp, err = httputil.DoWithRetry(ctx, c.http, req, 0)
	}
	if err != nil {
		return fmt.Errorf("archive request for %q: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &types.LookupError{Path: path}
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return types.Usagef("archive request for %q failed (status %d): %s",
			path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

func (c *REST) CreateResource(ctx context.Context, sessionLabel, scanID, formatLabel string) error {
	path := fmt.Sprintf("experiments/%s/scans/%s/resources/%s", sessionLabel, scanID, formatLabel)
	return c.send(ctx, http.MethodPut, path, nil)
}

func (c *REST) Upload(ctx context.Context, sessionLabel, scanID, formatLabel, localPath, remoteName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	path := fmt.Sprintf("experiments/%s/scans/%s/resources/%s/files/%s?inbody=true",
		sessionLabel, scanID, formatLabel, url.PathEscape(remoteName))
	return c.send(ctx, http.MethodPost, path, f)
}

func (c *REST) DeleteResource(ctx context.Context, sessionLabel, scanID, formatLabel string) error {
	path := fmt.Sprintf("experiments/%s/scans/%s/resources/%s?removeFiles=true", sessionLabel, scanID, formatLabel)
	return c.send(ctx, http.MethodDelete, path, nil)
}

func (c *REST) GetField(ctx context.Context, sessionLabel, field string) (string, error) {
	l, err := c.getListing(ctx, "experiments/"+sessionLabel)
	if err != nil {
		return "", err
	}
	if len(l.Items) == 0 {
		return "", types.Usagef("session %q has no metadata", sessionLabel)
	}
	v, ok := l.Items[0].DataFields[field]
	if !ok {
		return "", types.Usagef("session %q has no field %q", sessionLabel, field)
	}
	return fmt.Sprint(v), nil
}

func (c *REST) SetField(ctx context.Context, sessionLabel, field, value string) error {
	path := fmt.Sprintf("experiments/%s?%s=%s",
		sessionLabel, url.QueryEscape(field), url.QueryEscape(value))
	return c.send(ctx, http.MethodPut, path, nil)
}
