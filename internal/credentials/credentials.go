// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package credentials resolves the archive login for a server. Sources
// are consulted in order: process environment, then the per-host INI
// credentials file. Either field may come from a different source.
//
// The file lives at ~/.config/xnatget/credentials.ini with one section
// per archive host:
//
//	[archive.example.org]
//	user = alice
//	password = hunter2
package credentials

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

const (
	// EnvUser and EnvPassword override any credentials file entry.
	EnvUser     = "XNATGET_USER"
	EnvPassword = "XNATGET_PASSWORD"
)

// Login is a resolved archive credential pair. Password may be empty;
// the archive then decides whether anonymous access is allowed.
type Login struct {
	User     string
	Password string
}

// DefaultPath returns the standard credentials file location, or "" when
// the home directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "xnatget", "credentials.ini")
}

// Resolve builds the login for serverURL. explicitUser, when non-empty,
// wins over every source for the user field. A missing credentials file
// is not an error.
func Resolve(serverURL, explicitUser, path string) (Login, error) {
	login := Login{
		User:     os.Getenv(EnvUser),
		Password: os.Getenv(EnvPassword),
	}
	if explicitUser != "" {
		login.User = explicitUser
	}
	if login.User != "" && login.Password != "" {
		return login, nil
	}

	stored, err := fromFile(serverURL, path)
	if err != nil {
		return Login{}, err
	}
	if login.User == "" {
		login.User = stored.User
	}
	if login.Password == "" {
		login.Password = stored.Password
	}
	return login, nil
}

// fromFile reads the section named after the server's host. Sections
// keyed by the full URL are accepted too, for hand-edited files.
func fromFile(serverURL, path string) (Login, error) {
	if path == "" {
		return Login{}, nil
	}
	cfg, err := ini.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Login{}, nil
		}
		return Login{}, fmt.Errorf("reading credentials file %s: %w", path, err)
	}

	for _, name := range sectionNames(serverURL) {
		sec, err := cfg.GetSection(name)
		if err != nil {
			continue
		}
		return Login{
			User:     sec.Key("user").String(),
			Password: sec.Key("password").String(),
		}, nil
	}
	return Login{}, nil
}

func sectionNames(serverURL string) []string {
	names := []string{serverURL}
	if u, err := url.Parse(serverURL); err == nil && u.Host != "" {
		names = append(names, u.Host, u.Hostname())
	}
	return names
}
