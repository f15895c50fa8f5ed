// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package credstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/barrier-gate/barrier/internal/session"
	"github.com/barrier-gate/barrier/internal/xdg"
)

const fileMode = 0o600

// File stores credentials as a YAML document readable only by the owner.
type File struct {
	path string
}

// NewFile returns a File store at path. The file is created on first Save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

// Load implements Store.
func (f *File) Load(_ context.Context) (*session.Credentials, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code(CodeLoadFailed).With("backend", "file").With("path", f.path).Wrap(err)
	}

	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, oops.Code(CodeLoadFailed).
			With("backend", "file").
			With("path", f.path).
			Wrapf(err, "parse credentials file")
	}
	return fromValues(values), nil
}

// Save implements Store. The document is written to a temporary file and
// renamed into place.
func (f *File) Save(_ context.Context, creds session.Credentials) error {
	data, err := yaml.Marshal(toValues(creds))
	if err != nil {
		return oops.Code(CodeSaveFailed).With("backend", "file").Wrap(err)
	}

	dir := filepath.Dir(f.path)
	if err := xdg.EnsureDir(dir); err != nil {
		return oops.Code(CodeSaveFailed).With("backend", "file").With("path", dir).Wrap(err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.yaml")
	if err != nil {
		return oops.Code(CodeSaveFailed).With("backend", "file").With("path", dir).Wrap(err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) } //nolint:errcheck // best effort

	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close() //nolint:errcheck // chmod error takes precedence
		cleanup()
		return oops.Code(CodeSaveFailed).With("backend", "file").With("path", tmpName).Wrap(err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // write error takes precedence
		cleanup()
		return oops.Code(CodeSaveFailed).With("backend", "file").With("path", tmpName).Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return oops.Code(CodeSaveFailed).With("backend", "file").With("path", tmpName).Wrap(err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return oops.Code(CodeSaveFailed).With("backend", "file").With("path", f.path).Wrap(err)
	}
	return nil
}

// Clear implements Store.
func (f *File) Clear(_ context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return oops.Code(CodeClearFailed).With("backend", "file").With("path", f.path).Wrap(err)
	}
	return nil
}

// Close implements Store.
func (f *File) Close() error { return nil }
