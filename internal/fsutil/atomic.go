// Package fsutil provides crash-safe file helpers for state kept on disk.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WriteFileAtomic writes data to dir/name through a synced temp file and a
// rename, so readers observe either the old or the new contents.
func WriteFileAtomic(dir, name string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(dir, ".tmp-"+name+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, filepath.Join(dir, name))
}

// WriteYAMLAtomic marshals v as YAML and writes it with WriteFileAtomic.
func WriteYAMLAtomic(dir, name string, v any, perm os.FileMode) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("fsutil: marshal %s: %w", name, err)
	}
	return WriteFileAtomic(dir, name, data, perm)
}

// ReadYAML decodes the YAML file at path into v. It reports false without
// an error when the file does not exist.
func ReadYAML(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("fsutil: parse %s: %w", path, err)
	}
	return true, nil
}
