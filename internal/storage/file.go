package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirPerm  = 0755
	filePerm = 0644

	// PartialSuffix marks files that are still being written.
	PartialSuffix = ".part"
)

// EnsureDir creates dir and its parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return &StorageError{Op: "mkdir", Path: dir, Err: err}
	}

	return nil
}

// Exists reports whether path names an existing file.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, &StorageError{Op: "stat", Path: path, Err: err}
}

// WriteFileAtomic writes data next to path with PartialSuffix and renames it
// into place, so readers never observe a half-written file.
func WriteFileAtomic(path string, data []byte) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*"+PartialSuffix)
	if err != nil {
		return &StorageError{Op: "create", Path: path, Err: err}
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return &StorageError{Op: "write", Path: path, Err: err}
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return &StorageError{Op: "close", Path: path, Err: err}
	}

	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)

		return &StorageError{Op: "chmod", Path: path, Err: err}
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)

		return &StorageError{Op: "rename", Path: path, Err: err}
	}

	return nil
}

// SaveJSON writes v as two-space indented UTF-8 JSON without HTML escaping.
func SaveJSON(path string, v any) error {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	return WriteFileAtomic(path, buf.Bytes())
}

// LoadJSON decodes the JSON file at path into v. The returned error wraps
// os.ErrNotExist when the file is missing.
func LoadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &StorageError{Op: "read", Path: path, Err: err}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return nil
}
