//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// xdgPath resolves name under the XDG base directory named by env, falling
// back to fallback under the home directory.
func xdgPath(env, fallback string, name ...string) string {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(append([]string{"spark-data"}, name...)...)
		}
		base = filepath.Join(home, fallback)
	}
	return filepath.Join(append([]string{base, "spark"}, name...)...)
}

func defaultDataDir() string {
	return xdgPath("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func configFilePath() string {
	return xdgPath("XDG_CONFIG_HOME", ".config", "config.json")
}

func secretHint(account string) string {
	return fmt.Sprintf(" or %s (section %q, key %q)", secretsFilePath(), service, account)
}

// writePrivate replaces path with data, readable by the owner only. The
// write goes through a temp file so a crash never leaves half a file.
func writePrivate(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".spark-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// fileStore keeps config as one flat JSON object. Numbers and bools are
// written as JSON scalars so the file stays pleasant to hand-edit.
type fileStore struct {
	path   string
	values map[string]any
}

func newPlatformStore() Store {
	return openFileStore(configFilePath())
}

// openFileStore reads path once. A missing file is an empty store; an
// unreadable one is reported and treated the same way.
func openFileStore(path string) *fileStore {
	fs := &fileStore{path: path, values: map[string]any{}}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
	default:
		if err := json.Unmarshal(data, &fs.values); err != nil {
			fs.values = map[string]any{}
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", path, err)
		}
	}
	return fs
}

func (fs *fileStore) Lookup(key string) (string, bool, error) {
	v, ok := fs.values[key]
	if !ok {
		return "", false, nil
	}
	switch v := v.(type) {
	case string:
		return v, true, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true, nil
	case bool:
		return strconv.FormatBool(v), true, nil
	case nil:
		return "", false, nil
	default:
		return "", true, fmt.Errorf("%s holds a %T, want a scalar", key, v)
	}
}

func (fs *fileStore) Put(key string, v any) error {
	fs.values[key] = v
	return writePrivate(fs.path, fs.values)
}

func (fs *fileStore) Delete(key string) error {
	if _, ok := fs.values[key]; !ok {
		return nil
	}
	delete(fs.values, key)
	return writePrivate(fs.path, fs.values)
}
