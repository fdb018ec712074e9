//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// secrets.json is sectioned by service, then keyed by account.
type secretsFile map[string]map[string]string

func secretsFilePath() string {
	return xdgPath("XDG_DATA_HOME", filepath.Join(".local", "share"), "secrets.json")
}

func readSecrets() (secretsFile, error) {
	data, err := os.ReadFile(secretsFilePath())
	if err != nil {
		return nil, err
	}
	var sf secretsFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", secretsFilePath(), err)
	}
	return sf, nil
}

func keychainGet(service, account string) ([]byte, error) {
	sf, err := readSecrets()
	if err != nil {
		return nil, fmt.Errorf("secret store unavailable: %w", err)
	}
	v, ok := sf[service][account]
	if !ok {
		return nil, fmt.Errorf("no secret %s/%s", service, account)
	}
	return []byte(v), nil
}

// keychainSet stores value under service/account. An empty value removes
// the entry.
func keychainSet(service, account, value string) error {
	sf, err := readSecrets()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if sf == nil {
		sf = secretsFile{}
	}
	if value == "" {
		delete(sf[service], account)
	} else {
		if sf[service] == nil {
			sf[service] = map[string]string{}
		}
		sf[service][account] = value
	}
	return writePrivate(secretsFilePath(), sf)
}
