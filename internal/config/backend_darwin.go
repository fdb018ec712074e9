//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// defaultsDomain is the UserDefaults domain spark writes under.
const defaultsDomain = "com.spark.app"

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "spark-data"
	}
	return filepath.Join(home, "Library", "Application Support", "spark")
}

func secretHint(account string) string {
	return fmt.Sprintf(" or macOS Keychain (service: %s, account: %s)", service, account)
}

// defaultsStore shells out to defaults(1).
type defaultsStore struct {
	domain string
}

func newPlatformStore() Store {
	return defaultsStore{domain: defaultsDomain}
}

// run invokes defaults with verb and args against the domain. missing
// reports the tool's exit status 1, which it uses for an unknown key.
func (d defaultsStore) run(verb string, args ...string) (out string, missing bool, err error) {
	b, err := exec.Command("defaults", append([]string{verb, d.domain}, args...)...).CombinedOutput()
	out = strings.TrimSpace(string(b))
	var exit *exec.ExitError
	if errors.As(err, &exit) && exit.ExitCode() == 1 {
		return "", true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("defaults %s %s: %w (%s)", verb, strings.Join(args, " "), err, out)
	}
	return out, false, nil
}

func (d defaultsStore) Lookup(key string) (string, bool, error) {
	out, missing, err := d.run("read", key)
	if err != nil || missing {
		return "", false, err
	}
	return out, true, nil
}

func (d defaultsStore) Put(key string, v any) error {
	var typeFlag, text string
	switch v := v.(type) {
	case int:
		typeFlag, text = "-int", strconv.Itoa(v)
	case bool:
		typeFlag, text = "-bool", strconv.FormatBool(v)
	default:
		typeFlag, text = "-string", fmt.Sprint(v)
	}
	_, _, err := d.run("write", key, typeFlag, text)
	return err
}

func (d defaultsStore) Delete(key string) error {
	_, _, err := d.run("delete", key)
	return err
}
