//go:build darwin

package config

import (
	"errors"
	"os/exec"
)

// keychainGet prints the password of the generic item to stdout (-w).
func keychainGet(service, account string) ([]byte, error) {
	return exec.Command("security", "find-generic-password", "-s", service, "-a", account, "-w").Output()
}

// keychainSet upserts (-U) the generic item. An empty value deletes it so
// clearing a secret does not leave a blank entry that shadows the env.
func keychainSet(service, account, value string) error {
	if value == "" {
		err := exec.Command("security", "delete-generic-password", "-s", service, "-a", account).Run()
		var exit *exec.ExitError
		if errors.As(err, &exit) && exit.ExitCode() == 44 {
			return nil
		}
		return err
	}
	return exec.Command("security", "add-generic-password", "-U", "-s", service, "-a", account, "-w", value).Run()
}
