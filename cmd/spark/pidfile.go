package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// pidFile records the running server's process id under the data dir.
type pidFile string

func pidFileIn(dataDir string) pidFile {
	return pidFile(filepath.Join(dataDir, "spark.pid"))
}

func (p pidFile) read() (int, error) {
	data, err := os.ReadFile(string(p))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("corrupt pid file %s: %w", p, err)
	}
	return pid, nil
}

// claim writes this process's id unless a server already answers on port.
// A stale file left by a crashed server is overwritten.
func (p pidFile) claim(port int) error {
	probe := &http.Client{Timeout: 2 * time.Second}
	if resp, err := probe.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port)); err == nil {
		resp.Body.Close()
		if pid, err := p.read(); err == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", port)
	}
	if err := os.MkdirAll(filepath.Dir(string(p)), 0o755); err != nil {
		return err
	}
	return os.WriteFile(string(p), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// release removes the file if it still names this process.
func (p pidFile) release() {
	if pid, err := p.read(); err == nil && pid == os.Getpid() {
		os.Remove(string(p))
	}
}

func (p pidFile) remove() error {
	err := os.Remove(string(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
