package ollama

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotRunning means nothing answered at the configured base URL.
var ErrNotRunning = errors.New("Ollama is not running. Start it with: ollama serve")

// EnsureReady fails fast when Ollama is down and pulls model when it is not
// installed, reporting progress to w.
func EnsureReady(ctx context.Context, c *Client, model string, w io.Writer) error {
	if !c.IsRunning(ctx) {
		return ErrNotRunning
	}
	if !c.HasModel(ctx, model) {
		fmt.Fprintf(w, "model %s: pulling...\n", model)
		last := ""
		err := c.PullModel(ctx, model, func(p PullProgress) {
			line := "  " + p.Status
			if pct := p.Percent(); pct >= 0 {
				line = fmt.Sprintf("  %s %.0f%%", p.Status, pct)
			}
			// Ollama repeats identical lines while a layer downloads.
			if line != last {
				fmt.Fprintln(w, line)
				last = line
			}
		})
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "model %s: ready\n", model)
	return nil
}
