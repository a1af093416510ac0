// Package tts defines the feedback sink contract: something that renders a
// short status phrase to the user, usually by speaking it.
//
// Implementations must be safe for concurrent use, although the feedback
// emitter only ever calls Emit from a single goroutine so phrases never
// overlap.
package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Provider is the abstraction over any feedback output.
type Provider interface {
	// Emit renders phrase and returns once it has been delivered (for speech
	// output: once playback has finished). Emit must return promptly with
	// ctx.Err() when ctx is cancelled.
	Emit(ctx context.Context, phrase string) error
}

// Runner executes an external program and waits for it to exit. Providers
// that shell out take a Runner so tests can record invocations instead of
// spawning processes.
type Runner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs name via os/exec. A non-zero exit status is returned as an
// error that includes the program's trimmed stderr.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
