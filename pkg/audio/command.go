package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// CommandSource captures audio by running an external recorder, such as
// sox's rec, that writes raw little-endian int16 PCM to stdout.
type CommandSource struct {
	name   string
	args   []string
	env    []string
	format Format
	size   int

	mu  sync.Mutex
	cmd *exec.Cmd
}

var _ Source = (*CommandSource)(nil)

// NewCommandSource returns a source running name with args. The recorder
// must emit PCM in format f; frames hold frameSamples samples per channel.
// env entries ("KEY=value") are added to the process environment.
func NewCommandSource(name string, args, env []string, f Format, frameSamples int) *CommandSource {
	return &CommandSource{name: name, args: args, env: env, format: f, size: frameSamples}
}

// RecArgs returns sox rec arguments producing raw PCM in format f.
func RecArgs(f Format) []string {
	return []string{
		"-q",
		"-t", "raw",
		"-r", strconv.Itoa(f.SampleRate),
		"-e", "signed-integer",
		"-b", "16",
		"-c", strconv.Itoa(max(f.Channels, 1)),
		"-",
	}
}

// Stream starts the recorder and delivers its output until ctx ends or the
// process exits. An exit while ctx is still live is a [CaptureError].
func (s *CommandSource) Stream(ctx context.Context, sink func(AudioFrame)) error {
	cmd := exec.CommandContext(ctx, s.name, s.args...)
	cmd.Env = append(os.Environ(), s.env...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &CaptureError{Source: s.name, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &CaptureError{Source: s.name, Err: err}
	}
	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()
	slog.Debug("audio capture started", "command", s.name, "args", strings.Join(s.args, " "), "format", s.format.String())

	rerr := NewReaderSource(s.name, stdout, s.format, s.size).Stream(ctx, sink)
	werr := cmd.Wait()
	s.mu.Lock()
	s.cmd = nil
	s.mu.Unlock()

	if ctx.Err() != nil {
		return nil
	}
	if rerr != nil {
		return rerr
	}
	if werr != nil {
		msg := strings.TrimSpace(stderr.String())
		return &CaptureError{Source: s.name, Err: fmt.Errorf("%w: %s", werr, msg)}
	}
	return &CaptureError{Source: s.name, Err: errors.New("recorder exited")}
}

// Close kills a running recorder.
func (s *CommandSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
