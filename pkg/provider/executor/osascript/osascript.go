// Package osascript executes actions on macOS through osascript(1). Key
// commands are translated into System Events keystrokes, AppleScript actions
// are passed through verbatim.
package osascript

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MrWong99/dawvox/pkg/provider/executor"
	"github.com/MrWong99/dawvox/pkg/types"
)

var _ executor.Executor = (*Executor)(nil)

// Runner runs osascript with the given script and returns its error.
type Runner func(ctx context.Context, script string) error

// Option is a functional option for [Executor].
type Option func(*Executor)

// WithApp sets the application activated before key commands that do not
// name one themselves.
func WithApp(app string) Option {
	return func(e *Executor) { e.app = app }
}

// WithRunner replaces the osascript runner. Used by tests.
func WithRunner(r Runner) Option {
	return func(e *Executor) { e.run = r }
}

// Executor implements executor.Executor with osascript.
type Executor struct {
	app string
	run Runner
}

// New returns an Executor targeting Logic Pro.
func New(opts ...Option) *Executor {
	e := &Executor{app: "Logic Pro", run: runOSAScript}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute implements executor.Executor.
func (e *Executor) Execute(ctx context.Context, a types.Action) error {
	var script string
	switch a.Kind {
	case executor.KindKeyCommand:
		app := a.Params["app"]
		if app == "" {
			app = e.app
		}
		s, err := KeyScript(a.Params["keys"], app)
		if err != nil {
			return err
		}
		script = s
	case executor.KindAppleScript:
		script = a.Params["script"]
		if strings.TrimSpace(script) == "" {
			return fmt.Errorf("%w: applescript action without script", executor.ErrUnsupported)
		}
	default:
		return fmt.Errorf("%w: kind %q", executor.ErrUnsupported, a.Kind)
	}
	if err := e.run(ctx, script); err != nil {
		return fmt.Errorf("osascript: %s: %w", a.Kind, err)
	}
	return nil
}

var modifiers = map[string]string{
	"cmd":     "command down",
	"command": "command down",
	"shift":   "shift down",
	"alt":     "option down",
	"option":  "option down",
	"opt":     "option down",
	"ctrl":    "control down",
	"control": "control down",
}

var keyCodes = map[string]int{
	"space": 49, "return": 36, "enter": 36, "tab": 48,
	"escape": 53, "esc": 53, "delete": 51, "backspace": 51,
	"left": 123, "right": 124, "down": 125, "up": 126,
	"home": 115, "end": 119, "pageup": 116, "pagedown": 121,
	"f1": 122, "f2": 120, "f3": 99, "f4": 118, "f5": 96, "f6": 97,
	"f7": 98, "f8": 100, "f9": 101, "f10": 109, "f11": 103, "f12": 111,
}

// KeyScript translates a key combination such as "cmd+shift+z" into the
// AppleScript that sends it. When app is non-empty the script activates it
// first.
func KeyScript(keys, app string) (string, error) {
	parts := strings.Split(strings.ToLower(strings.ReplaceAll(keys, " ", "")), "+")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return "", fmt.Errorf("%w: empty key combination %q", executor.ErrUnsupported, keys)
	}
	key := parts[len(parts)-1]

	var mods []string
	for _, p := range parts[:len(parts)-1] {
		m, ok := modifiers[p]
		if !ok {
			return "", fmt.Errorf("%w: unknown modifier %q in %q", executor.ErrUnsupported, p, keys)
		}
		mods = append(mods, m)
	}

	var b strings.Builder
	if app != "" {
		fmt.Fprintf(&b, "tell application %s to activate\n", strconv.Quote(app))
	}
	b.WriteString(`tell application "System Events" to `)
	if code, ok := keyCodes[key]; ok {
		fmt.Fprintf(&b, "key code %d", code)
	} else if len([]rune(key)) == 1 {
		fmt.Fprintf(&b, "keystroke %s", strconv.Quote(key))
	} else {
		return "", fmt.Errorf("%w: unknown key %q in %q", executor.ErrUnsupported, key, keys)
	}
	if len(mods) > 0 {
		fmt.Fprintf(&b, " using {%s}", strings.Join(mods, ", "))
	}
	return b.String(), nil
}

func runOSAScript(ctx context.Context, script string) error {
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
