// Package executor defines the action executor contract: the component that
// performs a resolved command against the host application (Logic Pro).
//
// The dispatcher only calls an Executor in live mode, at most once per
// utterance, and never retries a failed execution.
package executor

import (
	"context"
	"errors"

	"github.com/MrWong99/dawvox/pkg/types"
)

// Action kinds understood by executors.
const (
	// KindKeyCommand sends a key combination. Param "keys" holds the
	// combination, e.g. "cmd+z" or "space". Param "app" optionally names the
	// application to bring to the front first.
	KindKeyCommand = "key_command"

	// KindAppleScript runs the AppleScript source in param "script".
	KindAppleScript = "applescript"
)

// ErrUnsupported is returned for an action kind or parameter value an
// executor cannot perform.
var ErrUnsupported = errors.New("executor: unsupported action")

// Executor performs actions.
type Executor interface {
	// Execute performs a and blocks until it is done or ctx ends.
	Execute(ctx context.Context, a types.Action) error
}
