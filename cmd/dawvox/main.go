// Command dawvox controls Logic Pro by voice, entirely offline.
//
// Usage:
//
//	dawvox [flags]                 run the voice pipeline (same as "run")
//	dawvox run [--live] [--low-latency] [--source NAME]
//	dawvox check                   validate configuration and grammar
//	dawvox resolve <text...>       show how a phrase would be understood
//	dawvox history [-n N]          list recent commands from the journal
//	dawvox phrases                 list wake phrases and feedback phrases
//
// Configuration is read from --config, or the first of config.yaml,
// config.yml and configs/config.yaml. Without a file the built-in defaults
// apply. A .env file in the working directory is loaded
// into the environment first.
package main

import (
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(execute())
}
