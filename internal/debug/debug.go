// Package debug provides verbose logging gated by NOTEPORT_DEBUG or the
// --verbose flag.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu      sync.Mutex
	enabled = os.Getenv("NOTEPORT_DEBUG") != ""
	out     io.Writer = os.Stderr
)

// Enabled reports whether debug output is on.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// SetVerbose turns debug output on or off.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = v || os.Getenv("NOTEPORT_DEBUG") != ""
}

// SetOutput redirects debug output, for example to a rotating log file.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	out = w
}

// Logf writes a timestamped line when debug output is enabled.
func Logf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}
	fmt.Fprintf(out, "%s [debug] %s\n", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
}
