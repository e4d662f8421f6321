// Package logtee mirrors robot Log payloads to a scratch file while a run
// is in progress, so that independent readers (TUI tail, CLI "ls") can
// follow along without coordinating with the daemon.
package logtee

import (
	"os"
	"strings"
	"sync"

	"github.com/Nat3z/Daybreak/internal/logging"
)

// Tee owns the scratch log file. Append is called from the Robot
// Session's read loop; Rotate is called both from there and from the
// Bridge Router's accept goroutine, and the mutex serializes them.
type Tee struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Tee {
	return &Tee{path: path}
}

// Rotate truncates (or creates) the scratch file. The Robot Session calls
// it on each transition out of IDLE and the Bridge Router calls it again
// when it accepts a RUN start; nothing rotates on a transition into IDLE,
// so the file accumulates everything from one run until the next one starts.
func (t *Tee) Rotate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		logging.DebugError(err)
		return
	}
	f.Close()
}

// Append writes the concatenation of a Log frame's payload strings and
// returns the number of bytes written (0 on failure). Failures are
// swallowed per the Log Tee's non-fatal policy: a log chunk that can't be
// written is dropped, not retried.
func (t *Tee) Append(lines []string) int {
	if len(lines) == 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logging.DebugError(err)
		return 0
	}
	defer f.Close()

	n, err := f.WriteString(strings.Join(lines, ""))
	if err != nil {
		logging.DebugError(err)
		return 0
	}
	return n
}
