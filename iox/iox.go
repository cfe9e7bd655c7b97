// Package iox holds cleanup helpers shared by the transports, the replay
// reader and the CLI.
package iox

import "io"

// MaxDrain bounds how much of an unread HTTP body DrainClose consumes.
// Larger bodies are abandoned and the connection is not reused.
const MaxDrain = 64 << 10

// DiscardClose closes c and ignores the error:
//
//	defer iox.DiscardClose(rc)
func DiscardClose(c io.Closer) { _ = c.Close() }

// DrainClose reads up to MaxDrain bytes from rc and closes it, so an HTTP
// keep-alive connection can go back to the pool. A nil rc is a no-op.
func DrainClose(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, rc, MaxDrain)
	_ = rc.Close()
}

// Cleanup chains fns into one func run in reverse order, like defers.
// Errors are ignored; nil entries are skipped.
func Cleanup(fns ...func() error) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			if fns[i] != nil {
				_ = fns[i]()
			}
		}
	}
}
