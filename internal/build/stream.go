package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/creack/pty"
)

// Event markers prepended to streamed docker output. The CLI replays them
// to reproduce Docker's native progress rendering: CR events overwrite the
// current terminal line, LF events complete it.
const (
	// EventOverwritePrefix marks a carriage-return update.
	EventOverwritePrefix = "DOCKER_CR|"

	// EventLinePrefix marks a completed output line.
	EventLinePrefix = "DOCKER_LF|"
)

// sendEvent delivers a message to the event channel without blocking.
// A nil channel or a full buffer drops the message.
func sendEvent(eventCh chan<- string, msg string) {
	if eventCh == nil {
		return
	}
	select {
	case eventCh <- msg:
	default:
	}
}

// StreamCommand runs a docker CLI command under a pty and forwards its
// output as marked events.
//
// The pty makes docker emit its interactive progress bars, which redraw
// with bare carriage returns. Reading byte-wise keeps those redraws apart
// from completed lines so the consumer can replay them faithfully.
//
// Parameters:
//   - ctx: Cancels the command; the process is killed on cancellation
//   - cmd: Command to run, typically built with exec.CommandContext
//   - eventCh: Optional channel for output events (can be nil)
//
// Returns:
//   - nil when the command exits 0
//   - "operation cancelled" when ctx ended the command
//   - The command's exit error otherwise
func StreamCommand(ctx context.Context, cmd *exec.Cmd, eventCh chan<- string) error {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("failed to start command under pty: %w", err)
	}
	defer ptmx.Close()

	forwardOutput(ctx, cmd, ptmx, eventCh)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled")
		}
		return err
	}
	return nil
}

// forwardOutput pumps pty output into the event channel until the process
// exits or the context is cancelled.
func forwardOutput(ctx context.Context, cmd *exec.Cmd, ptmx *os.File, eventCh chan<- string) {
	var line []byte
	buf := make([]byte, 1)

	flush := func(prefix string) {
		if len(line) > 0 {
			sendEvent(eventCh, prefix+string(line))
			line = line[:0]
		}
	}

	for {
		if ctx.Err() != nil {
			if cmd.Process != nil {
				cmd.Process.Kill()
			}
			return
		}

		// Short deadlines keep the loop responsive to cancellation.
		ptmx.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, err := ptmx.Read(buf)
		if n > 0 {
			switch buf[0] {
			case '\r':
				// A bare \r redraws the line, \r\n ends it. Peek one
				// byte to tell the two apart.
				next, ok := peekByte(ptmx)
				if ok && next == '\n' {
					flush(EventLinePrefix)
				} else {
					flush(EventOverwritePrefix)
					if ok {
						line = append(line, next)
					}
				}
			case '\n':
				flush(EventLinePrefix)
			default:
				line = append(line, buf[0])
			}
			continue
		}

		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			// EOF, or the pty closing as the process exits. Either way
			// cmd.Wait reports the real outcome.
			flush(EventLinePrefix)
			return
		}
	}
}

// peekByte tries to read one more byte within a millisecond.
func peekByte(ptmx *os.File) (byte, bool) {
	buf := make([]byte, 1)
	ptmx.SetReadDeadline(time.Now().Add(time.Millisecond))
	if n, _ := ptmx.Read(buf); n > 0 {
		return buf[0], true
	}
	return 0, false
}
