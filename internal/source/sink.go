package source

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/time/rate"
)

const truncatedSentinel = "… (truncated)"

// Sink is the rate-limited outbound message sender: it emits a single
// textual message to the owner via a system scripting call, retrying
// transient failures with backoff.
type Sink struct {
	limiter        *rate.Limiter
	maxMessageLen  int
	scriptBinary   string // e.g. "osascript"
	scriptArgs     []string
}

// NewSink creates a Sink. scriptBinary/scriptArgs describe the system
// scripting call used to deliver a message; the message text is always
// passed as a trailing argument, never interpolated into the script body.
func NewSink(ratePerSecond float64, maxMessageLen int, scriptBinary string, scriptArgs []string) *Sink {
	return &Sink{
		limiter:       rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		maxMessageLen: maxMessageLen,
		scriptBinary:  scriptBinary,
		scriptArgs:    scriptArgs,
	}
}

// Send delivers text to the owner, truncating it to maxMessageLen and
// retrying up to 3 attempts with 0.5s/1.5s backoff on transient failure.
func (s *Sink) Send(ctx context.Context, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	if s.maxMessageLen > 0 && len(text) > s.maxMessageLen {
		cut := s.maxMessageLen - len(truncatedSentinel)
		if cut < 0 {
			cut = 0
		}
		text = text[:cut] + truncatedSentinel
	}

	backoffs := []time.Duration{0, 500 * time.Millisecond, 1500 * time.Millisecond}
	var lastErr error
	for _, wait := range backoffs {
		if wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if lastErr = s.deliver(ctx, text); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("send failed after retries: %w", lastErr)
}

func (s *Sink) deliver(ctx context.Context, text string) error {
	args := append(append([]string{}, s.scriptArgs...), text)
	cmd := exec.CommandContext(ctx, s.scriptBinary, args...)
	return cmd.Run()
}
