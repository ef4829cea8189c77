// Package reveal produces the typewriter effect: a cooperative,
// cancellable, character-by-character reveal of a reply whose full text is
// already known.
package reveal

import (
	"context"
	"sync/atomic"
	"time"
)

// ProgressFunc receives the revealed prefix after each character step.
type ProgressFunc func(prefix string)

// Controller drives a single reveal. A Controller is good for one Reveal
// call; the ephemeral reveal state dies with it.
type Controller struct {
	cancelled atomic.Bool
}

// NewController returns a controller for one reveal.
func NewController() *Controller {
	return &Controller{}
}

// Cancel requests the in-flight reveal to stop. It is safe to call any
// number of times and from any goroutine; the reveal loop observes the
// flag within one character step and resolves normally with whatever
// prefix had been revealed.
func (c *Controller) Cancel() {
	c.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (c *Controller) Cancelled() bool {
	return c.cancelled.Load()
}

// Reveal emits strictly growing prefixes of fullText, one character per
// step, calling onProgress after each step and sleeping delay between
// steps. It returns the prefix revealed at the moment it stopped: the
// whole text when it ran to completion, a shorter prefix when cancelled
// or when ctx was done. Cancellation is not an error.
func (c *Controller) Reveal(ctx context.Context, fullText string, delay time.Duration, onProgress ProgressFunc) string {
	runes := []rune(fullText)
	revealed := 0

	for revealed < len(runes) {
		if c.cancelled.Load() {
			break
		}
		select {
		case <-ctx.Done():
			return string(runes[:revealed])
		default:
		}

		revealed++
		if onProgress != nil {
			onProgress(string(runes[:revealed]))
		}

		if delay > 0 && revealed < len(runes) {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return string(runes[:revealed])
			case <-timer.C:
			}
		}
	}

	return string(runes[:revealed])
}
