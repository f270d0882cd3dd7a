// internal/browser/context.go
package browser

import (
	"context"
)

// CombineContext derives a context from tab that is also cancelled when op is done.
// Values (the chromedp target) come from tab; the operational deadline and
// cancellation come from op. When op carries a deadline it is copied onto the result.
func CombineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	var (
		combined context.Context
		cancel   context.CancelFunc
	)
	if deadline, ok := op.Deadline(); ok {
		combined, cancel = context.WithDeadline(tab, deadline)
	} else {
		combined, cancel = context.WithCancel(tab)
	}

	stop := context.AfterFunc(op, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
