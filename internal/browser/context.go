// File: internal/browser/context.go
package browser

import "context"

// CombineContext derives a context from primary that is canceled when
// either primary or secondary is done. chromedp requires the CDP target
// values carried by primary; secondary carries the operational deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}
