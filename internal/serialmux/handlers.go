package serialmux

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/watercolumn/internal/adcp"
	"github.com/banshee-data/watercolumn/internal/monitoring"
)

var logf = monitoring.Tagged("serialmux")

// HandleNMEA feeds one GPS line into the navigation tracker. Sentences the
// tracker does not use are ignored.
func HandleNMEA(nav *adcp.NavTracker, payload string) error {
	if ClassifyPayload(payload) != EventTypeNMEA {
		return nil
	}
	err := nav.Update(payload)
	if err == nil || errors.Is(err, adcp.ErrUnsupported) {
		return nil
	}
	return fmt.Errorf("failed to handle NMEA sentence %q: %w", payload, err)
}

// FeedNavigation reads lines from a GPS port subscription into nav until
// the channel closes or ctx is done. Bad sentences are logged and skipped.
func FeedNavigation(ctx context.Context, lines <-chan string, nav *adcp.NavTracker) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := HandleNMEA(nav, line); err != nil {
				logf("%v", err)
			}
		}
	}
}
