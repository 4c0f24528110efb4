package serialmux

import "strings"

const (
	EventTypeEnsemble = "ensemble"
	EventTypeNMEA     = "nmea"
	EventTypeRecord   = "record"
	EventTypeUnknown  = "unknown"
)

// recordPrefix matches the averaged water column records echoed on the
// output port.
const recordPrefix = "$RTIAWC"

// ClassifyPayload returns the kind of line read from a port: a JSON
// ensemble document, an NMEA sentence, an averaged record or anything else
// (prompts, command echoes).
func ClassifyPayload(payload string) string {
	p := strings.TrimSpace(payload)
	switch {
	case strings.HasPrefix(p, "{"):
		return EventTypeEnsemble
	case strings.HasPrefix(p, recordPrefix):
		return EventTypeRecord
	case strings.HasPrefix(p, "$"):
		return EventTypeNMEA
	default:
		return EventTypeUnknown
	}
}
