package adcp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeLine decodes one JSON ensemble document emitted by the upstream
// binary decoder. ok is false for lines that are not ensemble documents
// (instrument prompts, command echoes) so callers can skip them silently.
func DecodeLine(line string) (ens *Ensemble, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return nil, false, nil
	}

	var e Ensemble
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal ensemble: %w", err)
	}
	if e.NumBins < 0 {
		return nil, false, fmt.Errorf("invalid num_bins %d", e.NumBins)
	}
	if e.NumBins == 0 {
		e.NumBins = max(len(e.EarthVelocity), len(e.InstrumentVelocity))
	}
	return &e, true, nil
}
